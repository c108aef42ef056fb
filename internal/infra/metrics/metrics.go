package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topup_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_webhook_events_total",
			Help: "Gateway webhook deliveries by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	BalanceCreditedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topup_balance_credits_total",
			Help: "Confirmed payments credited to account balances",
		},
	)

	IntentAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_intent_attempts_total",
			Help: "Upstream charge creation attempts by result",
		},
		[]string{"result"},
	)

	MarkerWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_marker_writes_total",
			Help: "Inventory marker writes by kind and per-record result",
		},
		[]string{"kind", "result"},
	)
)

func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordBalanceCredit() {
	BalanceCreditedTotal.Inc()
}

func RecordIntentAttempt(result string) {
	IntentAttemptsTotal.WithLabelValues(result).Inc()
}

func RecordMarkerWrite(kind, result string) {
	MarkerWritesTotal.WithLabelValues(kind, result).Inc()
}

// Middleware records request count and latency labelled by chi route pattern,
// so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
