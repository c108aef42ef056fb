package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/auth"
	"github.com/fastprodman/topupledger/internal/infra/logging"
	"github.com/fastprodman/topupledger/internal/infra/metrics"
)

type RouterDeps struct {
	Handler  *HandlerProvider
	Verifier *auth.Verifier
	Policy   auth.Policy
	// Limiter throttles intent creation; nil disables it.
	Limiter *RateLimiter
	Logger  *zap.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	h := d.Handler

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := d.Policy
	if policy == nil {
		policy = auth.DefaultPolicy
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(auth.Middleware(d.Verifier, policy))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/payments", func(r chi.Router) {
		r.Post("/webhook", h.WebhookHandler)
		r.Get("/activity", h.ActivityHandler)

		create := http.HandlerFunc(h.CreateIntentHandler)
		if d.Limiter != nil {
			r.With(d.Limiter.Middleware).Post("/create", create)
		} else {
			r.Post("/create", create)
		}
	})

	r.Route("/inventory", func(r chi.Router) {
		r.Get("/records", h.ListRecordsHandler)
		r.Post("/markers", h.MarkRecordsHandler)
	})

	return r
}
