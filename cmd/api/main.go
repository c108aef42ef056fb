package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/api"
	"github.com/fastprodman/topupledger/internal/auth"
	"github.com/fastprodman/topupledger/internal/clients/gateway"
	"github.com/fastprodman/topupledger/internal/infra/kafkapub"
	"github.com/fastprodman/topupledger/internal/infra/logging"
	"github.com/fastprodman/topupledger/internal/infra/pgutils"
	"github.com/fastprodman/topupledger/internal/services/intents"
	"github.com/fastprodman/topupledger/internal/services/inventory"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/fastprodman/topupledger/pkg/envconf"
	"github.com/fastprodman/topupledger/pkg/shutdownqueue"
)

const rateLimitVisitorTTL = 3 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	shutdownqueue.Add("logger sync", func(context.Context) error {
		// Sync on stderr returns EINVAL on some platforms; nothing to act on.
		_ = logger.Sync()
		return nil
	})

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add("postgres", func(context.Context) error {
		return db.Close()
	})

	var ledgerOpts []ledger.Option

	if cfg.Kafka.Enabled() {
		pub := kafkapub.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		ledgerOpts = append(ledgerOpts, ledger.WithPublisher(pub))

		shutdownqueue.Add("kafka writer", func(context.Context) error {
			return pub.Close()
		})

		logger.Info("balance credit publishing enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("init token verifier: %w", err)
	}

	// --- Services ---
	ledgerSvc := ledger.New(db, logger, ledgerOpts...)

	gw := gateway.New(gateway.Config{
		BaseURL:    cfg.Gateway.BaseURL,
		APIKey:     cfg.Gateway.APIKey,
		APIVersion: cfg.Gateway.APIVersion,
		Timeout:    cfg.Gateway.Timeout,
	})

	intentSvc := intents.New(gw, intents.Config{
		MaxAttempts:     cfg.Gateway.MaxRetries,
		RetryDelay:      cfg.Gateway.RetryDelay,
		RetryableStatus: cfg.Gateway.RetryableStatus,
		Currency:        cfg.Gateway.Currency,
		AppBaseURL:      cfg.BaseURL,
	}, logger)

	inventorySvc := inventory.New(db, logger)

	// --- HTTP server ---
	limiter := api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, rateLimitVisitorTTL)

	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	go limiter.Run(limiterCtx)

	shutdownqueue.Add("rate limiter", func(context.Context) error {
		stopLimiter()
		return nil
	})

	handler := api.NewHandler(ledgerSvc, intentSvc, inventorySvc, api.WebhookConfig{
		Secret:          []byte(cfg.Gateway.WebhookSecret),
		SignatureHeader: cfg.Gateway.SignatureHeader,
	}, logger)

	router := api.NewRouter(api.RouterDeps{
		Handler:  handler,
		Verifier: verifier,
		Policy:   auth.DefaultPolicy,
		Limiter:  limiter,
		Logger:   logger,
	})

	srv := api.NewServer(cfg.Port, router)

	shutdownqueue.Add("http server", func(c context.Context) error {
		logger.Info("shutting down http server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	logger.Info("api started", zap.Uint16("port", cfg.Port))

	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}
