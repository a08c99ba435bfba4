package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/receiptdrop/accounts/pkg/account"
	"github.com/receiptdrop/accounts/pkg/api"
	"github.com/receiptdrop/accounts/pkg/config"
	"github.com/receiptdrop/accounts/pkg/contact"
	"github.com/receiptdrop/accounts/pkg/observability"
	"github.com/receiptdrop/accounts/pkg/pii"
	"github.com/receiptdrop/accounts/pkg/storage"
	"github.com/receiptdrop/accounts/pkg/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "accountsd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := storage.OpenPostgres(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := storage.OpenRedis(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	codec, err := pii.NewAESCodec(cfg.Security.EncryptionKey)
	if err != nil {
		return err
	}
	hasher := pii.NewHasher(cfg.Security.EmailHashSalt)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	store := account.NewPostgresStore(db, codec, cfg.Storage.PostgresTimeout)
	query := account.NewQueryService(store, redisClient, cfg.Storage.CacheTTL, logger, metrics)

	ledger := webhook.NewPostgresLedger(db)
	verifier := webhook.NewVerifier(cfg.Security.WebhookSecret, cfg.Security.SignatureTolerance)
	retry := webhook.NewRetryPolicy(webhook.DefaultRetryConfig())
	processor := webhook.NewProcessor(db, store, ledger, verifier, retry, query, logger, metrics)

	portalClient := webhook.NewHTTPPortalClient(cfg.Portal.BaseURL, cfg.Portal.APIKey, cfg.Portal.ReturnURL, cfg.Portal.Timeout)
	portal := webhook.NewPortalService(store, hasher, portalClient, logger)

	contacts := contact.NewPostgresStore(db, codec, cfg.Storage.PostgresTimeout)

	server := api.NewServer(processor, query, query, portal, ledger, contacts, logger, metrics)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("api server shutdown failed")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("health server shutdown failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
