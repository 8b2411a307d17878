package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"household/internal/backend"
	"household/internal/cli"
	apphttp "household/internal/http"
	"household/internal/log"
	"household/internal/metrics"
	"household/internal/middleware/ratelimit"
	"household/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg)
	m := metrics.New()

	ledgerOpts := []services.Option{
		services.WithMetrics(m),
		services.WithLogger(logger.WithComponent(log.ComponentLedger)),
	}
	publisher := backend.NewPublisher(logger.WithComponent(log.ComponentAMQP),
		cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if publisher != nil {
		ledgerOpts = append(ledgerOpts, services.WithPublisher(publisher))
	}
	ledger := services.NewLedgerService(res.Backend, ledgerOpts...)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Username:       cfg.AuthUsername,
		Password:       cfg.AuthPassword,
		SessionSecret:  cfg.SessionSecret,
		SessionTTL:     cfg.SessionTTL,
		CurrencySymbol: cfg.CurrencySymbol,
		LoginLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitPerSecond,
			Burst:             cfg.RateLimitBurst,
		},
		Storage: res.Backend,
		Metrics: m,
		Logger:  logger,
	}, ledger)
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldOperation, log.OpShutdown, log.FieldError, err)
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", log.FieldError, err)
			}
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Warn("Failed to close storage backend", log.FieldError, err)
			}
		}
	}
	sigCtx, done := cli.GracefulShutdown(logger, shutdownTimeout, cleanup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting household server",
			log.FieldOperation, log.OpStartup,
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			"events", publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-sigCtx.Done():
			<-done
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cleanup()
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
