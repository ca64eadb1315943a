package main

import (
	"context"
	"os"
	"time"

	"presupuestos/internal/amqp"
	"presupuestos/internal/cli"
	apphttp "presupuestos/internal/http"
	"presupuestos/internal/log"
	"presupuestos/internal/services"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = time.Minute
)

func main() {
	_ = cli.LoadEnvFile("")

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.Setup(log.ComponentApp, "info").Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := log.Setup(log.ComponentApp, cfg.LogLevel)
	logger.Info("Starting presupuestos", "port", cfg.Port, "backend", cfg.DataBackend, log.FieldYear, cfg.FiscalYear)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app, err := cli.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize budget engine", "error", err)
		os.Exit(1)
	}
	app.Caches.StartCleanup(cacheCleanupInterval)

	// Events stay in the outbox until a broker is configured.
	var relay *services.OutboxRelay
	var broker *amqp.Client
	if cfg.AMQPURL != "" {
		broker, err = amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to connect to AMQP, events will wait in the outbox", "error", err)
		} else {
			rc := services.DefaultOutboxRelayConfig()
			rc.BatchSize = cfg.OutboxBatchSize
			rc.PollInterval = cfg.OutboxPollInterval
			relay = services.NewOutboxRelay(app.Backend.Store, broker, rc)
			if err := relay.Start(ctx); err != nil {
				logger.Error("Failed to start outbox relay", "error", err)
				os.Exit(1)
			}
		}
	} else {
		logger.Info("AMQP disabled - report export runs only from presupuestosctl")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Catalog:    app.Backend.Store,
		Directory:  app.Directory,
		Expenses:   app.Expenses,
		Imports:    app.Imports,
		Reports:    app.Reports,
		Overflow:   app.Ledger.Policy(),
		FiscalYear: cfg.FiscalYear,
		Logger:     logger.WithComponent(log.ComponentHTTP),
	})

	runErr := srv.Run(ctx, shutdownTimeout)
	if runErr != nil {
		logger.Error("Server error", "error", runErr, "port", cfg.Port)
	}

	err = cli.Shutdown(logger, shutdownTimeout,
		func(ctx context.Context) error {
			if relay == nil {
				return nil
			}
			return relay.Stop(ctx)
		},
		func(context.Context) error {
			if broker == nil {
				return nil
			}
			return broker.Close()
		},
		func(context.Context) error { return app.Close() },
	)
	if err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	if runErr != nil || err != nil {
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully", "requests", srv.Requests())
}
