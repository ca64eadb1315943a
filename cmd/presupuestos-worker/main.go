package main

import (
	"context"
	"errors"
	"os"

	"presupuestos/internal/amqp"
	"presupuestos/internal/cli"
	"presupuestos/internal/log"
	"presupuestos/internal/worker"
)

func main() {
	_ = cli.LoadEnvFile("")

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.Setup(log.ComponentWorker, "info").Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := log.Setup(log.ComponentWorker, cfg.LogLevel)
	logger.Info("Starting presupuestos-worker", log.FieldYear, cfg.FiscalYear)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app, err := cli.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize budget engine", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	broker, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	exporter := worker.NewExportWorker(app.Reports, app.Backend.Reports, app.Policy.Stores)

	// Rewrite every annual report once so a missed event never leaves a stale tab.
	if err := exporter.RefreshAll(ctx, cfg.FiscalYear); err != nil {
		logger.Error("Startup report refresh failed", "error", err)
	}

	err = broker.ConsumeEvents(ctx, exporter.HandleEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
	}
	logger.Info("Worker shutdown complete")
}
