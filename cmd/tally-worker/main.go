package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/cli"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/worker"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		log.New(log.DefaultConfig()).Warn("Failed to load .env file", log.FieldError, err)
	}
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting tally-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	factory, bcfg, res := cli.OpenStore(ctx, logger, cfg)
	defer res.Cleanup()

	client, err := factory.CreatePublisher(bcfg)
	if err != nil || client == nil {
		logger.Error("The worker needs a reachable AMQP broker (AMQP_URL)", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	mirror, err := factory.CreateMirror(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize spreadsheet mirror", log.FieldError, err)
		os.Exit(1)
	}

	reconciler := services.NewReconciler(res.Store, cfg.ReconcileConcurrency)
	w := worker.NewEventWorker(reconciler, mirror)

	// Catch up on anything missed while the worker was down.
	if err := w.VerifyOnce(ctx); err != nil {
		logger.Error("Startup verification failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeLedgerEvents(gctx, w.HandleEvent)
	})
	g.Go(func() error {
		w.PeriodicVerify(gctx, cfg.ReconcileInterval)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(done)
	logger.Info("Worker stopped gracefully")
}
