package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"tally/internal/auth"
	"tally/internal/cli"
	apphttp "tally/internal/http"
	"tally/internal/log"
	"tally/internal/services"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		log.New(log.DefaultConfig()).Warn("Failed to load .env file", log.FieldError, err)
	}
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	factory, bcfg, res := cli.OpenStore(context.Background(), logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	}()

	// Events are optional for the API: without a broker the worker catches
	// up through periodic verification.
	var publisher services.EventPublisher
	client, err := factory.CreatePublisher(bcfg)
	if err != nil {
		logger.Warn("AMQP unavailable, continuing without ledger events", log.FieldError, err)
	} else if client != nil {
		publisher = client
		defer client.Close()
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience)
	if err != nil {
		logger.Error("Failed to configure authentication", log.FieldError, err)
		os.Exit(1)
	}
	settings, err := services.NewSettingsService(res.Store, cfg.DefaultCurrency)
	if err != nil {
		logger.Error("Failed to configure settings", log.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Logger:             logger,
		Auth:               verifier,
		Ready:              res.Store.Ping,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Services{
		Ledger:   services.NewLedgerService(res.Store, publisher, cfg.MutationMaxRetries),
		Stats:    services.NewStatsService(res.Store, cfg.StatsMaxRangeDays),
		Settings: settings,
	})

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting tally server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(done)
	logger.Info("Server stopped gracefully")
}
