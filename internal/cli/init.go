// Package cli holds the start-up steps shared by every crowdfund command.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"crowdfund/internal/config"
	"crowdfund/internal/log"
	"crowdfund/internal/telemetry"
)

const ServiceName = "crowdfund"

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger from configuration and installs it
// as the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// SetupTelemetry starts tracing when an OTLP endpoint is configured. The
// returned function flushes spans and never fails the caller.
func SetupTelemetry(ctx context.Context, cfg *config.Config, logger *log.Logger) (func(context.Context), error) {
	shutdown, err := telemetry.Setup(ctx, ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return func(context.Context) {}, fmt.Errorf("setup telemetry: %w", err)
	}
	if cfg.OTelEndpoint != "" {
		logger.Info("Tracing enabled", "endpoint", cfg.OTelEndpoint)
	}
	return func(ctx context.Context) {
		if err := shutdown(ctx); err != nil {
			logger.Warn("Tracer shutdown failed", log.FieldError, err)
		}
	}, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
