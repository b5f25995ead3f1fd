package cli

import (
	"context"
	"log/slog"
	"testing"

	"crowdfund/internal/config"
	"crowdfund/internal/log"
)

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"})
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("LOG_LEVEL=debug should enable debug logs")
	}

	logger = SetupLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("LOG_LEVEL=warn should suppress info logs")
	}
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("AMQP_URL", "")
	if _, err := LoadAndValidateConfig(); err != nil {
		t.Fatalf("LoadAndValidateConfig() error = %v", err)
	}

	t.Setenv("DATA_BACKEND", "postgres")
	if _, err := LoadAndValidateConfig(); err == nil {
		t.Fatal("expected validation error for unknown backend")
	}
}

func TestSetupTelemetryDisabled(t *testing.T) {
	shutdown, err := SetupTelemetry(context.Background(), &config.Config{}, log.Nop())
	if err != nil {
		t.Fatalf("SetupTelemetry() error = %v", err)
	}
	shutdown(context.Background())
}

func TestSignalContextCancel(t *testing.T) {
	ctx, cancel := SignalContext(context.Background(), log.Nop())
	cancel()
	<-ctx.Done()
}
