package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crowdfund/internal/config"
	"crowdfund/internal/core"
	"crowdfund/internal/log"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestMigrateCommands(t *testing.T) {
	t.Setenv("DATA_BACKEND", "sqlite")
	dir := t.TempDir()
	t.Setenv("SQLITE_DB_PATH", filepath.Join(dir, "crowdfund.db"))
	t.Setenv("ASSET_DB_PATH", filepath.Join(dir, "assets.db"))
	t.Setenv("LOG_LEVEL", "error")

	out, err := run(t, "migrate", "up")
	if err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if !strings.Contains(out, "schema at version 1") {
		t.Errorf("migrate up output = %q", out)
	}

	out, err = run(t, "migrate", "version")
	if err != nil {
		t.Fatalf("migrate version: %v", err)
	}
	if strings.TrimSpace(out) != "version 1" {
		t.Errorf("migrate version output = %q", out)
	}
}

func TestRelayStatsOnEmptyOutbox(t *testing.T) {
	t.Setenv("DATA_BACKEND", "sqlite")
	dir := t.TempDir()
	t.Setenv("SQLITE_DB_PATH", filepath.Join(dir, "crowdfund.db"))
	t.Setenv("ASSET_DB_PATH", filepath.Join(dir, "assets.db"))
	t.Setenv("LOG_LEVEL", "error")

	out, err := run(t, "relay", "stats")
	if err != nil {
		t.Fatalf("relay stats: %v", err)
	}
	if strings.TrimSpace(out) != "pending=0 processing=0 published=0 failed=0" {
		t.Errorf("relay stats output = %q", out)
	}

	if _, err := run(t, "relay", "flush"); err == nil {
		t.Error("flush without a broker should fail")
	}
}

func TestRelayRequiresSQLite(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")

	if _, err := run(t, "relay", "stats"); err == nil {
		t.Error("expected an error with the memory backend")
	}
}

func TestInvalidConfigFailsEarly(t *testing.T) {
	t.Setenv("DATA_BACKEND", "postgres")
	if _, err := run(t, "migrate", "version"); err == nil {
		t.Error("expected configuration error")
	}
}

func TestRelayConfig(t *testing.T) {
	rc := relayConfig(&config.Config{RelayBatchSize: 25, RelayInterval: time.Minute, RelayMaxRetries: 3})
	if rc.BatchSize != 25 || rc.PollInterval != time.Minute || rc.MaxRetries != 3 {
		t.Errorf("relayConfig() = %+v", rc)
	}
	if rc.CleanupAge != 24*time.Hour {
		t.Errorf("cleanup age should keep its default, got %v", rc.CleanupAge)
	}
}

func TestJSONLineSink(t *testing.T) {
	logger = log.Nop()
	var out bytes.Buffer
	sink := jsonLineSink(&out)

	sink(context.Background(), core.Event{ID: "a", Type: core.EventDonated, ProjectID: 1, Amount: 5})
	sink(context.Background(), core.Event{ID: "b", Type: core.EventWithdrawnByUser, ProjectID: 1, Amount: 5})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), out.String())
	}
	var ev core.Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if ev.ID != "b" || ev.Type != core.EventWithdrawnByUser {
		t.Errorf("event = %+v", ev)
	}
}
