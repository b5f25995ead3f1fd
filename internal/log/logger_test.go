package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"crowdfund/internal/core"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogRejectedLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf, Component: ComponentLedger})
	sl := NewStructuredLogger(logger)
	ctx := context.Background()

	sl.LogRejected(ctx, OpDonate, core.ErrDeadlinePassed, NewFields().WithProjectID(7))
	sl.LogRejected(ctx, OpDonate, fmt.Errorf("%w: boom", core.ErrTransferFailed), NewFields().WithProjectID(7))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["level"] != "WARN" || first[FieldErrorKind] != core.KindDeadlinePassed {
		t.Fatalf("unexpected first entry: %v", first)
	}
	if second["level"] != "ERROR" || second[FieldErrorKind] != core.KindTransferFailed {
		t.Fatalf("unexpected second entry: %v", second)
	}
	if first[FieldComponent] != ComponentLedger {
		t.Fatalf("expected component %q, got %v", ComponentLedger, first[FieldComponent])
	}
}

func TestFromContextFallsBack(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil || l.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %+v", l)
	}
	want := Nop()
	if got := FromContext(NewContext(context.Background(), want)); got != want {
		t.Fatal("expected logger stored in context")
	}
}
