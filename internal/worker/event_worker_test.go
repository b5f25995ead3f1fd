package worker

import (
	"context"
	"testing"
	"time"

	"crowdfund/internal/amqp"
	"crowdfund/internal/core"
	"crowdfund/internal/ledger"
)

func TestEventWorker_DeduplicatesByID(t *testing.T) {
	journal := ledger.NewJournal()
	w := NewEventWorker(journal.Record, 100, time.Hour, nil)
	ctx := context.Background()

	ev := core.NewDonated(core.Project{ID: 4, AssetID: "TKN"}, "bob", 10, time.Now())
	msg := amqp.NewEventMessage(ev)

	for i := 0; i < 3; i++ {
		if err := w.HandleEventMessage(ctx, msg); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	if journal.Len() != 1 {
		t.Fatalf("expected sink to see the event once, saw %d", journal.Len())
	}
	handled, dupes := w.Counts()
	if handled != 1 || dupes != 2 {
		t.Fatalf("counts = %d handled, %d duplicates", handled, dupes)
	}
}

func TestEventWorker_RejectsMalformed(t *testing.T) {
	w := NewEventWorker(nil, 10, time.Hour, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  *amqp.EventMessage
	}{
		{"missing id", &amqp.EventMessage{Version: 1, Event: core.Event{Type: core.EventDonated}}},
		{"future version", &amqp.EventMessage{Version: 2, Event: core.Event{ID: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.HandleEventMessage(ctx, tt.msg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
