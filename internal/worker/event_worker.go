// Package worker consumes ledger events from the broker.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"crowdfund/internal/amqp"
	"crowdfund/internal/cache"
	"crowdfund/internal/core"
	"crowdfund/internal/log"
)

// Sink receives each event once.
type Sink func(ctx context.Context, ev core.Event)

// EventWorker handles event messages delivered by the broker. The broker
// delivers at least once, so events are de-duplicated by id within a window.
type EventWorker struct {
	seen   *cache.LRUCache[struct{}]
	sink   Sink
	logger *log.Logger

	handled    atomic.Int64
	duplicates atomic.Int64
}

func NewEventWorker(sink Sink, dedupeSize int, dedupeWindow time.Duration, logger *log.Logger) *EventWorker {
	if logger == nil {
		logger = log.Nop()
	}
	return &EventWorker{
		seen:   cache.NewLRUCache[struct{}](dedupeSize, dedupeWindow),
		sink:   sink,
		logger: logger.WithComponent(log.ComponentAMQP),
	}
}

// Cache exposes the de-duplication window for registration with a
// cache.Manager.
func (w *EventWorker) Cache() cache.Cleaner {
	return w.seen
}

// HandleEventMessage forwards a message's event to the sink unless it was
// already seen. An error makes the consumer requeue the delivery.
func (w *EventWorker) HandleEventMessage(ctx context.Context, msg *amqp.EventMessage) error {
	ev := msg.Event
	if ev.ID == "" {
		return fmt.Errorf("event message without id (type %q)", ev.Type)
	}
	if msg.Version > 1 {
		return fmt.Errorf("unsupported event message version %d", msg.Version)
	}

	if _, fresh := w.seen.SetIfAbsent(ev.ID, struct{}{}); !fresh {
		w.duplicates.Add(1)
		w.logger.DebugContext(ctx, "Skipping duplicate event", log.FieldEventID, ev.ID)
		return nil
	}

	if w.sink != nil {
		w.sink(ctx, ev)
	}
	w.handled.Add(1)

	w.logger.InfoContext(ctx, "Ledger event received", log.NewFields().WithEvent(ev).ToSlice()...)
	return nil
}

// Counts returns how many events were handled and how many duplicates were
// dropped.
func (w *EventWorker) Counts() (handled, duplicates int64) {
	return w.handled.Load(), w.duplicates.Load()
}
