package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"crowdfund/internal/core"
	"crowdfund/internal/log"
)

// Outbox is the relay's view of the event outbox written by the ledger.
type Outbox interface {
	DequeueEvents(ctx context.Context, limit int) ([]core.OutboxEntry, error)
	MarkEventProcessing(ctx context.Context, seq int64) error
	MarkEventPublished(ctx context.Context, seq int64) error
	MarkEventRetry(ctx context.Context, seq int64, lastErr string) error
	MarkEventFailed(ctx context.Context, seq int64, lastErr string) error
	ResetStaleProcessing(ctx context.Context) error
	RetryFailedEvents(ctx context.Context) (int64, error)
	CleanupPublishedEvents(ctx context.Context, before time.Time) (int64, error)
	OutboxStats(ctx context.Context) (core.OutboxStats, error)
}

// EventPublisher delivers one event to the broker.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev core.Event) error
}

// EventRelayConfig holds configuration for the event relay
type EventRelayConfig struct {
	// PollInterval is how often to check for pending events (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of events to publish per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of attempts before an event is marked failed (default: 5)
	MaxRetries int

	// Parallelism bounds how many projects publish at once (default: 4)
	Parallelism int

	// CleanupInterval is how often to delete published events (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old published events must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

func DefaultEventRelayConfig() EventRelayConfig {
	return EventRelayConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      5,
		Parallelism:     4,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// EventRelay moves committed events from the outbox to the broker. Events of
// one project are published in commit order; different projects publish
// concurrently.
type EventRelay struct {
	outbox    Outbox
	publisher EventPublisher
	config    EventRelayConfig
	logger    *log.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewEventRelay(outbox Outbox, publisher EventPublisher, config EventRelayConfig, logger *log.Logger) *EventRelay {
	if logger == nil {
		logger = log.Nop()
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	return &EventRelay{
		outbox:    outbox,
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(log.ComponentRelay),
		now:       time.Now,
	}
}

// Start begins the relay loop. Returns an error if already running.
func (r *EventRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("event relay is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	// Entries left in processing by a crashed relay go back to pending.
	if err := r.outbox.ResetStaleProcessing(ctx); err != nil {
		r.logger.WarnContext(ctx, "Failed to reset stale processing events", log.FieldError, err)
	}

	go r.runLoop(ctx)

	r.logger.InfoContext(ctx, "Event relay started",
		"poll_interval", r.config.PollInterval,
		"batch_size", r.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the in-flight batch to finish.
func (r *EventRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}

	select {
	case <-doneCh:
		r.logger.InfoContext(ctx, "Event relay stopped gracefully")
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Event relay stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

func (r *EventRelay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *EventRelay) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	pollTicker := time.NewTicker(r.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(r.config.CleanupInterval)
	defer cleanupTicker.Stop()

	r.processBatch(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			r.processBatch(ctx)
		case <-cleanupTicker.C:
			r.cleanupPublished(ctx)
		}
	}
}

// processBatch publishes one batch and returns how many events were
// published.
func (r *EventRelay) processBatch(ctx context.Context) int {
	entries, err := r.outbox.DequeueEvents(ctx, r.config.BatchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to dequeue outbox batch", log.FieldError, err)
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	r.logger.DebugContext(ctx, "Relaying outbox batch", "count", len(entries))

	var (
		order  []core.ProjectID
		groups = make(map[core.ProjectID][]core.OutboxEntry)
	)
	for _, e := range entries {
		if _, ok := groups[e.Event.ProjectID]; !ok {
			order = append(order, e.Event.ProjectID)
		}
		groups[e.Event.ProjectID] = append(groups[e.Event.ProjectID], e)
	}

	var (
		mu        sync.Mutex
		published int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Parallelism)
	for _, id := range order {
		group := groups[id]
		g.Go(func() error {
			n := r.publishInOrder(gctx, group)
			mu.Lock()
			published += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return published
}

// publishInOrder stops at the first failure so later events of the same
// project never overtake an earlier one.
func (r *EventRelay) publishInOrder(ctx context.Context, entries []core.OutboxEntry) int {
	published := 0
	for _, e := range entries {
		select {
		case <-r.stopSignal():
			return published
		case <-ctx.Done():
			return published
		default:
		}

		if err := r.outbox.MarkEventProcessing(ctx, e.Seq); err != nil {
			r.logger.ErrorContext(ctx, "Failed to mark event as processing",
				"seq", e.Seq, log.FieldError, err)
			return published
		}

		if err := r.publisher.PublishEvent(ctx, e.Event); err != nil {
			r.handleFailure(ctx, e, err)
			return published
		}
		r.handleSuccess(ctx, e)
		published++
	}
	return published
}

func (r *EventRelay) stopSignal() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh == nil {
		return nil
	}
	return r.stopCh
}

func (r *EventRelay) handleSuccess(ctx context.Context, e core.OutboxEntry) {
	if err := r.outbox.MarkEventPublished(ctx, e.Seq); err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark event published",
			"seq", e.Seq, log.FieldError, err)
	}
}

func (r *EventRelay) handleFailure(ctx context.Context, e core.OutboxEntry, publishErr error) {
	attempt := e.Attempts + 1
	fields := log.NewFields().WithEvent(e.Event).WithError(publishErr)
	r.logger.WarnContext(ctx, "Event publish failed", append(fields.ToSlice(), "attempt", attempt)...)

	if attempt >= r.config.MaxRetries {
		if err := r.outbox.MarkEventFailed(ctx, e.Seq, publishErr.Error()); err != nil {
			r.logger.ErrorContext(ctx, "Failed to mark event failed", "seq", e.Seq, log.FieldError, err)
		}
		r.logger.ErrorContext(ctx, "Event failed permanently after max retries",
			append(fields.ToSlice(), "attempts", attempt)...)
		return
	}
	if err := r.outbox.MarkEventRetry(ctx, e.Seq, publishErr.Error()); err != nil {
		r.logger.ErrorContext(ctx, "Failed to schedule event retry", "seq", e.Seq, log.FieldError, err)
	}
}

func (r *EventRelay) cleanupPublished(ctx context.Context) {
	cutoff := r.now().Add(-r.config.CleanupAge)
	n, err := r.outbox.CleanupPublishedEvents(ctx, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to clean up published events", log.FieldError, err)
		return
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "Cleaned up published events", "count", n)
	}
}

// Flush publishes pending events until the outbox is drained or a batch
// makes no progress. Used on shutdown and by the relay command's one-shot mode.
func (r *EventRelay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n := r.processBatch(ctx)
		total += n
		if n == 0 {
			return total, nil
		}
	}
}

func (r *EventRelay) Stats(ctx context.Context) (core.OutboxStats, error) {
	return r.outbox.OutboxStats(ctx)
}

// RetryFailed resets all failed events for another round of attempts.
func (r *EventRelay) RetryFailed(ctx context.Context) (int64, error) {
	n, err := r.outbox.RetryFailedEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("retry failed events: %w", err)
	}
	return n, nil
}
