package memory

import (
	"context"
	"fmt"
	"time"

	"crowdfund/internal/core"
)

// DequeueEvents returns up to limit pending events in commit order.
func (s *Store) DequeueEvents(_ context.Context, limit int) ([]core.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.OutboxEntry
	for _, e := range s.outbox {
		if len(out) >= limit {
			break
		}
		if e.Status == core.OutboxPending {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *Store) MarkEventProcessing(_ context.Context, seq int64) error {
	return s.setStatus(seq, core.OutboxProcessing, "", false)
}

func (s *Store) MarkEventPublished(_ context.Context, seq int64) error {
	return s.setStatus(seq, core.OutboxPublished, "", false)
}

func (s *Store) MarkEventRetry(_ context.Context, seq int64, lastErr string) error {
	return s.setStatus(seq, core.OutboxPending, lastErr, true)
}

func (s *Store) MarkEventFailed(_ context.Context, seq int64, lastErr string) error {
	return s.setStatus(seq, core.OutboxFailed, lastErr, true)
}

func (s *Store) setStatus(seq int64, status core.OutboxStatus, lastErr string, attempt bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.Seq != seq {
			continue
		}
		e.Status = status
		if attempt {
			e.Attempts++
			e.LastError = lastErr
		}
		e.UpdatedAt = s.now()
		return nil
	}
	return fmt.Errorf("outbox entry %d: not found", seq)
}

// ResetStaleProcessing returns entries left in processing by a crashed relay
// to the pending state.
func (s *Store) ResetStaleProcessing(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.Status == core.OutboxProcessing {
			e.Status = core.OutboxPending
		}
	}
	return nil
}

func (s *Store) RetryFailedEvents(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.outbox {
		if e.Status == core.OutboxFailed {
			e.Status = core.OutboxPending
			e.Attempts = 0
			n++
		}
	}
	return n, nil
}

// CleanupPublishedEvents drops published entries last touched before cutoff.
func (s *Store) CleanupPublishedEvents(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.outbox[:0]
	var removed int64
	for _, e := range s.outbox {
		if e.Status == core.OutboxPublished && e.UpdatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.outbox = kept
	return removed, nil
}

func (s *Store) OutboxStats(_ context.Context) (core.OutboxStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st core.OutboxStats
	for _, e := range s.outbox {
		switch e.Status {
		case core.OutboxPending:
			st.Pending++
		case core.OutboxProcessing:
			st.Processing++
		case core.OutboxPublished:
			st.Published++
		case core.OutboxFailed:
			st.Failed++
		}
	}
	return st, nil
}
