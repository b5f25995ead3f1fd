package ledger

import (
	"context"
	"sync"

	"crowdfund/internal/core"
)

// Journal is an append-only in-memory log of committed events.
type Journal struct {
	mu     sync.RWMutex
	events []core.Event
}

func NewJournal() *Journal {
	return &Journal{}
}

// Record is a Listener.
func (j *Journal) Record(_ context.Context, ev core.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
}

// Events returns a copy of every recorded event in commit order.
func (j *Journal) Events() []core.Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]core.Event(nil), j.events...)
}

// ForProject returns the events of one project in commit order.
func (j *Journal) ForProject(id core.ProjectID) []core.Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []core.Event
	for _, ev := range j.events {
		if ev.ProjectID == id {
			out = append(out, ev)
		}
	}
	return out
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}
