package ledger

import (
	"sync"

	"crowdfund/internal/core"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// projectLocks serializes mutations per project. Entries are dropped once
// nobody holds or waits for them.
type projectLocks struct {
	mu      sync.Mutex
	entries map[core.ProjectID]*lockEntry
}

func newProjectLocks() *projectLocks {
	return &projectLocks{entries: make(map[core.ProjectID]*lockEntry)}
}

func (pl *projectLocks) lock(id core.ProjectID) (unlock func()) {
	pl.mu.Lock()
	e, ok := pl.entries[id]
	if !ok {
		e = &lockEntry{}
		pl.entries[id] = e
	}
	e.refs++
	pl.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		pl.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(pl.entries, id)
		}
		pl.mu.Unlock()
	}
}

func (pl *projectLocks) size() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.entries)
}
