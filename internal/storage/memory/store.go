package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"crowdfund/internal/core"
	"crowdfund/internal/ledger"
)

type donationKey struct {
	project core.ProjectID
	donor   core.Identity
}

// Store keeps ledger state and the event outbox in process memory.
type Store struct {
	mu        sync.RWMutex
	nextID    core.ProjectID
	projects  map[core.ProjectID]core.Project
	donations map[donationKey]core.Amount
	outbox    []*core.OutboxEntry
	nextSeq   int64
	now       func() time.Time
}

func New() *Store {
	return &Store{
		nextID:    1,
		nextSeq:   1,
		projects:  make(map[core.ProjectID]core.Project),
		donations: make(map[donationKey]core.Amount),
		now:       time.Now,
	}
}

func (s *Store) GetProject(_ context.Context, id core.ProjectID) (core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return core.Project{}, core.ErrProjectNotFound
	}
	return p, nil
}

func (s *Store) GetDonation(_ context.Context, id core.ProjectID, donor core.Identity) (core.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.donations[donationKey{id, donor}], nil
}

func (s *Store) ListProjects(_ context.Context) ([]core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListDonations(_ context.Context, id core.ProjectID) ([]core.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Donation
	for k, amount := range s.donations {
		if k.project == id {
			out = append(out, core.Donation{ProjectID: id, Donor: k.donor, Amount: amount})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Donor < out[j].Donor })
	return out, nil
}

// Update holds the write lock for the whole unit of work and applies the
// staged writes only when fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &stagedTx{
		store:     s,
		nextID:    s.nextID,
		projects:  make(map[core.ProjectID]core.Project),
		donations: make(map[donationKey]core.Amount),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.nextID = tx.nextID
	for id, p := range tx.projects {
		s.projects[id] = p
	}
	for k, amount := range tx.donations {
		s.donations[k] = amount
	}
	now := s.now()
	for _, ev := range tx.events {
		s.outbox = append(s.outbox, &core.OutboxEntry{
			Seq:       s.nextSeq,
			Event:     ev,
			Status:    core.OutboxPending,
			UpdatedAt: now,
		})
		s.nextSeq++
	}
	return nil
}

// stagedTx reads through to the store, which Update keeps locked.
type stagedTx struct {
	store     *Store
	nextID    core.ProjectID
	projects  map[core.ProjectID]core.Project
	donations map[donationKey]core.Amount
	events    []core.Event
}

func (tx *stagedTx) InsertProject(_ context.Context, p core.Project) (core.ProjectID, error) {
	p.ID = tx.nextID
	tx.nextID++
	tx.projects[p.ID] = p
	return p.ID, nil
}

func (tx *stagedTx) GetProject(_ context.Context, id core.ProjectID) (core.Project, error) {
	if p, ok := tx.projects[id]; ok {
		return p, nil
	}
	p, ok := tx.store.projects[id]
	if !ok {
		return core.Project{}, core.ErrProjectNotFound
	}
	return p, nil
}

func (tx *stagedTx) UpdateProject(ctx context.Context, p core.Project) error {
	if _, err := tx.GetProject(ctx, p.ID); err != nil {
		return err
	}
	tx.projects[p.ID] = p
	return nil
}

func (tx *stagedTx) GetDonation(_ context.Context, id core.ProjectID, donor core.Identity) (core.Amount, error) {
	k := donationKey{id, donor}
	if amount, ok := tx.donations[k]; ok {
		return amount, nil
	}
	return tx.store.donations[k], nil
}

func (tx *stagedTx) SetDonation(ctx context.Context, id core.ProjectID, donor core.Identity, amount core.Amount) error {
	if _, err := tx.GetProject(ctx, id); err != nil {
		return err
	}
	if amount < 0 {
		return core.ErrInvalidAmount
	}
	tx.donations[donationKey{id, donor}] = amount
	return nil
}

func (tx *stagedTx) AppendEvent(_ context.Context, ev core.Event) error {
	tx.events = append(tx.events, ev)
	return nil
}
