package ledger

import (
	"context"
	"time"

	"crowdfund/internal/core"
)

// Ports for the ledger's persistence and time source.
type (
	// Reader serves point lookups. Each call observes a consistent copy.
	Reader interface {
		GetProject(ctx context.Context, id core.ProjectID) (core.Project, error)
		// GetDonation returns zero for a donor that never donated.
		GetDonation(ctx context.Context, id core.ProjectID, donor core.Identity) (core.Amount, error)
		ListProjects(ctx context.Context) ([]core.Project, error)
		ListDonations(ctx context.Context, id core.ProjectID) ([]core.Donation, error)
	}

	// Tx is the write view inside a unit of work.
	Tx interface {
		// InsertProject assigns the next sequential id and stores p.
		InsertProject(ctx context.Context, p core.Project) (core.ProjectID, error)
		GetProject(ctx context.Context, id core.ProjectID) (core.Project, error)
		UpdateProject(ctx context.Context, p core.Project) error
		GetDonation(ctx context.Context, id core.ProjectID, donor core.Identity) (core.Amount, error)
		SetDonation(ctx context.Context, id core.ProjectID, donor core.Identity, amount core.Amount) error
		AppendEvent(ctx context.Context, ev core.Event) error
	}

	// Store persists projects, donation balances and the event outbox.
	Store interface {
		Reader
		// Update runs fn as one unit of work: every write made through tx is
		// kept if fn returns nil and discarded otherwise.
		Update(ctx context.Context, fn func(tx Tx) error) error
	}

	Clock interface {
		Now() time.Time
	}

	// ClockFunc adapts a function to Clock.
	ClockFunc func() time.Time

	// Listener receives events after the operation that produced them has
	// committed.
	Listener func(ctx context.Context, ev core.Event)
)

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)
