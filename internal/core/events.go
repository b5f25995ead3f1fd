package core

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventProjectCreated   EventType = "project.created"
	EventDonated          EventType = "donation.received"
	EventWithdrawnByOwner EventType = "withdrawal.owner"
	EventWithdrawnByUser  EventType = "withdrawal.donor"
)

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxPublished  OutboxStatus = "published"
	OutboxFailed     OutboxStatus = "failed"
)

type (
	EventType string

	// Event is a domain event emitted by a committed ledger operation.
	// Actor is the donor for donations and refunds, and the owner for
	// creation and owner withdrawals.
	Event struct {
		ID         string    `json:"id"`
		Type       EventType `json:"type"`
		ProjectID  ProjectID `json:"project_id"`
		Actor      Identity  `json:"actor"`
		Amount     Amount    `json:"amount"`
		AssetID    AssetID   `json:"asset_id"`
		Goal       Amount    `json:"goal,omitempty"`
		Deadline   time.Time `json:"deadline,omitempty"`
		OccurredAt time.Time `json:"occurred_at"`
	}

	OutboxStatus string

	// OutboxEntry is an event waiting to be relayed to the message broker.
	OutboxEntry struct {
		Seq       int64
		Event     Event
		Status    OutboxStatus
		Attempts  int
		LastError string
		UpdatedAt time.Time
	}

	OutboxStats struct {
		Pending    int64
		Processing int64
		Published  int64
		Failed     int64
	}
)

func newEvent(t EventType, p Project, actor Identity, amount Amount, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		ProjectID:  p.ID,
		Actor:      actor,
		Amount:     amount,
		AssetID:    p.AssetID,
		OccurredAt: at.UTC(),
	}
}

func NewProjectCreated(p Project, at time.Time) Event {
	ev := newEvent(EventProjectCreated, p, p.Owner, 0, at)
	ev.Goal = p.Goal
	ev.Deadline = p.Deadline.UTC()
	return ev
}

func NewDonated(p Project, donor Identity, amount Amount, at time.Time) Event {
	return newEvent(EventDonated, p, donor, amount, at)
}

func NewWithdrawnByOwner(p Project, owner Identity, amount Amount, at time.Time) Event {
	return newEvent(EventWithdrawnByOwner, p, owner, amount, at)
}

func NewWithdrawnByUser(p Project, donor Identity, amount Amount, at time.Time) Event {
	return newEvent(EventWithdrawnByUser, p, donor, amount, at)
}
