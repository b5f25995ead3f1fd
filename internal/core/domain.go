package core

import (
	"strconv"
	"strings"
	"time"
)

const (
	StateOpen          State = "open"
	StateClosedSuccess State = "closed_success"
	StateClosedFailed  State = "closed_failed"
)

type (
	ProjectID int64

	// Identity is an opaque account name: project owners, donors and the
	// ledger's own custody account.
	Identity string

	AssetID string

	State string

	Project struct {
		ID           ProjectID
		Owner        Identity
		AssetID      AssetID
		Goal         Amount
		AmountRaised Amount
		// AmountRefunded totals donor refunds; AmountRaised is never reduced
		// by a refund.
		AmountRefunded Amount
		Deadline       time.Time
		CreatedAt      time.Time
		// Funded latches once AmountRaised reaches Goal.
		Funded bool
		// Settled is set by the owner withdrawal.
		Settled bool
	}

	Donation struct {
		ProjectID ProjectID
		Donor     Identity
		Amount    Amount
	}

	// NewProject holds the caller-supplied part of a project.
	NewProject struct {
		Owner    Identity
		Duration time.Duration
		Goal     Amount
		AssetID  AssetID
	}
)

func (id ProjectID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseProjectID parses a decimal project id.
func ParseProjectID(s string) (ProjectID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, ErrProjectNotFound
	}
	return ProjectID(v), nil
}

func (i Identity) Validate() error {
	if strings.TrimSpace(string(i)) == "" || len(i) > 128 {
		return ErrInvalidIdentity
	}
	return nil
}

func (a AssetID) Validate() error {
	if strings.TrimSpace(string(a)) == "" || len(a) > 128 {
		return ErrInvalidAsset
	}
	return nil
}

func (np NewProject) Validate() error {
	if err := np.Owner.Validate(); err != nil {
		return err
	}
	if err := np.AssetID.Validate(); err != nil {
		return err
	}
	if np.Duration < 0 {
		return ErrInvalidDuration
	}
	// Zero-goal projects would be funded from creation.
	if np.Goal <= 0 {
		return ErrInvalidGoal
	}
	return nil
}

// GoalReached reports whether the current raise covers the goal.
func (p Project) GoalReached() bool {
	return p.AmountRaised >= p.Goal
}

// AcceptsDonations reports whether now is within the donation window.
// The deadline itself is still inside the window.
func (p Project) AcceptsDonations(now time.Time) bool {
	return !now.After(p.Deadline)
}

// Refundable reports whether donors may reclaim their balances: the window
// closed without the goal ever being reached.
func (p Project) Refundable(now time.Time) bool {
	return !p.Funded && p.AmountRaised < p.Goal && now.After(p.Deadline)
}

// TimeRemaining returns the time left until the deadline, floored at zero.
func (p Project) TimeRemaining(now time.Time) time.Duration {
	if d := p.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (p Project) State(now time.Time) State {
	switch {
	case p.Funded || p.GoalReached():
		return StateClosedSuccess
	case now.After(p.Deadline):
		return StateClosedFailed
	default:
		return StateOpen
	}
}
