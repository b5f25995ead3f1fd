// Package ledger implements the crowdfunding bookkeeping engine: projects,
// per-donor balances and the two mutually exclusive withdrawal paths.
//
// Every mutating operation validates its preconditions, applies bookkeeping
// and then asks the asset Transferer to move value, all inside one Store unit
// of work. A failed transfer discards the bookkeeping, so the ledger never
// records value it did not receive or pay out. When the transfer succeeds but
// the unit of work then fails to commit, a donation is returned to the donor
// and an unrecorded payout is logged at error level for reconciliation.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crowdfund/internal/asset"
	"crowdfund/internal/core"
	"crowdfund/internal/log"
)

const tracerName = "crowdfund/internal/ledger"

// Ledger owns all project and donation state.
type Ledger struct {
	store   Store
	assets  asset.Transferer
	custody core.Identity
	clock   Clock
	logger  *log.Logger
	oplog   *log.StructuredLogger
	tracer  trace.Tracer
	locks   *projectLocks

	mu        sync.RWMutex
	listeners []Listener
}

type Option func(*Ledger)

func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Ledger) { l.tracer = tp.Tracer(tracerName) }
}

func WithListener(fn Listener) Option {
	return func(l *Ledger) { l.listeners = append(l.listeners, fn) }
}

// New builds a Ledger. custody is the identity the ledger holds funds under;
// assets must act as that identity.
func New(store Store, assets asset.Transferer, custody core.Identity, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		assets:  assets,
		custody: custody,
		clock:   SystemClock,
		tracer:  otel.Tracer(tracerName),
		locks:   newProjectLocks(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.Nop()
	}
	l.logger = l.logger.WithComponent(log.ComponentLedger)
	l.oplog = log.NewStructuredLogger(l.logger)
	return l
}

// Subscribe registers fn to receive every event committed from now on.
func (l *Ledger) Subscribe(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Custody returns the identity the ledger holds funds under.
func (l *Ledger) Custody() core.Identity {
	return l.custody
}

// CreateProject stores a new project with a deadline of now+duration and
// returns its sequential id.
func (l *Ledger) CreateProject(ctx context.Context, np core.NewProject) (core.ProjectID, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.CreateProject",
		trace.WithAttributes(attribute.String("asset_id", string(np.AssetID))))
	defer span.End()

	if err := np.Validate(); err != nil {
		return 0, l.reject(ctx, span, log.OpCreateProject, err, log.NewFields())
	}

	now := l.clock.Now()
	p := core.Project{
		Owner:     np.Owner,
		AssetID:   np.AssetID,
		Goal:      np.Goal,
		Deadline:  now.Add(np.Duration),
		CreatedAt: now,
	}

	var ev core.Event
	err := l.store.Update(ctx, func(tx Tx) error {
		id, err := tx.InsertProject(ctx, p)
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		p.ID = id
		ev = core.NewProjectCreated(p, now)
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		return 0, l.reject(ctx, span, log.OpCreateProject, err, log.NewFields())
	}

	span.SetAttributes(attribute.Int64("project_id", int64(p.ID)))
	l.oplog.LogCommitted(ctx, log.OpCreateProject, log.NewFields().WithProject(p))
	l.notify(ctx, ev)
	return p.ID, nil
}

// Donate records amount from donor toward project id and pulls the funds
// into custody. The donor must hold the amount and have approved the ledger
// to spend it.
func (l *Ledger) Donate(ctx context.Context, id core.ProjectID, donor core.Identity, amount core.Amount) error {
	ctx, span := l.startProjectSpan(ctx, "ledger.Donate", id)
	defer span.End()

	fields := log.NewFields().WithProjectID(id).WithTransfer(donor, amount)
	if err := donor.Validate(); err != nil {
		return l.reject(ctx, span, log.OpDonate, err, fields)
	}
	if err := amount.Validate(); err != nil {
		return l.reject(ctx, span, log.OpDonate, err, fields)
	}

	unlock := l.locks.lock(id)
	defer unlock()

	var (
		ev    core.Event
		p     core.Project
		moved bool
	)
	err := l.store.Update(ctx, func(tx Tx) error {
		var err error
		p, err = tx.GetProject(ctx, id)
		if err != nil {
			return err
		}
		now := l.clock.Now()
		if p.Settled {
			return core.ErrProjectSettled
		}
		if !p.AcceptsDonations(now) {
			return core.ErrDeadlinePassed
		}
		if err := l.checkFunds(ctx, donor, p.AssetID, amount); err != nil {
			return err
		}

		balance, err := tx.GetDonation(ctx, id, donor)
		if err != nil {
			return fmt.Errorf("get donation: %w", err)
		}
		if balance, err = balance.Add(amount); err != nil {
			return err
		}
		if p.AmountRaised, err = p.AmountRaised.Add(amount); err != nil {
			return err
		}
		if p.GoalReached() {
			p.Funded = true
		}
		if err := tx.SetDonation(ctx, id, donor, balance); err != nil {
			return fmt.Errorf("set donation: %w", err)
		}
		if err := tx.UpdateProject(ctx, p); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		ev = core.NewDonated(p, donor, amount, now)
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("append event: %w", err)
		}

		if err := l.assets.TransferFrom(ctx, donor, l.custody, p.AssetID, amount); err != nil {
			return fmt.Errorf("%w: %w", core.ErrTransferFailed, err)
		}
		moved = true
		return nil
	})
	if err != nil {
		if moved {
			err = l.returnDonation(ctx, p, donor, amount, err)
		}
		return l.reject(ctx, span, log.OpDonate, err, fields)
	}

	l.oplog.LogCommitted(ctx, log.OpDonate, log.NewFields().WithProject(p).WithTransfer(donor, amount))
	l.notify(ctx, ev)
	return nil
}

// WithdrawOwner pays the whole raise to the owner once the goal is reached,
// whether or not the deadline has passed. It resets the raise to zero, so a
// second call fails with ErrGoalNotReached.
func (l *Ledger) WithdrawOwner(ctx context.Context, id core.ProjectID, caller core.Identity) (core.Amount, error) {
	ctx, span := l.startProjectSpan(ctx, "ledger.WithdrawOwner", id)
	defer span.End()

	unlock := l.locks.lock(id)
	defer unlock()

	var (
		ev     core.Event
		p      core.Project
		amount core.Amount
		moved  bool
	)
	err := l.store.Update(ctx, func(tx Tx) error {
		var err error
		p, err = tx.GetProject(ctx, id)
		if err != nil {
			return err
		}
		if caller != p.Owner {
			return core.ErrNotOwner
		}
		if !p.GoalReached() {
			return core.ErrGoalNotReached
		}

		amount = p.AmountRaised
		p.AmountRaised = 0
		p.Funded = true
		p.Settled = true
		if err := tx.UpdateProject(ctx, p); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		ev = core.NewWithdrawnByOwner(p, caller, amount, l.clock.Now())
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("append event: %w", err)
		}

		if err := l.assets.Transfer(ctx, caller, p.AssetID, amount); err != nil {
			return fmt.Errorf("%w: %w", core.ErrTransferFailed, err)
		}
		moved = true
		return nil
	})
	if err != nil {
		if moved {
			l.logUnrecordedPayout(ctx, log.OpWithdrawOwner, p, caller, amount, err)
		}
		return 0, l.reject(ctx, span, log.OpWithdrawOwner, err, log.NewFields().WithProjectID(id).WithTransfer(caller, 0))
	}

	l.oplog.LogCommitted(ctx, log.OpWithdrawOwner, log.NewFields().WithProject(p).WithTransfer(caller, amount))
	l.notify(ctx, ev)
	return amount, nil
}

// WithdrawUser refunds donor's whole balance once the deadline has passed
// without the goal being reached. The balance is zeroed in place; a repeat
// call fails with ErrNothingToWithdraw.
func (l *Ledger) WithdrawUser(ctx context.Context, id core.ProjectID, donor core.Identity) (core.Amount, error) {
	ctx, span := l.startProjectSpan(ctx, "ledger.WithdrawUser", id)
	defer span.End()

	unlock := l.locks.lock(id)
	defer unlock()

	var (
		ev     core.Event
		p      core.Project
		amount core.Amount
		moved  bool
	)
	err := l.store.Update(ctx, func(tx Tx) error {
		var err error
		p, err = tx.GetProject(ctx, id)
		if err != nil {
			return err
		}
		now := l.clock.Now()
		if !p.Refundable(now) {
			// One guard; the error names whichever half failed.
			if p.Funded || p.GoalReached() {
				return core.ErrGoalReached
			}
			return core.ErrDeadlineNotPassed
		}

		amount, err = tx.GetDonation(ctx, id, donor)
		if err != nil {
			return fmt.Errorf("get donation: %w", err)
		}
		if amount == 0 {
			return core.ErrNothingToWithdraw
		}
		if err := tx.SetDonation(ctx, id, donor, 0); err != nil {
			return fmt.Errorf("set donation: %w", err)
		}
		if p.AmountRefunded, err = p.AmountRefunded.Add(amount); err != nil {
			return err
		}
		if err := tx.UpdateProject(ctx, p); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		ev = core.NewWithdrawnByUser(p, donor, amount, now)
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("append event: %w", err)
		}

		if err := l.assets.Transfer(ctx, donor, p.AssetID, amount); err != nil {
			return fmt.Errorf("%w: %w", core.ErrTransferFailed, err)
		}
		moved = true
		return nil
	})
	if err != nil {
		if moved {
			l.logUnrecordedPayout(ctx, log.OpWithdrawUser, p, donor, amount, err)
		}
		return 0, l.reject(ctx, span, log.OpWithdrawUser, err, log.NewFields().WithProjectID(id).WithTransfer(donor, 0))
	}

	l.oplog.LogCommitted(ctx, log.OpWithdrawUser, log.NewFields().WithProject(p).WithTransfer(donor, amount))
	l.notify(ctx, ev)
	return amount, nil
}

// Project returns a snapshot of project id.
func (l *Ledger) Project(ctx context.Context, id core.ProjectID) (core.Project, error) {
	return l.store.GetProject(ctx, id)
}

// TimeRemaining returns deadline-now, floored at zero.
func (l *Ledger) TimeRemaining(ctx context.Context, id core.ProjectID) (time.Duration, error) {
	p, err := l.store.GetProject(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.TimeRemaining(l.clock.Now()), nil
}

func (l *Ledger) GoalReached(ctx context.Context, id core.ProjectID) (bool, error) {
	p, err := l.store.GetProject(ctx, id)
	if err != nil {
		return false, err
	}
	return p.GoalReached(), nil
}

func (l *Ledger) AmountRaised(ctx context.Context, id core.ProjectID) (core.Amount, error) {
	p, err := l.store.GetProject(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.AmountRaised, nil
}

// DonationOf returns donor's current balance in project id.
func (l *Ledger) DonationOf(ctx context.Context, id core.ProjectID, donor core.Identity) (core.Amount, error) {
	if _, err := l.store.GetProject(ctx, id); err != nil {
		return 0, err
	}
	return l.store.GetDonation(ctx, id, donor)
}

func (l *Ledger) State(ctx context.Context, id core.ProjectID) (core.State, error) {
	p, err := l.store.GetProject(ctx, id)
	if err != nil {
		return "", err
	}
	return p.State(l.clock.Now()), nil
}

func (l *Ledger) ListProjects(ctx context.Context) ([]core.Project, error) {
	return l.store.ListProjects(ctx)
}

func (l *Ledger) ListDonations(ctx context.Context, id core.ProjectID) ([]core.Donation, error) {
	if _, err := l.store.GetProject(ctx, id); err != nil {
		return nil, err
	}
	return l.store.ListDonations(ctx, id)
}

// Now exposes the ledger clock to adapters that report time remaining.
func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

func (l *Ledger) checkFunds(ctx context.Context, donor core.Identity, assetID core.AssetID, amount core.Amount) error {
	balance, err := l.assets.BalanceOf(ctx, donor, assetID)
	if err != nil {
		return fmt.Errorf("balance of %s: %w", donor, err)
	}
	if balance < amount {
		return core.ErrInsufficientBalance
	}
	allowance, err := l.assets.Allowance(ctx, donor, l.custody, assetID)
	if err != nil {
		return fmt.Errorf("allowance of %s: %w", donor, err)
	}
	if allowance < amount {
		return core.ErrInsufficientAllowance
	}
	return nil
}

// returnDonation pays back a donation whose transfer into custody succeeded
// but whose bookkeeping failed to commit.
func (l *Ledger) returnDonation(ctx context.Context, p core.Project, donor core.Identity, amount core.Amount, cause error) error {
	fields := log.NewFields().WithProject(p).WithTransfer(donor, amount).WithError(cause)
	if err := l.assets.Transfer(context.WithoutCancel(ctx), donor, p.AssetID, amount); err != nil {
		l.logger.ErrorContext(ctx, "Donation received but not recorded, return to donor failed",
			append(fields.ToSlice(), "return_error", err.Error())...)
		return fmt.Errorf("record donation: %w (return to %s failed: %v)", cause, donor, err)
	}
	l.logger.ErrorContext(ctx, "Donation returned to donor after failed commit", fields.ToSlice()...)
	return fmt.Errorf("record donation: %w", cause)
}

// logUnrecordedPayout reports value that left custody without the matching
// bookkeeping. It cannot be pulled back, so it needs manual reconciliation.
func (l *Ledger) logUnrecordedPayout(ctx context.Context, op string, p core.Project, recipient core.Identity, amount core.Amount, cause error) {
	l.logger.ErrorContext(ctx, "Payout transferred but not recorded",
		log.NewFields().
			WithOperation(op).
			WithProject(p).
			WithTransfer(recipient, amount).
			WithError(cause).
			ToSlice()...)
}

func (l *Ledger) startProjectSpan(ctx context.Context, name string, id core.ProjectID) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("project_id", int64(id))))
}

func (l *Ledger) reject(ctx context.Context, span trace.Span, op string, err error, fields log.LogFields) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, core.ErrorKind(err))
	l.oplog.LogRejected(ctx, op, err, fields)
	return err
}

func (l *Ledger) notify(ctx context.Context, ev core.Event) {
	l.mu.RLock()
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, ev)
	}
}
