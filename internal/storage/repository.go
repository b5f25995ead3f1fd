// Package storage persists the ledger in SQLite. Schema changes are applied
// through embedded golang-migrate migrations when the repository opens.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crowdfund/internal/core"
	"crowdfund/internal/ledger"
	"crowdfund/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// migrates it to the latest schema.
func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if logger == nil {
		logger = log.Nop()
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps units of work strictly serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id core.ProjectID) (core.Project, error) {
	return loadProject(ctx, r.queries, id)
}

func (r *SQLiteRepository) GetDonation(ctx context.Context, id core.ProjectID, donor core.Identity) (core.Amount, error) {
	return loadDonation(ctx, r.queries, id, donor)
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := r.queries.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]core.Project, len(rows))
	for i, row := range rows {
		out[i] = projectFromRow(row)
	}
	return out, nil
}

func (r *SQLiteRepository) ListDonations(ctx context.Context, id core.ProjectID) ([]core.Donation, error) {
	rows, err := r.queries.ListDonations(ctx, int64(id))
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	out := make([]core.Donation, len(rows))
	for i, row := range rows {
		out[i] = core.Donation{
			ProjectID: core.ProjectID(row.ProjectID),
			Donor:     core.Identity(row.Donor),
			Amount:    core.Amount(row.Amount),
		}
	}
	return out, nil
}

// Update runs fn inside a SQL transaction, committing only when fn returns nil.
// The transaction is not bound to ctx cancellation: fn may move value through
// the asset system, and a cancelled caller must not roll back the bookkeeping
// for a transfer that already happened.
func (r *SQLiteRepository) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{queries: r.queries.WithTx(sqlTx), now: r.now}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			r.logger.ErrorContext(ctx, "Rollback failed", log.FieldError, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	queries *Queries
	now     func() time.Time
}

func (tx *sqliteTx) InsertProject(ctx context.Context, p core.Project) (core.ProjectID, error) {
	id, err := tx.queries.CreateProject(ctx, CreateProjectParams{
		Owner:          string(p.Owner),
		AssetID:        string(p.AssetID),
		Goal:           int64(p.Goal),
		AmountRaised:   int64(p.AmountRaised),
		AmountRefunded: int64(p.AmountRefunded),
		Deadline:       p.Deadline.UnixNano(),
		Funded:         p.Funded,
		Settled:        p.Settled,
		CreatedAt:      p.CreatedAt.UnixNano(),
	})
	if err != nil {
		return 0, fmt.Errorf("create project: %w", err)
	}
	return core.ProjectID(id), nil
}

func (tx *sqliteTx) GetProject(ctx context.Context, id core.ProjectID) (core.Project, error) {
	return loadProject(ctx, tx.queries, id)
}

func (tx *sqliteTx) UpdateProject(ctx context.Context, p core.Project) error {
	n, err := tx.queries.UpdateProject(ctx, UpdateProjectParams{
		ID:             int64(p.ID),
		AmountRaised:   int64(p.AmountRaised),
		AmountRefunded: int64(p.AmountRefunded),
		Funded:         p.Funded,
		Settled:        p.Settled,
	})
	if err != nil {
		return fmt.Errorf("update project %d: %w", p.ID, err)
	}
	if n == 0 {
		return core.ErrProjectNotFound
	}
	return nil
}

func (tx *sqliteTx) GetDonation(ctx context.Context, id core.ProjectID, donor core.Identity) (core.Amount, error) {
	return loadDonation(ctx, tx.queries, id, donor)
}

func (tx *sqliteTx) SetDonation(ctx context.Context, id core.ProjectID, donor core.Identity, amount core.Amount) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}
	if _, err := loadProject(ctx, tx.queries, id); err != nil {
		return err
	}
	err := tx.queries.UpsertDonation(ctx, UpsertDonationParams{
		ProjectID: int64(id),
		Donor:     string(donor),
		Amount:    int64(amount),
		UpdatedAt: tx.now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("upsert donation: %w", err)
	}
	return nil
}

func (tx *sqliteTx) AppendEvent(ctx context.Context, ev core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = tx.queries.InsertEvent(ctx, InsertEventParams{
		EventID:    ev.ID,
		EventType:  string(ev.Type),
		ProjectID:  int64(ev.ProjectID),
		Payload:    string(payload),
		OccurredAt: ev.OccurredAt.UnixNano(),
		UpdatedAt:  tx.now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// DequeueEvents returns up to limit pending outbox entries in commit order.
func (r *SQLiteRepository) DequeueEvents(ctx context.Context, limit int) ([]core.OutboxEntry, error) {
	rows, err := r.queries.GetPendingEvents(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending events: %w", err)
	}
	out := make([]core.OutboxEntry, 0, len(rows))
	for _, row := range rows {
		var ev core.Event
		if err := json.Unmarshal([]byte(row.Payload), &ev); err != nil {
			r.logger.ErrorContext(ctx, "Skipping undecodable outbox entry", "seq", row.Seq, log.FieldError, err)
			continue
		}
		out = append(out, core.OutboxEntry{
			Seq:       row.Seq,
			Event:     ev,
			Status:    core.OutboxStatus(row.Status),
			Attempts:  int(row.Attempts),
			LastError: row.LastError,
			UpdatedAt: time.Unix(0, row.UpdatedAt).UTC(),
		})
	}
	return out, nil
}

func (r *SQLiteRepository) MarkEventProcessing(ctx context.Context, seq int64) error {
	return r.setStatus(ctx, seq, core.OutboxProcessing)
}

func (r *SQLiteRepository) MarkEventPublished(ctx context.Context, seq int64) error {
	return r.setStatus(ctx, seq, core.OutboxPublished)
}

// MarkEventRetry counts a failed attempt and returns the entry to the queue.
func (r *SQLiteRepository) MarkEventRetry(ctx context.Context, seq int64, lastErr string) error {
	return r.recordAttempt(ctx, seq, core.OutboxPending, lastErr)
}

func (r *SQLiteRepository) MarkEventFailed(ctx context.Context, seq int64, lastErr string) error {
	if err := r.recordAttempt(ctx, seq, core.OutboxFailed, lastErr); err != nil {
		return err
	}
	r.logger.WarnContext(ctx, "Outbox entry marked failed", "seq", seq, log.FieldError, lastErr)
	return nil
}

func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	if err := r.queries.ResetStaleProcessing(ctx); err != nil {
		return fmt.Errorf("reset stale processing: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RetryFailedEvents(ctx context.Context) (int64, error) {
	n, err := r.queries.RetryFailedEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("retry failed events: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CleanupPublishedEvents(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.queries.CleanupPublishedEvents(ctx, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cleanup published events: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) OutboxStats(ctx context.Context) (core.OutboxStats, error) {
	counts, err := r.queries.CountEventsByStatus(ctx)
	if err != nil {
		return core.OutboxStats{}, fmt.Errorf("count events: %w", err)
	}
	var st core.OutboxStats
	for _, c := range counts {
		switch core.OutboxStatus(c.Status) {
		case core.OutboxPending:
			st.Pending = c.Count
		case core.OutboxProcessing:
			st.Processing = c.Count
		case core.OutboxPublished:
			st.Published = c.Count
		case core.OutboxFailed:
			st.Failed = c.Count
		}
	}
	return st, nil
}

func (r *SQLiteRepository) setStatus(ctx context.Context, seq int64, status core.OutboxStatus) error {
	n, err := r.queries.SetEventStatus(ctx, seq, string(status), r.now().UnixNano())
	if err != nil {
		return fmt.Errorf("set event %d %s: %w", seq, status, err)
	}
	if n == 0 {
		return fmt.Errorf("outbox entry %d: not found", seq)
	}
	return nil
}

func (r *SQLiteRepository) recordAttempt(ctx context.Context, seq int64, status core.OutboxStatus, lastErr string) error {
	n, err := r.queries.RecordEventAttempt(ctx, seq, string(status), lastErr, r.now().UnixNano())
	if err != nil {
		return fmt.Errorf("record attempt for event %d: %w", seq, err)
	}
	if n == 0 {
		return fmt.Errorf("outbox entry %d: not found", seq)
	}
	return nil
}

func loadProject(ctx context.Context, q *Queries, id core.ProjectID) (core.Project, error) {
	row, err := q.GetProject(ctx, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, core.ErrProjectNotFound
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project %d: %w", id, err)
	}
	return projectFromRow(row), nil
}

func loadDonation(ctx context.Context, q *Queries, id core.ProjectID, donor core.Identity) (core.Amount, error) {
	amount, err := q.GetDonation(ctx, int64(id), string(donor))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get donation: %w", err)
	}
	return core.Amount(amount), nil
}

func projectFromRow(row Project) core.Project {
	return core.Project{
		ID:             core.ProjectID(row.ID),
		Owner:          core.Identity(row.Owner),
		AssetID:        core.AssetID(row.AssetID),
		Goal:           core.Amount(row.Goal),
		AmountRaised:   core.Amount(row.AmountRaised),
		AmountRefunded: core.Amount(row.AmountRefunded),
		Deadline:       time.Unix(0, row.Deadline).UTC(),
		CreatedAt:      time.Unix(0, row.CreatedAt).UTC(),
		Funded:         row.Funded,
		Settled:        row.Settled,
	}
}
