package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Project struct {
	ID             int64
	Owner          string
	AssetID        string
	Goal           int64
	AmountRaised   int64
	AmountRefunded int64
	Deadline       int64
	Funded         bool
	Settled        bool
	CreatedAt      int64
}

type Donation struct {
	ProjectID int64
	Donor     string
	Amount    int64
}

type LedgerEvent struct {
	Seq       int64
	Payload   string
	Status    string
	Attempts  int64
	LastError string
	UpdatedAt int64
}

const projectColumns = `id, owner, asset_id, goal, amount_raised, amount_refunded, deadline, funded, settled, created_at`

func scanProject(row interface{ Scan(...interface{}) error }) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Owner, &p.AssetID, &p.Goal, &p.AmountRaised, &p.AmountRefunded,
		&p.Deadline, &p.Funded, &p.Settled, &p.CreatedAt)
	return p, err
}

const createProject = `INSERT INTO projects (owner, asset_id, goal, amount_raised, amount_refunded, deadline, funded, settled, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type CreateProjectParams struct {
	Owner          string
	AssetID        string
	Goal           int64
	AmountRaised   int64
	AmountRefunded int64
	Deadline       int64
	Funded         bool
	Settled        bool
	CreatedAt      int64
}

func (q *Queries) CreateProject(ctx context.Context, arg CreateProjectParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createProject,
		arg.Owner, arg.AssetID, arg.Goal, arg.AmountRaised, arg.AmountRefunded,
		arg.Deadline, arg.Funded, arg.Settled, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getProject = `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

func (q *Queries) GetProject(ctx context.Context, id int64) (Project, error) {
	return scanProject(q.db.QueryRowContext(ctx, getProject, id))
}

const updateProject = `UPDATE projects
SET amount_raised = ?, amount_refunded = ?, funded = ?, settled = ?
WHERE id = ?`

type UpdateProjectParams struct {
	ID             int64
	AmountRaised   int64
	AmountRefunded int64
	Funded         bool
	Settled        bool
}

func (q *Queries) UpdateProject(ctx context.Context, arg UpdateProjectParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateProject,
		arg.AmountRaised, arg.AmountRefunded, arg.Funded, arg.Settled, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listProjects = `SELECT ` + projectColumns + ` FROM projects ORDER BY id`

func (q *Queries) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := q.db.QueryContext(ctx, listProjects)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const getDonation = `SELECT amount FROM donations WHERE project_id = ? AND donor = ?`

func (q *Queries) GetDonation(ctx context.Context, projectID int64, donor string) (int64, error) {
	var amount int64
	err := q.db.QueryRowContext(ctx, getDonation, projectID, donor).Scan(&amount)
	return amount, err
}

const upsertDonation = `INSERT INTO donations (project_id, donor, amount, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (project_id, donor) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`

type UpsertDonationParams struct {
	ProjectID int64
	Donor     string
	Amount    int64
	UpdatedAt int64
}

func (q *Queries) UpsertDonation(ctx context.Context, arg UpsertDonationParams) error {
	_, err := q.db.ExecContext(ctx, upsertDonation, arg.ProjectID, arg.Donor, arg.Amount, arg.UpdatedAt)
	return err
}

const listDonations = `SELECT project_id, donor, amount FROM donations WHERE project_id = ? ORDER BY donor`

func (q *Queries) ListDonations(ctx context.Context, projectID int64) ([]Donation, error) {
	rows, err := q.db.QueryContext(ctx, listDonations, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Donation
	for rows.Next() {
		var d Donation
		if err := rows.Scan(&d.ProjectID, &d.Donor, &d.Amount); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const insertEvent = `INSERT INTO ledger_events (event_id, event_type, project_id, payload, status, occurred_at, updated_at)
VALUES (?, ?, ?, ?, 'pending', ?, ?)`

type InsertEventParams struct {
	EventID    string
	EventType  string
	ProjectID  int64
	Payload    string
	OccurredAt int64
	UpdatedAt  int64
}

func (q *Queries) InsertEvent(ctx context.Context, arg InsertEventParams) error {
	_, err := q.db.ExecContext(ctx, insertEvent,
		arg.EventID, arg.EventType, arg.ProjectID, arg.Payload, arg.OccurredAt, arg.UpdatedAt)
	return err
}

const getPendingEvents = `SELECT seq, payload, status, attempts, last_error, updated_at
FROM ledger_events WHERE status = 'pending' ORDER BY seq LIMIT ?`

func (q *Queries) GetPendingEvents(ctx context.Context, limit int64) ([]LedgerEvent, error) {
	rows, err := q.db.QueryContext(ctx, getPendingEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LedgerEvent
	for rows.Next() {
		var e LedgerEvent
		if err := rows.Scan(&e.Seq, &e.Payload, &e.Status, &e.Attempts, &e.LastError, &e.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const setEventStatus = `UPDATE ledger_events SET status = ?, updated_at = ? WHERE seq = ?`

func (q *Queries) SetEventStatus(ctx context.Context, seq int64, status string, updatedAt int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, setEventStatus, status, updatedAt, seq)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const recordEventAttempt = `UPDATE ledger_events
SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
WHERE seq = ?`

func (q *Queries) RecordEventAttempt(ctx context.Context, seq int64, status, lastError string, updatedAt int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, recordEventAttempt, status, lastError, updatedAt, seq)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const resetStaleProcessing = `UPDATE ledger_events SET status = 'pending' WHERE status = 'processing'`

func (q *Queries) ResetStaleProcessing(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, resetStaleProcessing)
	return err
}

const retryFailedEvents = `UPDATE ledger_events SET status = 'pending', attempts = 0 WHERE status = 'failed'`

func (q *Queries) RetryFailedEvents(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, retryFailedEvents)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const cleanupPublishedEvents = `DELETE FROM ledger_events WHERE status = 'published' AND updated_at < ?`

func (q *Queries) CleanupPublishedEvents(ctx context.Context, before int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, cleanupPublishedEvents, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countEventsByStatus = `SELECT status, COUNT(*) FROM ledger_events GROUP BY status`

type StatusCount struct {
	Status string
	Count  int64
}

func (q *Queries) CountEventsByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := q.db.QueryContext(ctx, countEventsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StatusCount
	for rows.Next() {
		var s StatusCount
		if err := rows.Scan(&s.Status, &s.Count); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const getAssetBalance = `SELECT amount FROM asset_balances WHERE owner = ? AND asset_id = ?`

func (q *Queries) GetAssetBalance(ctx context.Context, owner, assetID string) (int64, error) {
	var amount int64
	err := q.db.QueryRowContext(ctx, getAssetBalance, owner, assetID).Scan(&amount)
	return amount, err
}

const setAssetBalance = `INSERT INTO asset_balances (owner, asset_id, amount)
VALUES (?, ?, ?)
ON CONFLICT (owner, asset_id) DO UPDATE SET amount = excluded.amount`

func (q *Queries) SetAssetBalance(ctx context.Context, owner, assetID string, amount int64) error {
	_, err := q.db.ExecContext(ctx, setAssetBalance, owner, assetID, amount)
	return err
}

const getAllowance = `SELECT amount FROM asset_allowances WHERE owner = ? AND spender = ? AND asset_id = ?`

func (q *Queries) GetAllowance(ctx context.Context, owner, spender, assetID string) (int64, error) {
	var amount int64
	err := q.db.QueryRowContext(ctx, getAllowance, owner, spender, assetID).Scan(&amount)
	return amount, err
}

const setAllowance = `INSERT INTO asset_allowances (owner, spender, asset_id, amount)
VALUES (?, ?, ?, ?)
ON CONFLICT (owner, spender, asset_id) DO UPDATE SET amount = excluded.amount`

func (q *Queries) SetAllowance(ctx context.Context, owner, spender, assetID string, amount int64) error {
	_, err := q.db.ExecContext(ctx, setAllowance, owner, spender, assetID, amount)
	return err
}
