package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"crowdfund/internal/asset"
	"crowdfund/internal/core"
	"crowdfund/internal/log"
)

// AssetBank is a durable asset system: balances and allowances per owner and
// asset. It lives in a database file of its own because the ledger calls it
// while holding a write transaction on the ledger database.
type AssetBank struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

var _ asset.Bank = (*AssetBank)(nil)

func NewAssetBank(dbPath string, logger *log.Logger) (*AssetBank, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create asset db directory: %w", err)
	}
	if logger == nil {
		logger = log.Nop()
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open asset database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping asset database: %w", err)
	}
	if err := RunAssetMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run asset migrations: %w", err)
	}

	return &AssetBank{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentAsset),
	}, nil
}

func (b *AssetBank) Close() error {
	return b.db.Close()
}

// Client returns a Transferer acting as caller.
func (b *AssetBank) Client(caller core.Identity) asset.Transferer {
	return &assetClient{bank: b, caller: caller}
}

// Mint credits amount of assetID to owner.
func (b *AssetBank) Mint(ctx context.Context, owner core.Identity, assetID core.AssetID, amount core.Amount) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	return b.update(ctx, func(q *Queries) error {
		balance, err := loadBalance(ctx, q, owner, assetID)
		if err != nil {
			return err
		}
		next, err := balance.Add(amount)
		if err != nil {
			return err
		}
		return q.SetAssetBalance(ctx, string(owner), string(assetID), int64(next))
	})
}

// Approve sets the amount spender may move out of owner's balance.
func (b *AssetBank) Approve(ctx context.Context, owner, spender core.Identity, assetID core.AssetID, amount core.Amount) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}
	if err := b.queries.SetAllowance(ctx, string(owner), string(spender), string(assetID), int64(amount)); err != nil {
		return fmt.Errorf("set allowance: %w", err)
	}
	return nil
}

func (b *AssetBank) BalanceOf(ctx context.Context, owner core.Identity, assetID core.AssetID) (core.Amount, error) {
	return loadBalance(ctx, b.queries, owner, assetID)
}

func (b *AssetBank) update(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(b.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			b.logger.ErrorContext(ctx, "Rollback failed", log.FieldError, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (b *AssetBank) move(ctx context.Context, q *Queries, from, to core.Identity, assetID core.AssetID, amount core.Amount) error {
	src, err := loadBalance(ctx, q, from, assetID)
	if err != nil {
		return err
	}
	if src < amount {
		return fmt.Errorf("move %s from %s: %w", amount, from, core.ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	dst, err := loadBalance(ctx, q, to, assetID)
	if err != nil {
		return err
	}
	credited, err := dst.Add(amount)
	if err != nil {
		return err
	}
	if err := q.SetAssetBalance(ctx, string(from), string(assetID), int64(src-amount)); err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if err := q.SetAssetBalance(ctx, string(to), string(assetID), int64(credited)); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}

// assetClient is an AssetBank view bound to one calling identity.
type assetClient struct {
	bank   *AssetBank
	caller core.Identity
}

func (c *assetClient) BalanceOf(ctx context.Context, owner core.Identity, assetID core.AssetID) (core.Amount, error) {
	return c.bank.BalanceOf(ctx, owner, assetID)
}

func (c *assetClient) Allowance(ctx context.Context, owner, spender core.Identity, assetID core.AssetID) (core.Amount, error) {
	return loadAllowance(ctx, c.bank.queries, owner, spender, assetID)
}

func (c *assetClient) TransferFrom(ctx context.Context, from, to core.Identity, assetID core.AssetID, amount core.Amount) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	return c.bank.update(ctx, func(q *Queries) error {
		allowance, err := loadAllowance(ctx, q, from, c.caller, assetID)
		if err != nil {
			return err
		}
		if allowance < amount {
			return fmt.Errorf("spend %s of %s for %s: %w", amount, from, c.caller, core.ErrInsufficientAllowance)
		}
		if err := c.bank.move(ctx, q, from, to, assetID, amount); err != nil {
			return err
		}
		return q.SetAllowance(ctx, string(from), string(c.caller), string(assetID), int64(allowance-amount))
	})
}

func (c *assetClient) Transfer(ctx context.Context, to core.Identity, assetID core.AssetID, amount core.Amount) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	return c.bank.update(ctx, func(q *Queries) error {
		return c.bank.move(ctx, q, c.caller, to, assetID, amount)
	})
}

func loadBalance(ctx context.Context, q *Queries, owner core.Identity, assetID core.AssetID) (core.Amount, error) {
	amount, err := q.GetAssetBalance(ctx, string(owner), string(assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance of %s: %w", owner, err)
	}
	return core.Amount(amount), nil
}

func loadAllowance(ctx context.Context, q *Queries, owner, spender core.Identity, assetID core.AssetID) (core.Amount, error) {
	amount, err := q.GetAllowance(ctx, string(owner), string(spender), string(assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get allowance of %s: %w", owner, err)
	}
	return core.Amount(amount), nil
}
