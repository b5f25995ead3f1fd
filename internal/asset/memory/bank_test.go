package memory

import (
	"context"
	"errors"
	"testing"

	"crowdfund/internal/asset"
	"crowdfund/internal/core"
)

var _ asset.Transferer = (*Client)(nil)

func TestBankTransferFrom(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	if err := b.Mint(ctx, "donor", "TKN", 1000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	ledger := b.Client("ledger")

	if err := ledger.TransferFrom(ctx, "donor", "ledger", "TKN", 100); !errors.Is(err, core.ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}

	b.Approve(ctx, "donor", "ledger", "TKN", 600)
	if err := ledger.TransferFrom(ctx, "donor", "ledger", "TKN", 600); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := b.Balance("donor", "TKN"); got != 400 {
		t.Fatalf("expected donor balance 400, got %d", got)
	}
	if got := b.Balance("ledger", "TKN"); got != 600 {
		t.Fatalf("expected ledger balance 600, got %d", got)
	}
	if got, _ := ledger.Allowance(ctx, "donor", "ledger", "TKN"); got != 0 {
		t.Fatalf("expected allowance spent, got %d", got)
	}
}

func TestBankTransferFromInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	_ = b.Mint(ctx, "donor", "TKN", 50)
	b.Approve(ctx, "donor", "ledger", "TKN", 100)

	err := b.Client("ledger").TransferFrom(ctx, "donor", "ledger", "TKN", 100)
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("expected balance error, got %v", err)
	}
	if got := b.Balance("donor", "TKN"); got != 50 {
		t.Fatalf("failed transfer must not move funds, donor has %d", got)
	}
	if got, _ := b.Client("ledger").Allowance(ctx, "donor", "ledger", "TKN"); got != 100 {
		t.Fatalf("failed transfer must not spend allowance, got %d", got)
	}
}

func TestBankTransfer(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	_ = b.Mint(ctx, "ledger", "TKN", 300)

	c := b.Client("ledger")
	if err := c.Transfer(ctx, "owner", "TKN", 400); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("expected balance error, got %v", err)
	}
	if err := c.Transfer(ctx, "owner", "TKN", 300); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if b.Balance("owner", "TKN") != 300 || b.Balance("ledger", "TKN") != 0 {
		t.Fatalf("unexpected balances owner=%d ledger=%d", b.Balance("owner", "TKN"), b.Balance("ledger", "TKN"))
	}
	if err := c.Transfer(ctx, "owner", "TKN", 0); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestBankAssetsAreSeparate(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	_ = b.Mint(ctx, "alice", "AAA", 10)
	if got := b.Balance("alice", "BBB"); got != 0 {
		t.Fatalf("expected no BBB balance, got %d", got)
	}
}

func TestBankApproveRejectsNegative(t *testing.T) {
	b := NewBank()
	if err := b.Approve(context.Background(), "donor", "ledger", "TKN", -1); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}
