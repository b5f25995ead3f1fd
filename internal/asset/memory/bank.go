package memory

import (
	"context"
	"fmt"
	"sync"

	"crowdfund/internal/asset"
	"crowdfund/internal/core"
)

type holding struct {
	owner core.Identity
	asset core.AssetID
}

type grant struct {
	owner   core.Identity
	spender core.Identity
	asset   core.AssetID
}

// Bank is an in-memory multi-asset balance and allowance table.
type Bank struct {
	mu         sync.Mutex
	balances   map[holding]core.Amount
	allowances map[grant]core.Amount
}

func NewBank() *Bank {
	return &Bank{
		balances:   make(map[holding]core.Amount),
		allowances: make(map[grant]core.Amount),
	}
}

// Mint credits amount of asset to owner.
func (b *Bank) Mint(_ context.Context, owner core.Identity, assetID core.AssetID, amount core.Amount) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	k := holding{owner, assetID}
	next, err := b.balances[k].Add(amount)
	if err != nil {
		return err
	}
	b.balances[k] = next
	return nil
}

// Approve sets the amount spender may move out of owner's balance.
func (b *Bank) Approve(_ context.Context, owner, spender core.Identity, assetID core.AssetID, amount core.Amount) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[grant{owner, spender, assetID}] = amount
	return nil
}

// Balance returns owner's balance without going through a client.
func (b *Bank) Balance(owner core.Identity, assetID core.AssetID) core.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[holding{owner, assetID}]
}

func (b *Bank) BalanceOf(_ context.Context, owner core.Identity, assetID core.AssetID) (core.Amount, error) {
	return b.Balance(owner, assetID), nil
}

// Client returns a Transferer acting as caller.
func (b *Bank) Client(caller core.Identity) asset.Transferer {
	return &Client{bank: b, caller: caller}
}

func (b *Bank) move(from, to core.Identity, assetID core.AssetID, amount core.Amount) error {
	src, dst := holding{from, assetID}, holding{to, assetID}
	if b.balances[src] < amount {
		return fmt.Errorf("move %s from %s: %w", amount, from, core.ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	credited, err := b.balances[dst].Add(amount)
	if err != nil {
		return err
	}
	b.balances[src] -= amount
	b.balances[dst] = credited
	return nil
}

var _ asset.Bank = (*Bank)(nil)

// Client is a Bank view bound to one calling identity.
type Client struct {
	bank   *Bank
	caller core.Identity
}

func (c *Client) BalanceOf(_ context.Context, owner core.Identity, assetID core.AssetID) (core.Amount, error) {
	return c.bank.Balance(owner, assetID), nil
}

func (c *Client) Allowance(_ context.Context, owner, spender core.Identity, assetID core.AssetID) (core.Amount, error) {
	c.bank.mu.Lock()
	defer c.bank.mu.Unlock()
	return c.bank.allowances[grant{owner, spender, assetID}], nil
}

func (c *Client) TransferFrom(_ context.Context, from, to core.Identity, assetID core.AssetID, amount core.Amount) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	c.bank.mu.Lock()
	defer c.bank.mu.Unlock()

	g := grant{from, c.caller, assetID}
	if c.bank.allowances[g] < amount {
		return fmt.Errorf("spend %s of %s for %s: %w", amount, from, c.caller, core.ErrInsufficientAllowance)
	}
	if err := c.bank.move(from, to, assetID, amount); err != nil {
		return err
	}
	c.bank.allowances[g] -= amount
	return nil
}

func (c *Client) Transfer(_ context.Context, to core.Identity, assetID core.AssetID, amount core.Amount) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	c.bank.mu.Lock()
	defer c.bank.mu.Unlock()
	return c.bank.move(c.caller, to, assetID, amount)
}
