// Package asset defines the boundary to the fungible-asset system that
// actually moves value on behalf of the ledger.
package asset

import (
	"context"

	"crowdfund/internal/core"
)

// Transferer is bound to a single calling identity: TransferFrom spends an
// allowance granted to that identity, Transfer pays out of its balance.
// Transfers either succeed fully or leave every balance untouched.
type Transferer interface {
	BalanceOf(ctx context.Context, owner core.Identity, asset core.AssetID) (core.Amount, error)
	Allowance(ctx context.Context, owner, spender core.Identity, asset core.AssetID) (core.Amount, error)
	TransferFrom(ctx context.Context, from, to core.Identity, asset core.AssetID, amount core.Amount) error
	Transfer(ctx context.Context, to core.Identity, asset core.AssetID, amount core.Amount) error
}

// Bank is an asset system the service can run against: it hands out
// Transferers bound to a caller and offers the administrative calls used to
// fund accounts and grant allowances.
type Bank interface {
	Client(caller core.Identity) Transferer
	Mint(ctx context.Context, owner core.Identity, asset core.AssetID, amount core.Amount) error
	Approve(ctx context.Context, owner, spender core.Identity, asset core.AssetID, amount core.Amount) error
	BalanceOf(ctx context.Context, owner core.Identity, asset core.AssetID) (core.Amount, error)
}
