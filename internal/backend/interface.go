// Package backend builds the ledger's persistence layer, and the optional
// broker publisher, from configuration.
package backend

import (
	"context"

	"crowdfund/internal/amqp"
	"crowdfund/internal/asset"
	"crowdfund/internal/ledger"
	"crowdfund/internal/services"
)

// Pinger reports whether the backend can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult is everything a command needs to run a ledger on a backend.
type BackendResult struct {
	Store  ledger.Store
	Outbox services.Outbox
	// Ready is nil when the backend has nothing to check.
	Ready Pinger
	// Assets is the asset system the ledger moves value through. Its state
	// lives as long as the ledger's.
	Assets asset.Bank
	// Publisher is nil unless an AMQP URL is configured.
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	SQLiteDBPath string
	AssetDBPath  string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
