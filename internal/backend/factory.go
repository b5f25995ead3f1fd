package backend

import (
	"context"
	"errors"
	"fmt"

	"crowdfund/internal/amqp"
	assetmem "crowdfund/internal/asset/memory"
	"crowdfund/internal/log"
	"crowdfund/internal/storage"
	"crowdfund/internal/storage/memory"
)

type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentStorage)}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	bank, err := storage.NewAssetBank(config.AssetDBPath, f.logger)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize asset bank: %w", err)
	}

	// A broker that is down at startup is not fatal: events wait in the
	// outbox until a relay can publish them.
	var publisher *amqp.Client
	if config.AMQPURL != "" {
		publisher, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without relay", "error", err)
			publisher = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"asset_db_path", config.AssetDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Store:     repo,
		Outbox:    repo,
		Ready:     repo,
		Assets:    bank,
		Publisher: publisher,
		Cleanup: func() error {
			var errs []error
			if publisher != nil {
				errs = append(errs, publisher.Close())
			}
			errs = append(errs, bank.Close(), repo.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	store := memory.New()
	f.logger.Info("Initialized memory backend")
	return &BackendResult{
		Store:   store,
		Outbox:  store,
		Assets:  assetmem.NewBank(),
		Cleanup: func() error { return nil },
	}, nil
}
