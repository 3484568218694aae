package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"geneledger/contexts/data-marketplace/dataset-registry/adapters/memory"
	postgresadapter "geneledger/contexts/data-marketplace/dataset-registry/adapters/postgres"
	sqliteadapter "geneledger/contexts/data-marketplace/dataset-registry/adapters/sqlite"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
	"geneledger/internal/platform/config"
	"geneledger/internal/platform/db"
)

// Storage bundles the persistence ports of one storage driver.
type Storage struct {
	Driver      string
	Repository  ports.Repository
	Outbox      ports.OutboxRepository
	Idempotency ports.IdempotencyStore
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	// Memory is set only for the memory driver.
	Memory *memory.Store

	migrate func(ctx context.Context) error
	close   func() error
}

// OpenStorage connects the configured driver. Postgres tables are migrated
// on open; SQLite creates its schema itself.
func OpenStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		store := memory.NewStore(logger)
		return &Storage{
			Driver:      cfg.Storage,
			Repository:  store,
			Outbox:      store,
			Idempotency: memory.NewIdempotencyCache(),
			Clock:       store,
			IDGenerator: store,
			Memory:      store,
		}, nil
	case config.StoragePostgres:
		pg, err := db.Connect(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		storage := &Storage{
			Driver:      cfg.Storage,
			Repository:  repo,
			Outbox:      repo,
			Idempotency: repo,
			Clock:       postgresadapter.SystemClock{},
			IDGenerator: postgresadapter.UUIDGenerator{},
			migrate:     repo.Migrate,
			close:       pg.Close,
		}
		if err := storage.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return storage, nil
	case config.StorageSQLite:
		store, err := sqliteadapter.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Driver:      cfg.Storage,
			Repository:  store,
			Outbox:      store,
			Idempotency: store,
			Clock:       postgresadapter.SystemClock{},
			IDGenerator: postgresadapter.UUIDGenerator{},
			close:       store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage)
	}
}

func (s *Storage) Migrate(ctx context.Context) error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate(ctx)
}

func (s *Storage) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}
