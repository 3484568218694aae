package datasetregistry

import (
	"log/slog"
	"time"

	httpadapter "geneledger/contexts/data-marketplace/dataset-registry/adapters/http"
	"geneledger/contexts/data-marketplace/dataset-registry/adapters/memory"
	"geneledger/contexts/data-marketplace/dataset-registry/adapters/settlement"
	"geneledger/contexts/data-marketplace/dataset-registry/application"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
)

// Module is the composition surface of the dataset registry.
// Runtime wiring should consume Handler; Registry and Store are exposed for
// tests and operator tooling.
type Module struct {
	Handler  httpadapter.Handler
	Registry *application.Registry
	Store    *memory.Store
}

type Dependencies struct {
	Repository     ports.Repository
	Settlement     ports.Settlement
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	Metrics        ports.Metrics
	IdempotencyTTL time.Duration
	RequireCID     bool
	Logger         *slog.Logger
}

// NewModule wires the registry against explicit ports. Call
// Registry.Restore before serving traffic when the repository holds state.
func NewModule(deps Dependencies) Module {
	registry := application.NewRegistry(application.RegistryConfig{
		Repository:     deps.Repository,
		Settlement:     deps.Settlement,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGenerator:    deps.IDGenerator,
		Metrics:        deps.Metrics,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	})
	return Module{
		Handler: httpadapter.Handler{
			Registry:   registry,
			RequireCID: deps.RequireCID,
			Logger:     deps.Logger,
		},
		Registry: registry,
	}
}

// NewInMemoryModule wires the registry against the memory store, the go-cache
// idempotency store and a recording settlement that always succeeds.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore(logger)
	module := NewModule(Dependencies{
		Repository:     store,
		Settlement:     settlement.NewRecorder(),
		Idempotency:    memory.NewIdempotencyCache(),
		Clock:          store,
		IDGenerator:    store,
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
