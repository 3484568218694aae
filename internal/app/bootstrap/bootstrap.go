package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	datasetregistry "geneledger/contexts/data-marketplace/dataset-registry"
	"geneledger/contexts/data-marketplace/dataset-registry/adapters/settlement"
	workerapp "geneledger/contexts/data-marketplace/dataset-registry/application/workers"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
	"geneledger/internal/platform/config"
	"geneledger/internal/platform/httpserver"
	"geneledger/internal/platform/messaging"
	"geneledger/internal/platform/metrics"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server       *httpserver.Server
	storage      *Storage
	relay        *workerapp.OutboxRelay
	pollInterval time.Duration
	logger       *slog.Logger
}

type WorkerApp struct {
	storage      *Storage
	outboxRelay  workerapp.OutboxRelay
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	storage, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registryMetrics := metrics.New()
	module := datasetregistry.NewModule(datasetregistry.Dependencies{
		Repository:     storage.Repository,
		Settlement:     buildSettlement(cfg, logger),
		Idempotency:    storage.Idempotency,
		Clock:          storage.Clock,
		IDGenerator:    storage.IDGenerator,
		Metrics:        registryMetrics,
		IdempotencyTTL: cfg.IdempotencyTTL,
		RequireCID:     cfg.RequireContentCID,
		Logger:         logger,
	})
	module.Store = storage.Memory
	if err := module.Registry.Restore(ctx); err != nil {
		_ = storage.Close()
		return nil, err
	}

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort), httpserver.Options{
		Metrics:            registryMetrics.Handler(),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	app := &APIApp{
		server:       server,
		storage:      storage,
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}
	if cfg.Storage == config.StorageMemory || cfg.EmbeddedRelay {
		app.relay = &workerapp.OutboxRelay{
			Outbox:    storage.Outbox,
			Publisher: messaging.NewBus(cfg.KafkaBrokers, logger),
			Clock:     storage.Clock,
			BatchSize: 100,
			Logger:    logger,
		}
	}
	return app, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if cfg.Storage == config.StorageMemory {
		return nil, errors.New("worker requires a durable storage driver (postgres or sqlite)")
	}
	storage, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &WorkerApp{
		storage: storage,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    storage.Outbox,
			Publisher: messaging.NewBus(cfg.KafkaBrokers, logger),
			Clock:     storage.Clock,
			BatchSize: 100,
			Logger:    logger,
		},
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts the server down.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"embedded_relay", a.relay != nil,
	)
	if a.relay != nil {
		go func() {
			_ = a.relay.Run(ctx, a.pollInterval)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	}
}

func (a *APIApp) Close() error {
	return a.storage.Close()
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if err := w.outboxRelay.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	return w.storage.Close()
}

func buildSettlement(cfg config.Config, logger *slog.Logger) ports.Settlement {
	if strings.TrimSpace(cfg.SettlementURL) == "" {
		logger.Warn("settlement url not configured, payouts are only recorded locally",
			"event", "bootstrap_settlement_local",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return settlement.NewRecorder()
	}
	return settlement.HTTPClient{
		Endpoint:   cfg.SettlementURL,
		MaxRetries: cfg.SettlementMaxRetries,
		Logger:     logger,
	}
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
