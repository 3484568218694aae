package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

// Repository persists registry state in Postgres. Every Save* call writes its
// rows and the outbox row in one transaction.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates the registry tables.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&datasetModel{},
		&grantModel{},
		&escrowModel{},
		&withdrawalModel{},
		&idempotencyModel{},
		&outboxModel{},
	)
}

func (r *Repository) LoadSnapshot(ctx context.Context) (ports.Snapshot, error) {
	var snapshot ports.Snapshot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var datasetRows []datasetModel
		if err := tx.Order("dataset_id ASC").Find(&datasetRows).Error; err != nil {
			return err
		}
		var grantRows []grantModel
		if err := tx.Find(&grantRows).Error; err != nil {
			return err
		}
		var escrowRows []escrowModel
		if err := tx.Find(&escrowRows).Error; err != nil {
			return err
		}

		snapshot.Datasets = make([]entities.Dataset, 0, len(datasetRows))
		for _, row := range datasetRows {
			dataset, err := row.toEntity()
			if err != nil {
				return err
			}
			snapshot.Datasets = append(snapshot.Datasets, dataset)
		}
		snapshot.Grants = make([]entities.AccessGrant, 0, len(grantRows))
		for _, row := range grantRows {
			grant, err := row.toEntity()
			if err != nil {
				return err
			}
			snapshot.Grants = append(snapshot.Grants, grant)
		}
		snapshot.Accounts = make([]entities.EscrowAccount, 0, len(escrowRows))
		for _, row := range escrowRows {
			account, err := row.toEntity()
			if err != nil {
				return err
			}
			snapshot.Accounts = append(snapshot.Accounts, account)
		}
		return nil
	})
	if err != nil {
		return ports.Snapshot{}, err
	}

	r.logger.Debug("registry snapshot loaded from postgres",
		"event", "postgres_load_snapshot",
		"module", "data-marketplace/dataset-registry",
		"layer", "adapter",
		"datasets", len(snapshot.Datasets),
		"grants", len(snapshot.Grants),
	)
	return snapshot, nil
}

func (r *Repository) LoadDataset(ctx context.Context, datasetID uint64) (entities.Dataset, error) {
	var row datasetModel
	err := r.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Dataset{}, &domainerrors.NotFoundError{DatasetID: datasetID}
		}
		return entities.Dataset{}, err
	}
	return row.toEntity()
}

func (r *Repository) LoadEscrow(ctx context.Context, owner entities.Principal) (entities.EscrowAccount, bool, error) {
	var row escrowModel
	err := r.db.WithContext(ctx).
		Where("owner = ?", owner.String()).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.EscrowAccount{}, false, nil
		}
		return entities.EscrowAccount{}, false, err
	}
	account, err := row.toEntity()
	if err != nil {
		return entities.EscrowAccount{}, false, err
	}
	return account, true, nil
}

func (r *Repository) SaveDatasetWithOutbox(ctx context.Context, dataset entities.Dataset, event ports.EventEnvelope) error {
	row, err := datasetModelFromEntity(dataset)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}
		return insertOutbox(tx, event)
	})
}

func (r *Repository) SavePurchaseWithOutbox(
	ctx context.Context,
	grant entities.AccessGrant,
	account entities.EscrowAccount,
	event ports.EventEnvelope,
) error {
	grantRow := grantModelFromEntity(grant)
	escrowRow := escrowModelFromEntity(account)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&grantRow).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}
		if err := upsertEscrow(tx, escrowRow); err != nil {
			return err
		}
		return insertOutbox(tx, event)
	})
}

func (r *Repository) SaveWithdrawalWithOutbox(
	ctx context.Context,
	account entities.EscrowAccount,
	withdrawal entities.Withdrawal,
	event ports.EventEnvelope,
) error {
	escrowRow := escrowModelFromEntity(account)
	withdrawalRow := withdrawalModelFromEntity(withdrawal)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertEscrow(tx, escrowRow); err != nil {
			return err
		}
		if err := tx.Create(&withdrawalRow).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}
		return insertOutbox(tx, event)
	})
}

func (r *Repository) UpdateWithdrawal(ctx context.Context, withdrawal entities.Withdrawal, event *ports.EventEnvelope) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&withdrawalModel{}).
			Where("withdrawal_id = ?", withdrawal.WithdrawalID).
			Updates(map[string]any{
				"status":         string(withdrawal.Status),
				"settlement_ref": withdrawal.SettlementRef,
				"failure_reason": withdrawal.FailureReason,
				"updated_at":     withdrawal.UpdatedAt.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		if event == nil {
			return nil
		}
		return insertOutbox(tx, *event)
	})
}

func (r *Repository) ListWithdrawals(ctx context.Context, owner entities.Principal) ([]entities.Withdrawal, error) {
	var rows []withdrawalModel
	if err := r.db.WithContext(ctx).
		Where("owner = ?", owner.String()).
		Order("created_at ASC").
		Order("withdrawal_id ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.Withdrawal, 0, len(rows))
	for _, row := range rows {
		item, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}

	if row.toPort().Expired(now) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", key).
			Delete(&idempotencyModel{}).
			Error; err != nil {
			return ports.IdempotencyRecord{}, false, err
		}
		return ports.IdempotencyRecord{}, false, nil
	}

	return row.toPort(), true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModelFromPort(record)
	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", record.Key).
		First(&existing).
		Error; err != nil {
		return err
	}
	if existing.RequestHash != record.RequestHash {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Order("outbox_id ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outboxStatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func upsertEscrow(tx *gorm.DB, row escrowModel) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
	}).Create(&row).Error
}

func insertOutbox(tx *gorm.DB, event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    event.OccurredAt.UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
