package sqliteadapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
)

// Store persists registry state in a single SQLite file. Amounts are kept as
// decimal TEXT and times as unix nanoseconds.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; the registry already serializes writes.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}
	return store, nil
}

func (s *Store) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS registry_datasets (
			dataset_id INTEGER PRIMARY KEY,
			owner TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			content_ref TEXT,
			price TEXT NOT NULL,
			access_tier TEXT NOT NULL,
			tags TEXT,
			data_type TEXT,
			file_size INTEGER DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_datasets_owner ON registry_datasets(owner);

		CREATE TABLE IF NOT EXISTS registry_access_grants (
			dataset_id INTEGER NOT NULL,
			principal TEXT NOT NULL,
			amount TEXT NOT NULL,
			granted_at INTEGER NOT NULL,
			PRIMARY KEY (dataset_id, principal),
			FOREIGN KEY (dataset_id) REFERENCES registry_datasets(dataset_id)
		);

		CREATE TABLE IF NOT EXISTS registry_escrow_accounts (
			owner TEXT PRIMARY KEY,
			balance TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS registry_withdrawals (
			withdrawal_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			amount TEXT NOT NULL,
			status TEXT NOT NULL,
			settlement_ref TEXT,
			failure_reason TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_withdrawals_owner ON registry_withdrawals(owner);

		CREATE TABLE IF NOT EXISTS registry_idempotency (
			key TEXT PRIMARY KEY,
			request_hash TEXT NOT NULL,
			response_payload BLOB,
			expires_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS registry_outbox (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			outbox_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			partition_key TEXT,
			payload BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			sent_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_pending ON registry_outbox(sent_at, seq);
	`)
	if err != nil {
		return fmt.Errorf("failed to create registry tables: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadSnapshot(ctx context.Context) (ports.Snapshot, error) {
	var snapshot ports.Snapshot

	rows, err := s.db.QueryContext(ctx, `
		SELECT dataset_id, owner, title, description, content_ref, price, access_tier, tags, data_type, file_size, created_at
		FROM registry_datasets ORDER BY dataset_id ASC`)
	if err != nil {
		return ports.Snapshot{}, err
	}
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			rows.Close()
			return ports.Snapshot{}, err
		}
		snapshot.Datasets = append(snapshot.Datasets, dataset)
	}
	if err := closeRows(rows); err != nil {
		return ports.Snapshot{}, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT dataset_id, principal, amount, granted_at FROM registry_access_grants`)
	if err != nil {
		return ports.Snapshot{}, err
	}
	for rows.Next() {
		var (
			grant     entities.AccessGrant
			principal string
			amount    string
			grantedAt int64
		)
		if err := rows.Scan(&grant.DatasetID, &principal, &amount, &grantedAt); err != nil {
			rows.Close()
			return ports.Snapshot{}, err
		}
		if grant.Amount, err = entities.ParseAmount(amount); err != nil {
			rows.Close()
			return ports.Snapshot{}, err
		}
		grant.Principal = entities.Principal(principal)
		grant.GrantedAt = fromUnix(grantedAt)
		snapshot.Grants = append(snapshot.Grants, grant)
	}
	if err := closeRows(rows); err != nil {
		return ports.Snapshot{}, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT owner, balance, updated_at FROM registry_escrow_accounts`)
	if err != nil {
		return ports.Snapshot{}, err
	}
	for rows.Next() {
		account, err := scanEscrow(rows)
		if err != nil {
			rows.Close()
			return ports.Snapshot{}, err
		}
		snapshot.Accounts = append(snapshot.Accounts, account)
	}
	if err := closeRows(rows); err != nil {
		return ports.Snapshot{}, err
	}
	return snapshot, nil
}

func (s *Store) LoadDataset(ctx context.Context, datasetID uint64) (entities.Dataset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dataset_id, owner, title, description, content_ref, price, access_tier, tags, data_type, file_size, created_at
		FROM registry_datasets WHERE dataset_id = ?`, datasetID)
	dataset, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Dataset{}, &domainerrors.NotFoundError{DatasetID: datasetID}
	}
	return dataset, err
}

func (s *Store) LoadEscrow(ctx context.Context, owner entities.Principal) (entities.EscrowAccount, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT owner, balance, updated_at FROM registry_escrow_accounts WHERE owner = ?`, owner.String())
	account, err := scanEscrow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.EscrowAccount{}, false, nil
	}
	if err != nil {
		return entities.EscrowAccount{}, false, err
	}
	return account, true, nil
}

func (s *Store) SaveDatasetWithOutbox(ctx context.Context, dataset entities.Dataset, event ports.EventEnvelope) error {
	tags, err := json.Marshal(dataset.Tags)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO registry_datasets
				(dataset_id, owner, title, description, content_ref, price, access_tier, tags, data_type, file_size, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			dataset.DatasetID, dataset.Owner.String(), dataset.Title, dataset.Description, dataset.ContentRef,
			dataset.Price.String(), string(dataset.Tier), string(tags), string(dataset.DataType), dataset.FileSize,
			toUnix(dataset.CreatedAt),
		)
		if err != nil {
			return mapConstraint(err)
		}
		return insertOutbox(ctx, tx, event)
	})
}

func (s *Store) SavePurchaseWithOutbox(
	ctx context.Context,
	grant entities.AccessGrant,
	account entities.EscrowAccount,
	event ports.EventEnvelope,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO registry_access_grants (dataset_id, principal, amount, granted_at)
			VALUES (?, ?, ?, ?)`,
			grant.DatasetID, grant.Principal.String(), grant.Amount.String(), toUnix(grant.GrantedAt),
		)
		if err != nil {
			return mapConstraint(err)
		}
		if err := upsertEscrow(ctx, tx, account); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, event)
	})
}

func (s *Store) SaveWithdrawalWithOutbox(
	ctx context.Context,
	account entities.EscrowAccount,
	withdrawal entities.Withdrawal,
	event ports.EventEnvelope,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertEscrow(ctx, tx, account); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO registry_withdrawals
				(withdrawal_id, owner, amount, status, settlement_ref, failure_reason, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			withdrawal.WithdrawalID, withdrawal.Owner.String(), withdrawal.Amount.String(), string(withdrawal.Status),
			withdrawal.SettlementRef, withdrawal.FailureReason, toUnix(withdrawal.CreatedAt), toUnix(withdrawal.UpdatedAt),
		)
		if err != nil {
			return mapConstraint(err)
		}
		return insertOutbox(ctx, tx, event)
	})
}

func (s *Store) UpdateWithdrawal(ctx context.Context, withdrawal entities.Withdrawal, event *ports.EventEnvelope) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE registry_withdrawals
			SET status = ?, settlement_ref = ?, failure_reason = ?, updated_at = ?
			WHERE withdrawal_id = ?`,
			string(withdrawal.Status), withdrawal.SettlementRef, withdrawal.FailureReason,
			toUnix(withdrawal.UpdatedAt), withdrawal.WithdrawalID,
		)
		if err != nil {
			return err
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		if event == nil {
			return nil
		}
		return insertOutbox(ctx, tx, *event)
	})
}

func (s *Store) ListWithdrawals(ctx context.Context, owner entities.Principal) ([]entities.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT withdrawal_id, owner, amount, status, settlement_ref, failure_reason, created_at, updated_at
		FROM registry_withdrawals WHERE owner = ? ORDER BY created_at ASC, withdrawal_id ASC`, owner.String())
	if err != nil {
		return nil, err
	}
	items := make([]entities.Withdrawal, 0)
	for rows.Next() {
		var (
			item                 entities.Withdrawal
			ownerRaw, amount     string
			status               string
			ref, reason          sql.NullString
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&item.WithdrawalID, &ownerRaw, &amount, &status, &ref, &reason, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if item.Amount, err = entities.ParseAmount(amount); err != nil {
			rows.Close()
			return nil, err
		}
		item.Owner = entities.Principal(ownerRaw)
		item.Status = entities.WithdrawalStatus(status)
		item.SettlementRef = ref.String
		item.FailureReason = reason.String
		item.CreatedAt = fromUnix(createdAt)
		item.UpdatedAt = fromUnix(updatedAt)
		items = append(items, item)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var (
		record    ports.IdempotencyRecord
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, request_hash, response_payload, expires_at FROM registry_idempotency WHERE key = ?`, key,
	).Scan(&record.Key, &record.RequestHash, &record.ResponsePayload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return ports.IdempotencyRecord{}, false, err
	}
	record.ExpiresAt = fromUnix(expiresAt)
	if record.Expired(now) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM registry_idempotency WHERE key = ?`, key); err != nil {
			return ports.IdempotencyRecord{}, false, err
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO registry_idempotency (key, request_hash, response_payload, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING`,
		record.Key, record.RequestHash, record.ResponsePayload, toUnix(record.ExpiresAt),
	)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		return nil
	}
	var existingHash string
	if err := s.db.QueryRowContext(ctx,
		`SELECT request_hash FROM registry_idempotency WHERE key = ?`, record.Key,
	).Scan(&existingHash); err != nil {
		return err
	}
	if existingHash != record.RequestHash {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT outbox_id, event_type, partition_key, payload, created_at
		FROM registry_outbox WHERE sent_at IS NULL ORDER BY seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	items := make([]ports.OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			message      ports.OutboxMessage
			partitionKey sql.NullString
			createdAt    int64
		)
		if err := rows.Scan(&message.OutboxID, &message.EventType, &partitionKey, &message.Payload, &createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		message.PartitionKey = partitionKey.String
		message.CreatedAt = fromUnix(createdAt)
		items = append(items, message)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE registry_outbox SET sent_at = ? WHERE outbox_id = ?`, toUnix(sentAt), outboxID)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			s.logger.Warn("sqlite rollback failed",
				"event", "sqlite_rollback_failed",
				"module", "data-marketplace/dataset-registry",
				"layer", "adapter",
				"error", rollbackErr.Error(),
			)
		}
		return err
	}
	return tx.Commit()
}

func upsertEscrow(ctx context.Context, tx *sql.Tx, account entities.EscrowAccount) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO registry_escrow_accounts (owner, balance, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		account.Owner.String(), account.Balance.String(), toUnix(account.UpdatedAt),
	)
	return err
}

func insertOutbox(ctx context.Context, tx *sql.Tx, event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO registry_outbox (outbox_id, event_type, partition_key, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.EventType, event.PartitionKey, payload, toUnix(event.OccurredAt),
	)
	if err != nil {
		return mapConstraint(err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(row scanner) (entities.Dataset, error) {
	var (
		dataset                 entities.Dataset
		owner, price, tier      string
		description, contentRef sql.NullString
		tags, dataType          sql.NullString
		createdAt               int64
	)
	if err := row.Scan(
		&dataset.DatasetID, &owner, &dataset.Title, &description, &contentRef,
		&price, &tier, &tags, &dataType, &dataset.FileSize, &createdAt,
	); err != nil {
		return entities.Dataset{}, err
	}
	amount, err := entities.ParseAmount(price)
	if err != nil {
		return entities.Dataset{}, err
	}
	if tags.Valid && tags.String != "" && tags.String != "null" {
		if err := json.Unmarshal([]byte(tags.String), &dataset.Tags); err != nil {
			return entities.Dataset{}, err
		}
	}
	dataset.Owner = entities.Principal(owner)
	dataset.Description = description.String
	dataset.ContentRef = contentRef.String
	dataset.Price = amount
	dataset.Tier = entities.AccessTier(tier)
	dataset.DataType = entities.DataType(dataType.String)
	dataset.CreatedAt = fromUnix(createdAt)
	return dataset, nil
}

func scanEscrow(row scanner) (entities.EscrowAccount, error) {
	var (
		owner, balance string
		updatedAt      int64
	)
	if err := row.Scan(&owner, &balance, &updatedAt); err != nil {
		return entities.EscrowAccount{}, err
	}
	amount, err := entities.ParseAmount(balance)
	if err != nil {
		return entities.EscrowAccount{}, err
	}
	return entities.EscrowAccount{
		Owner:     entities.Principal(owner),
		Balance:   amount,
		UpdatedAt: fromUnix(updatedAt),
	}, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

func mapConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return err
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}
