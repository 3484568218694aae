package ports

import (
	"context"
	"time"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	contractsv1 "geneledger/contracts/gen/events/v1"
)

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

// Snapshot is the full persisted registry state used to rebuild memory on start.
type Snapshot struct {
	Datasets []entities.Dataset
	Grants   []entities.AccessGrant
	Accounts []entities.EscrowAccount
}

// Repository is the persistence collaborator. Every Save* call must commit its
// records and the outbox event atomically; the registry calls it inside its
// write critical section and only mutates memory after it returns nil.
type Repository interface {
	LoadSnapshot(ctx context.Context) (Snapshot, error)
	LoadDataset(ctx context.Context, datasetID uint64) (entities.Dataset, error)
	LoadEscrow(ctx context.Context, owner entities.Principal) (entities.EscrowAccount, bool, error)

	SaveDatasetWithOutbox(ctx context.Context, dataset entities.Dataset, event EventEnvelope) error
	SavePurchaseWithOutbox(ctx context.Context, grant entities.AccessGrant, account entities.EscrowAccount, event EventEnvelope) error
	SaveWithdrawalWithOutbox(ctx context.Context, account entities.EscrowAccount, withdrawal entities.Withdrawal, event EventEnvelope) error
	// UpdateWithdrawal records the settlement outcome; event is optional.
	UpdateWithdrawal(ctx context.Context, withdrawal entities.Withdrawal, event *EventEnvelope) error
	ListWithdrawals(ctx context.Context, owner entities.Principal) ([]entities.Withdrawal, error)
}

// SettlementRequest instructs the external collaborator to pay out a zeroed balance.
type SettlementRequest struct {
	WithdrawalID string
	Owner        entities.Principal
	Amount       entities.Amount
}

type SettlementReceipt struct {
	Reference string
}

// Settlement transfers funds out of the registry. It is always invoked after
// the ledger has committed the zeroed balance and outside any registry lock,
// so an implementation may call back into the registry.
type Settlement interface {
	Transfer(ctx context.Context, request SettlementRequest) (SettlementReceipt, error)
}

// IdempotencyRecord captures a replayable purchase response.
type IdempotencyRecord struct {
	Key             string
	RequestHash     string
	ResponsePayload []byte
	ExpiresAt       time.Time
}

// Expired reports whether the record is no longer replayable at now. A record
// expires at ExpiresAt itself; a zero ExpiresAt never expires.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// Metrics receives registry outcomes; adapters export them.
type Metrics interface {
	DatasetRegistered(tier entities.AccessTier)
	PurchaseCompleted(tier entities.AccessTier, amount entities.Amount)
	PurchaseRejected(reason string)
	EscrowWithdrawn(amount entities.Amount)
	SettlementFailed()
}

// OutboxMessage is a row ready to relay from the registry outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
