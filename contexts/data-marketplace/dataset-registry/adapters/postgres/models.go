package postgresadapter

import (
	"encoding/json"
	"time"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
)

// Amounts are stored as NUMERIC(78,0) so any uint256-sized value fits.
type datasetModel struct {
	DatasetID   uint64    `gorm:"column:dataset_id;primaryKey;autoIncrement:false"`
	Owner       string    `gorm:"column:owner;index"`
	Title       string    `gorm:"column:title"`
	Description string    `gorm:"column:description"`
	ContentRef  string    `gorm:"column:content_ref"`
	Price       string    `gorm:"column:price;type:numeric(78,0)"`
	AccessTier  string    `gorm:"column:access_tier"`
	Tags        []byte    `gorm:"column:tags"`
	DataType    string    `gorm:"column:data_type"`
	FileSize    int64     `gorm:"column:file_size"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (datasetModel) TableName() string {
	return "registry_datasets"
}

func datasetModelFromEntity(dataset entities.Dataset) (datasetModel, error) {
	tags, err := json.Marshal(dataset.Tags)
	if err != nil {
		return datasetModel{}, err
	}
	return datasetModel{
		DatasetID:   dataset.DatasetID,
		Owner:       dataset.Owner.String(),
		Title:       dataset.Title,
		Description: dataset.Description,
		ContentRef:  dataset.ContentRef,
		Price:       dataset.Price.String(),
		AccessTier:  string(dataset.Tier),
		Tags:        tags,
		DataType:    string(dataset.DataType),
		FileSize:    dataset.FileSize,
		CreatedAt:   dataset.CreatedAt.UTC(),
	}, nil
}

func (m datasetModel) toEntity() (entities.Dataset, error) {
	price, err := entities.ParseAmount(m.Price)
	if err != nil {
		return entities.Dataset{}, err
	}
	var tags []string
	if len(m.Tags) > 0 {
		if err := json.Unmarshal(m.Tags, &tags); err != nil {
			return entities.Dataset{}, err
		}
	}
	return entities.Dataset{
		DatasetID:   m.DatasetID,
		Owner:       entities.Principal(m.Owner),
		Title:       m.Title,
		Description: m.Description,
		ContentRef:  m.ContentRef,
		Price:       price,
		Tier:        entities.AccessTier(m.AccessTier),
		Tags:        tags,
		DataType:    entities.DataType(m.DataType),
		FileSize:    m.FileSize,
		CreatedAt:   m.CreatedAt.UTC(),
	}, nil
}

type grantModel struct {
	DatasetID uint64    `gorm:"column:dataset_id;primaryKey;autoIncrement:false"`
	Principal string    `gorm:"column:principal;primaryKey"`
	Amount    string    `gorm:"column:amount;type:numeric(78,0)"`
	GrantedAt time.Time `gorm:"column:granted_at"`
}

func (grantModel) TableName() string {
	return "registry_access_grants"
}

func grantModelFromEntity(grant entities.AccessGrant) grantModel {
	return grantModel{
		DatasetID: grant.DatasetID,
		Principal: grant.Principal.String(),
		Amount:    grant.Amount.String(),
		GrantedAt: grant.GrantedAt.UTC(),
	}
}

func (m grantModel) toEntity() (entities.AccessGrant, error) {
	amount, err := entities.ParseAmount(m.Amount)
	if err != nil {
		return entities.AccessGrant{}, err
	}
	return entities.AccessGrant{
		DatasetID: m.DatasetID,
		Principal: entities.Principal(m.Principal),
		Amount:    amount,
		GrantedAt: m.GrantedAt.UTC(),
	}, nil
}

type escrowModel struct {
	Owner     string    `gorm:"column:owner;primaryKey"`
	Balance   string    `gorm:"column:balance;type:numeric(78,0)"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (escrowModel) TableName() string {
	return "registry_escrow_accounts"
}

func escrowModelFromEntity(account entities.EscrowAccount) escrowModel {
	return escrowModel{
		Owner:     account.Owner.String(),
		Balance:   account.Balance.String(),
		UpdatedAt: account.UpdatedAt.UTC(),
	}
}

func (m escrowModel) toEntity() (entities.EscrowAccount, error) {
	balance, err := entities.ParseAmount(m.Balance)
	if err != nil {
		return entities.EscrowAccount{}, err
	}
	return entities.EscrowAccount{
		Owner:     entities.Principal(m.Owner),
		Balance:   balance,
		UpdatedAt: m.UpdatedAt.UTC(),
	}, nil
}

type withdrawalModel struct {
	WithdrawalID  string    `gorm:"column:withdrawal_id;primaryKey"`
	Owner         string    `gorm:"column:owner;index"`
	Amount        string    `gorm:"column:amount;type:numeric(78,0)"`
	Status        string    `gorm:"column:status"`
	SettlementRef string    `gorm:"column:settlement_ref"`
	FailureReason string    `gorm:"column:failure_reason"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (withdrawalModel) TableName() string {
	return "registry_withdrawals"
}

func withdrawalModelFromEntity(withdrawal entities.Withdrawal) withdrawalModel {
	return withdrawalModel{
		WithdrawalID:  withdrawal.WithdrawalID,
		Owner:         withdrawal.Owner.String(),
		Amount:        withdrawal.Amount.String(),
		Status:        string(withdrawal.Status),
		SettlementRef: withdrawal.SettlementRef,
		FailureReason: withdrawal.FailureReason,
		CreatedAt:     withdrawal.CreatedAt.UTC(),
		UpdatedAt:     withdrawal.UpdatedAt.UTC(),
	}
}

func (m withdrawalModel) toEntity() (entities.Withdrawal, error) {
	amount, err := entities.ParseAmount(m.Amount)
	if err != nil {
		return entities.Withdrawal{}, err
	}
	return entities.Withdrawal{
		WithdrawalID:  m.WithdrawalID,
		Owner:         entities.Principal(m.Owner),
		Amount:        amount,
		Status:        entities.WithdrawalStatus(m.Status),
		SettlementRef: m.SettlementRef,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}, nil
}

type idempotencyModel struct {
	Key             string    `gorm:"column:key;primaryKey"`
	RequestHash     string    `gorm:"column:request_hash"`
	ResponsePayload []byte    `gorm:"column:response_payload"`
	ExpiresAt       time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "registry_idempotency"
}

func idempotencyModelFromPort(record ports.IdempotencyRecord) idempotencyModel {
	return idempotencyModel{
		Key:             record.Key,
		RequestHash:     record.RequestHash,
		ResponsePayload: append([]byte(nil), record.ResponsePayload...),
		ExpiresAt:       record.ExpiresAt.UTC(),
	}
}

func (m idempotencyModel) toPort() ports.IdempotencyRecord {
	return ports.IdempotencyRecord{
		Key:             m.Key,
		RequestHash:     m.RequestHash,
		ResponsePayload: append([]byte(nil), m.ResponsePayload...),
		ExpiresAt:       m.ExpiresAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "registry_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}
