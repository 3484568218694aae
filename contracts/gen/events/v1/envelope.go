package v1

import (
	"encoding/json"
	"time"
)

// Envelope is the canonical, versioned event envelope for cross-runtime use.
// This package is generated-contract-only and must stay backward compatible.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id,omitempty"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

const (
	EventTypeDatasetRegistered      = "dataset.registered"
	EventTypeAccessPurchased        = "dataset.access_purchased"
	EventTypeEscrowWithdrawn        = "escrow.withdrawn"
	EventTypeEscrowSettlementFailed = "escrow.settlement_failed"
)

// DatasetRegistered is the Data payload of dataset.registered.
type DatasetRegistered struct {
	DatasetID  uint64 `json:"dataset_id"`
	Owner      string `json:"owner"`
	Tier       string `json:"tier"`
	Price      string `json:"price"`
	ContentRef string `json:"content_ref"`
}

// AccessPurchased is the Data payload of dataset.access_purchased.
type AccessPurchased struct {
	DatasetID uint64 `json:"dataset_id"`
	Buyer     string `json:"buyer"`
	Owner     string `json:"owner"`
	Amount    string `json:"amount"`
}

// EscrowWithdrawn is the Data payload of escrow.withdrawn.
type EscrowWithdrawn struct {
	WithdrawalID string `json:"withdrawal_id"`
	Owner        string `json:"owner"`
	Amount       string `json:"amount"`
}

// EscrowSettlementFailed is the Data payload of escrow.settlement_failed.
type EscrowSettlementFailed struct {
	WithdrawalID string `json:"withdrawal_id"`
	Owner        string `json:"owner"`
	Amount       string `json:"amount"`
	Reason       string `json:"reason"`
}
