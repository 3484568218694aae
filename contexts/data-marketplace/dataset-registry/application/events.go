package application

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
	contractsv1 "geneledger/contracts/gen/events/v1"
)

const sourceService = "dataset-registry-service"

func (r *Registry) newEnvelope(
	ctx context.Context,
	eventType string,
	partitionKeyPath string,
	partitionKey string,
	data any,
	occurredAt time.Time,
) (ports.EventEnvelope, error) {
	eventID, err := r.ids.NewID(ctx)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    sourceService,
		SchemaVersion:    1,
		PartitionKeyPath: partitionKeyPath,
		PartitionKey:     partitionKey,
		Data:             payload,
	}, nil
}

func (r *Registry) datasetRegisteredEvent(ctx context.Context, dataset entities.Dataset) (ports.EventEnvelope, error) {
	return r.newEnvelope(ctx, contractsv1.EventTypeDatasetRegistered, "dataset_id",
		strconv.FormatUint(dataset.DatasetID, 10),
		contractsv1.DatasetRegistered{
			DatasetID:  dataset.DatasetID,
			Owner:      dataset.Owner.String(),
			Tier:       string(dataset.Tier),
			Price:      dataset.Price.String(),
			ContentRef: dataset.ContentRef,
		}, dataset.CreatedAt)
}

func (r *Registry) accessPurchasedEvent(ctx context.Context, plan PurchasePlan) (ports.EventEnvelope, error) {
	return r.newEnvelope(ctx, contractsv1.EventTypeAccessPurchased, "dataset_id",
		strconv.FormatUint(plan.Grant.DatasetID, 10),
		contractsv1.AccessPurchased{
			DatasetID: plan.Grant.DatasetID,
			Buyer:     plan.Grant.Principal.String(),
			Owner:     plan.Dataset.Owner.String(),
			Amount:    plan.Grant.Amount.String(),
		}, plan.Grant.GrantedAt)
}

func (r *Registry) escrowWithdrawnEvent(ctx context.Context, withdrawal entities.Withdrawal) (ports.EventEnvelope, error) {
	return r.newEnvelope(ctx, contractsv1.EventTypeEscrowWithdrawn, "owner",
		withdrawal.Owner.String(),
		contractsv1.EscrowWithdrawn{
			WithdrawalID: withdrawal.WithdrawalID,
			Owner:        withdrawal.Owner.String(),
			Amount:       withdrawal.Amount.String(),
		}, withdrawal.CreatedAt)
}

func (r *Registry) settlementFailedEvent(ctx context.Context, withdrawal entities.Withdrawal) (ports.EventEnvelope, error) {
	return r.newEnvelope(ctx, contractsv1.EventTypeEscrowSettlementFailed, "owner",
		withdrawal.Owner.String(),
		contractsv1.EscrowSettlementFailed{
			WithdrawalID: withdrawal.WithdrawalID,
			Owner:        withdrawal.Owner.String(),
			Amount:       withdrawal.Amount.String(),
			Reason:       withdrawal.FailureReason,
		}, withdrawal.UpdatedAt)
}
