package application

import (
	"context"
	"strconv"
	"sync/atomic"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
)

// nopRepository keeps everything in memory only. It backs a registry built
// without a persistence collaborator.
type nopRepository struct{}

func (nopRepository) LoadSnapshot(context.Context) (ports.Snapshot, error) {
	return ports.Snapshot{}, nil
}

func (nopRepository) LoadDataset(_ context.Context, datasetID uint64) (entities.Dataset, error) {
	return entities.Dataset{}, &domainerrors.NotFoundError{DatasetID: datasetID}
}

func (nopRepository) LoadEscrow(context.Context, entities.Principal) (entities.EscrowAccount, bool, error) {
	return entities.EscrowAccount{}, false, nil
}

func (nopRepository) SaveDatasetWithOutbox(context.Context, entities.Dataset, ports.EventEnvelope) error {
	return nil
}

func (nopRepository) SavePurchaseWithOutbox(context.Context, entities.AccessGrant, entities.EscrowAccount, ports.EventEnvelope) error {
	return nil
}

func (nopRepository) SaveWithdrawalWithOutbox(context.Context, entities.EscrowAccount, entities.Withdrawal, ports.EventEnvelope) error {
	return nil
}

func (nopRepository) UpdateWithdrawal(context.Context, entities.Withdrawal, *ports.EventEnvelope) error {
	return nil
}

func (nopRepository) ListWithdrawals(context.Context, entities.Principal) ([]entities.Withdrawal, error) {
	return nil, nil
}

type nopMetrics struct{}

func (nopMetrics) DatasetRegistered(entities.AccessTier)                  {}
func (nopMetrics) PurchaseCompleted(entities.AccessTier, entities.Amount) {}
func (nopMetrics) PurchaseRejected(string)                                {}
func (nopMetrics) EscrowWithdrawn(entities.Amount)                        {}
func (nopMetrics) SettlementFailed()                                      {}

type sequenceIDs struct {
	next atomic.Uint64
}

func (s *sequenceIDs) NewID(context.Context) (string, error) {
	return "id-" + strconv.FormatUint(s.next.Add(1), 10), nil
}
