package application

import (
	"time"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	"geneledger/contexts/data-marketplace/dataset-registry/domain/ledger"
	"geneledger/contexts/data-marketplace/dataset-registry/domain/services"
)

// PurchasePlan is everything a successful purchase writes: the owner's
// credited account and the buyer's grant.
type PurchasePlan struct {
	Dataset entities.Dataset
	Grant   entities.AccessGrant
	Account entities.EscrowAccount
}

// PurchaseOrchestrator validates purchases and applies their two mutations.
// Callers must hold the registry write lock across Plan and Commit.
type PurchaseOrchestrator struct {
	Catalog *ledger.Catalog
	Grants  *ledger.GrantStore
	Escrow  *ledger.EscrowLedger
}

// Plan computes the outcome of a purchase without mutating any state.
func (o PurchaseOrchestrator) Plan(
	datasetID uint64,
	buyer entities.Principal,
	payment entities.Amount,
	now time.Time,
) (PurchasePlan, error) {
	dataset, err := o.Catalog.Get(datasetID)
	if err != nil {
		return PurchasePlan{}, err
	}
	if err := services.EvaluatePurchase(dataset, buyer, payment, o.Grants); err != nil {
		return PurchasePlan{}, err
	}
	account, err := o.Escrow.PlanCredit(dataset.Owner, payment, now)
	if err != nil {
		return PurchasePlan{}, err
	}
	return PurchasePlan{
		Dataset: dataset,
		Grant: entities.AccessGrant{
			DatasetID: dataset.DatasetID,
			Principal: buyer,
			Amount:    payment,
			GrantedAt: now.UTC(),
		},
		Account: account,
	}, nil
}

// Commit credits the owner, then grants the buyer.
func (o PurchaseOrchestrator) Commit(plan PurchasePlan) {
	o.Escrow.Apply(plan.Account)
	o.Grants.Grant(plan.Grant)
}
