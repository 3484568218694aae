package services

import "geneledger/contexts/data-marketplace/dataset-registry/domain/entities"

// DatasetSource resolves datasets; unknown ids fail with a NotFoundError.
type DatasetSource interface {
	Get(datasetID uint64) (entities.Dataset, error)
}

type GrantLookup interface {
	HasGrant(datasetID uint64, principal entities.Principal) bool
}

// AccessController answers whether a principal may read a dataset.
type AccessController struct {
	Datasets DatasetSource
	Grants   GrantLookup
}

func (c AccessController) CanAccess(principal entities.Principal, datasetID uint64) (bool, error) {
	dataset, err := c.Datasets.Get(datasetID)
	if err != nil {
		return false, err
	}
	return DecideAccess(dataset, principal, c.Grants), nil
}

// DecideAccess applies the rule in order: Open tier, then ownership, then grant.
func DecideAccess(dataset entities.Dataset, principal entities.Principal, grants GrantLookup) bool {
	if !dataset.Tier.RequiresPurchase() {
		return true
	}
	if principal == dataset.Owner {
		return true
	}
	return grants.HasGrant(dataset.DatasetID, principal)
}
