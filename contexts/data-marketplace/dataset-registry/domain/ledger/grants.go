package ledger

import "geneledger/contexts/data-marketplace/dataset-registry/domain/entities"

// GrantStore is a monotonic set of (dataset, principal) access grants.
type GrantStore struct {
	grants map[entities.GrantKey]entities.AccessGrant
}

func NewGrantStore() *GrantStore {
	return &GrantStore{grants: make(map[entities.GrantKey]entities.AccessGrant)}
}

// Grant inserts grant and reports whether it was new. Re-granting an existing
// pair is a no-op that keeps the original record.
func (s *GrantStore) Grant(grant entities.AccessGrant) bool {
	key := grant.Key()
	if _, exists := s.grants[key]; exists {
		return false
	}
	s.grants[key] = grant
	return true
}

func (s *GrantStore) HasGrant(datasetID uint64, principal entities.Principal) bool {
	_, ok := s.grants[entities.GrantKey{DatasetID: datasetID, Principal: principal}]
	return ok
}

func (s *GrantStore) Len() int {
	return len(s.grants)
}
