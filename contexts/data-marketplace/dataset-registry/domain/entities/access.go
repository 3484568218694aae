package entities

import "time"

// GrantKey identifies an access grant. Using a struct key keeps the
// (dataset, principal) pair collision-free without string concatenation.
type GrantKey struct {
	DatasetID uint64
	Principal Principal
}

// AccessGrant records a successful purchase. Grants are never removed.
type AccessGrant struct {
	DatasetID uint64
	Principal Principal
	Amount    Amount
	GrantedAt time.Time
}

func (g AccessGrant) Key() GrantKey {
	return GrantKey{DatasetID: g.DatasetID, Principal: g.Principal}
}
