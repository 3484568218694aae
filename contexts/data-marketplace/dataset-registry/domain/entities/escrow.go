package entities

import "time"

// EscrowAccount is created on first credit and persists at zero after a
// withdrawal.
type EscrowAccount struct {
	Owner     Principal
	Balance   Amount
	UpdatedAt time.Time
}

type WithdrawalStatus string

const (
	WithdrawalStatusPending WithdrawalStatus = "pending"
	WithdrawalStatusSettled WithdrawalStatus = "settled"
	WithdrawalStatusFailed  WithdrawalStatus = "failed"
)

// Withdrawal journals a zeroed balance and the outcome of its settlement.
// A failed entry is informational only; it never restores the balance.
type Withdrawal struct {
	WithdrawalID  string
	Owner         Principal
	Amount        Amount
	Status        WithdrawalStatus
	SettlementRef string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (w Withdrawal) Settled(reference string, at time.Time) Withdrawal {
	w.Status = WithdrawalStatusSettled
	w.SettlementRef = reference
	w.FailureReason = ""
	w.UpdatedAt = at.UTC()
	return w
}

func (w Withdrawal) Failed(reason string, at time.Time) Withdrawal {
	w.Status = WithdrawalStatusFailed
	w.FailureReason = reason
	w.UpdatedAt = at.UTC()
	return w
}
