package ledger

import (
	"time"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
)

// EscrowLedger maps owners to accrued, not yet withdrawn proceeds.
type EscrowLedger struct {
	accounts map[entities.Principal]entities.EscrowAccount
}

func NewEscrowLedger() *EscrowLedger {
	return &EscrowLedger{accounts: make(map[entities.Principal]entities.EscrowAccount)}
}

func (l *EscrowLedger) BalanceOf(owner entities.Principal) entities.Amount {
	return l.accounts[owner].Balance
}

// PlanCredit returns the account owner would hold after receiving amount.
func (l *EscrowLedger) PlanCredit(owner entities.Principal, amount entities.Amount, at time.Time) (entities.EscrowAccount, error) {
	if amount.IsNegative() {
		return entities.EscrowAccount{}, &domainerrors.ValidationError{Field: "amount", Reason: "credit must not be negative"}
	}
	account, ok := l.accounts[owner]
	if !ok {
		account = entities.EscrowAccount{Owner: owner}
	}
	account.Balance = account.Balance.Add(amount)
	account.UpdatedAt = at.UTC()
	return account, nil
}

// PlanWithdrawAll returns the zeroed account and the balance it held. An empty
// balance is rejected so no zero-value transfer is ever attempted.
func (l *EscrowLedger) PlanWithdrawAll(owner entities.Principal, at time.Time) (entities.EscrowAccount, entities.Amount, error) {
	account, ok := l.accounts[owner]
	if !ok || account.Balance.Sign() <= 0 {
		return entities.EscrowAccount{}, entities.Amount{}, &domainerrors.WithdrawError{
			Owner:  owner.String(),
			Reason: "balance is zero",
			Err:    domainerrors.ErrNothingToWithdraw,
		}
	}
	prior := account.Balance
	account.Balance = entities.Amount{}
	account.UpdatedAt = at.UTC()
	return account, prior, nil
}

// Apply stores a planned account state.
func (l *EscrowLedger) Apply(account entities.EscrowAccount) {
	l.accounts[account.Owner] = account
}

func (l *EscrowLedger) Credit(owner entities.Principal, amount entities.Amount, at time.Time) error {
	account, err := l.PlanCredit(owner, amount, at)
	if err != nil {
		return err
	}
	l.Apply(account)
	return nil
}

// WithdrawAll zeroes the balance and returns what must now be settled externally.
func (l *EscrowLedger) WithdrawAll(owner entities.Principal, at time.Time) (entities.Amount, error) {
	account, prior, err := l.PlanWithdrawAll(owner, at)
	if err != nil {
		return entities.Amount{}, err
	}
	l.Apply(account)
	return prior, nil
}

// Restore loads a persisted account, refusing negative balances.
func (l *EscrowLedger) Restore(account entities.EscrowAccount) error {
	if account.Balance.IsNegative() {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	l.accounts[account.Owner] = account
	return nil
}
