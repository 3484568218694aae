package errors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation                = errors.New("invalid registry input")
	ErrNotFound                  = errors.New("dataset not found")
	ErrPayment                   = errors.New("payment does not match dataset price")
	ErrWithdraw                  = errors.New("withdraw failed")
	ErrConfiguration             = errors.New("registry storage unavailable")
	ErrAlreadyGranted            = errors.New("access already granted")
	ErrOpenDatasetNotPurchasable = errors.New("open datasets cannot be purchased")
	ErrNothingToWithdraw         = errors.New("nothing to withdraw")
	ErrSettlementFailed          = errors.New("settlement transfer failed")
	ErrIdempotencyConflict       = errors.New("idempotency key reused with different request")
	ErrRepositoryInvariantBroke  = errors.New("repository invariant violated")
)

// ValidationError reports malformed input. It never follows a state change.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown dataset id.
type NotFoundError struct {
	DatasetID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %d", ErrNotFound, e.DatasetID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PaymentError carries both amounts as base-unit decimal strings so callers can
// resubmit with the correct value.
type PaymentError struct {
	DatasetID uint64
	Expected  string
	Got       string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: dataset %d expects %s, got %s", ErrPayment, e.DatasetID, e.Expected, e.Got)
}

func (e *PaymentError) Is(target error) bool { return target == ErrPayment }

// WithdrawError covers both the empty-balance rejection and settlement failures
// after the balance was already zeroed.
type WithdrawError struct {
	Owner  string
	Amount string
	Reason string
	Err    error
}

func (e *WithdrawError) Error() string {
	msg := fmt.Sprintf("%s for %s: %s", ErrWithdraw, e.Owner, e.Reason)
	if e.Amount != "" {
		msg += " (amount " + e.Amount + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WithdrawError) Is(target error) bool { return target == ErrWithdraw }

func (e *WithdrawError) Unwrap() error { return e.Err }

// ConfigurationError wraps failures of the persistence collaborator.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrConfiguration, e.Op, e.Err)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) Unwrap() error { return e.Err }
