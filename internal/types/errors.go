package types

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("invalid order")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConditionNotMet   = errors.New("condition no longer met")
	ErrOrderExpired      = errors.New("order expired")
	ErrOrderCompleted    = errors.New("order completed")
	ErrQuoteProvider     = errors.New("quote provider error")
	ErrSubmission        = errors.New("transaction submission failed")
	ErrPolicyDenied      = errors.New("execution denied by rate limit policy")
)

// InsufficientFundsError carries the shortfall of a balance or allowance
// check. Amounts are human readable decimals of Asset.
type InsufficientFundsError struct {
	Kind      string
	Asset     string
	Required  string
	Available string
	Shortfall string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s for %s: required %s, available %s, shortfall %s",
		e.Kind, e.Asset, e.Required, e.Available, e.Shortfall)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// NewValidationError wraps a reason string into ErrValidation.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindValidation        ErrorKind = "validation"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindConditionNotMet   ErrorKind = "condition_not_met"
	KindExpired           ErrorKind = "expired"
	KindCompleted         ErrorKind = "completed"
	KindQuoteProvider     ErrorKind = "quote_provider"
	KindSubmission        ErrorKind = "submission"
	KindPolicyDenied      ErrorKind = "policy_denied"
	KindInternal          ErrorKind = "internal"
)

// ErrorKindOf classifies err into the engine taxonomy.
func ErrorKindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrConditionNotMet):
		return KindConditionNotMet
	case errors.Is(err, ErrOrderExpired):
		return KindExpired
	case errors.Is(err, ErrOrderCompleted):
		return KindCompleted
	case errors.Is(err, ErrQuoteProvider):
		return KindQuoteProvider
	case errors.Is(err, ErrSubmission):
		return KindSubmission
	case errors.Is(err, ErrPolicyDenied):
		return KindPolicyDenied
	default:
		return KindInternal
	}
}
