package utils

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrVoucherNotFound      = errors.New("voucher not found")
	ErrVoucherExhausted     = errors.New("voucher usage limit reached")
	ErrVoucherNotUsable     = errors.New("voucher not usable")
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrIssueNotFound        = errors.New("reconciliation issue not found")
	ErrOutboxEventNotFound  = errors.New("outbox event not found")
	ErrUnsupportedProvider  = errors.New("unsupported payment provider")
	ErrUnsupportedCurrency  = errors.New("unsupported currency")
	ErrProviderUnavailable  = errors.New("provider unavailable")
	ErrProviderTransient    = errors.New("provider temporarily unreachable")
	ErrProviderRejected     = errors.New("provider rejected request")
	ErrInvalidSignature     = errors.New("invalid callback signature")
	ErrMalformedCallback    = errors.New("malformed callback")
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrRefundNotAllowed     = errors.New("refund only allowed for succeeded transactions")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
	ErrDatabaseError        = errors.New("database error")
)

// ProviderError wraps a failure talking to an external payment provider.
type ProviderError struct {
	Provider  string
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrProviderTransient) match retryable provider failures.
func (e *ProviderError) Is(target error) bool {
	if target == ErrProviderTransient {
		return e.Retryable
	}
	return target == ErrProviderRejected && !e.Retryable
}

func TransientProviderError(provider, op string, err error) error {
	return &ProviderError{Provider: provider, Op: op, Retryable: true, Err: err}
}

func RejectedProviderError(provider, op string, err error) error {
	return &ProviderError{Provider: provider, Op: op, Retryable: false, Err: err}
}

// UnavailableError carries the registry's reason for a disabled provider.
type UnavailableError struct {
	Provider string
	Reason   string
}

func (e *UnavailableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("provider %s unavailable", e.Provider)
	}
	return fmt.Sprintf("provider %s unavailable: %s", e.Provider, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return ErrProviderUnavailable }

// Validationf builds a validation error with a client-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
