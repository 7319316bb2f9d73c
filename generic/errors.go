/*
errors.go - Centralized error types for the savings engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Packages wrap these with fmt.Errorf("...: %w") to add context.

ERROR CATEGORIES:
  1. Client errors - Bad input (amount, category, rate, overdraft)
  2. Not found - Missing account
  3. Store errors - Persistence failures, some retryable

USAGE:
    if errors.Is(err, generic.ErrInsufficientBalance) {
        // reject the withdrawal
    }
    if generic.IsRetryable(err) {
        // next accrual pass will try again
    }

SEE ALSO:
  - account.go: Raises the client errors
  - store/sqlite/sqlite.go: Raises the store errors
*/
package generic

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInsufficientBalance is returned when a debit exceeds the category balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned for non-positive transaction amounts or
	// negative balance edits.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidCategory is returned for anything other than cash, savings, investments.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrInvalidRate is returned for rate overrides outside [0, 1] or on cash.
	ErrInvalidRate = errors.New("invalid interest rate")

	// ErrInvalidTransaction is returned when a transaction breaks a structural invariant.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInvalidAccount is returned for malformed account fields (empty name).
	ErrInvalidAccount = errors.New("invalid account")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrStoreUnavailable is returned when the backing store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTransactionFailed is returned when a write cannot be persisted.
	ErrTransactionFailed = errors.New("transaction failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about an attempted overdraft.
type InsufficientBalanceError struct {
	AccountID AccountID
	Category  Category
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance on %s: available %s, requested %s",
		e.Category, e.AccountID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// AccountError ties a failure to the account it happened on.
// The accrual pass reports per-account failures with it.
type AccountError struct {
	AccountID AccountID
	Op        string
	Err       error
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.AccountID, e.Err)
}

func (e *AccountError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidRate) ||
		errors.Is(err, ErrInvalidTransaction) ||
		errors.Is(err, ErrInvalidAccount) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}
