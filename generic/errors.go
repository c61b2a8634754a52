/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All engine-level error types in one place. The leave package wraps
  these with domain context (which request, which pool).

ERROR CATEGORIES:
  1. Ledger errors    - duplicate idempotency key, append failures
  2. Integrity errors - state that must never exist (negative pool)
  3. Lookup errors    - missing entity or pool

USAGE:
    if generic.IsNotFound(err) {
        // 404
    }

SEE ALSO:
  - ledger.go: Uses these errors
  - leave/errors.go: Domain errors built on these
*/
package generic

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. Expected for retried jobs.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDataIntegrity marks ledger or pool state that must never exist.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrNotFound marks lookups of absent users, pools or requests.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NegativeBalanceError is raised when a pool ends up below zero after an append.
type NegativeBalanceError struct {
	EntityID EntityID
	PoolID   PoolID
	Balance  Amount
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("pool %s of %s would become negative (%s)", e.PoolID, e.EntityID, e.Balance.Value)
}

func (e *NegativeBalanceError) Unwrap() error {
	return ErrDataIntegrity
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// NotFoundf builds an error marked as ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Integrityf builds an error marked as ErrDataIntegrity.
func Integrityf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrDataIntegrity)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIntegrity returns true if the error indicates inconsistent stored state.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}
