package leave

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/warp/leave-engine/generic"
)

var (
	ErrUserNotFound         = errors.Mark(errors.New("leave: user not found"), generic.ErrNotFound)
	ErrRequestNotFound      = errors.Mark(errors.New("leave: request not found"), generic.ErrNotFound)
	ErrPoolNotFound         = errors.Mark(errors.New("leave: pool not found"), generic.ErrNotFound)
	ErrVacationTypeNotFound = errors.Mark(errors.New("leave: vacation type not found"), generic.ErrNotFound)

	ErrInvalidTransition = errors.New("leave: invalid status transition")
	ErrNotAllowed        = errors.New("leave: actor not allowed")
	ErrRequestConsumed   = errors.New("leave: request already started")

	// ErrMissingPool means a policy needs a pool the user does not hold.
	ErrMissingPool = errors.Mark(errors.New("leave: missing pool for vacation type"), generic.ErrDataIntegrity)
)

// ValidationError is a user-facing rejection of a request. Policies return
// it by value; the request service hands it back unchanged.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(rule, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return IsValidation(err) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotAllowed) ||
		errors.Is(err, ErrRequestConsumed) ||
		generic.IsClientError(err)
}
