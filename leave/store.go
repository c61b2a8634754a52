package leave

import (
	"context"
	"slices"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// REPOSITORY - Persistence for the leave domain
// =============================================================================

// Repository persists users, pools, requests and ledger entries.
//
// Appending ledger entries (the embedded generic.Store) also moves the
// cached amount of the matching user pool, so UserPool.Amount always equals
// the sum of that pool's entries.
type Repository interface {
	generic.Store

	GetUser(ctx context.Context, id UserID) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SaveUser(ctx context.Context, u User) error

	GetVacationType(ctx context.Context, name string) (VacationType, error)
	ListVacationTypes(ctx context.Context) ([]VacationType, error)
	SaveVacationType(ctx context.Context, vt VacationType) error

	SavePool(ctx context.Context, p Pool) error
	// AssignPool gives a user a pool with a zero amount. Idempotent.
	AssignPool(ctx context.Context, user UserID, pool generic.PoolID) error
	UserPools(ctx context.Context, user UserID) ([]UserPool, error)
	// LockUserPools is UserPools that, inside WithTx, also blocks other
	// transactions from touching the same pool rows until commit.
	LockUserPools(ctx context.Context, user UserID) ([]UserPool, error)

	GetRequest(ctx context.Context, id RequestID) (Request, error)
	// SaveRequest inserts or updates.
	SaveRequest(ctx context.Context, r Request) error
	ListRequests(ctx context.Context, f RequestFilter) ([]Request, error)

	AppendHistory(ctx context.Context, h RequestHistory) error
	ListHistory(ctx context.Context, id RequestID) ([]RequestHistory, error)
}

// TxRepository runs a unit of work atomically. Every write made through the
// Repository passed to fn is discarded if fn returns an error.
type TxRepository interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// RequestFilter narrows ListRequests. Zero fields do not filter.
type RequestFilter struct {
	UserIDs      []UserID
	Statuses     []Status
	VacationType string
	// Overlapping keeps requests whose period intersects it.
	Overlapping *generic.Period
}

// Matches applies the filter to one request.
func (f RequestFilter) Matches(r Request) bool {
	if len(f.UserIDs) > 0 && !slices.Contains(f.UserIDs, r.UserID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
		return false
	}
	if f.VacationType != "" && f.VacationType != r.VacationType {
		return false
	}
	if f.Overlapping != nil && !f.Overlapping.Overlaps(r.Period()) {
		return false
	}
	return true
}
