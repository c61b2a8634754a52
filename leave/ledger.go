/*
ledger.go - Pool ledger for leave requests

PURPOSE:
  Every change to a pool amount is a ledger entry. Requests are charged
  when created and refunded when denied or canceled; accruals and admin
  adjustments are plain appends.

DRAIN ORDER:
  A request funded by several pools of the same type (CP restant + CP
  acquis) drains the soonest-expiring pool first. The last pool in drain
  order absorbs any remainder, so an overdraw surfaces as a negative pool
  and aborts the transaction instead of being silently clipped.

REFUND:
  A refund is the exact inverse of the request's consumption entries, one
  positive entry per consumed pool, dated the day of the refund. Entry
  idempotency keys make a second refund of the same request fail.

SEE ALSO:
  - generic/ledger.go: idempotent append
  - history.go: timeline reconstruction
*/
package leave

import (
	"context"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// PoolLedger wraps the generic ledger with leave semantics. Build one per
// unit of work from the Repository of that unit.
type PoolLedger struct {
	repo   Repository
	ledger *generic.DefaultLedger
	clock  generic.Clock
}

func NewPoolLedger(repo Repository, clock generic.Clock) *PoolLedger {
	return &PoolLedger{repo: repo, ledger: generic.NewLedger(repo), clock: clock}
}

// AppendInput describes one manual ledger write.
type AppendInput struct {
	User           UserID
	Pool           Pool
	Delta          decimal.Decimal
	Date           generic.TimePoint
	Kind           generic.EntryKind
	Flavor         string
	RequestID      RequestID
	IdempotencyKey string
	CreatedBy      UserID
}

// Append adds one signed entry and rejects it if the pool goes negative.
func (l *PoolLedger) Append(ctx context.Context, in AppendInput) (generic.Entry, error) {
	if in.Date.IsZero() {
		in.Date = generic.Today(l.clock)
	}
	e := l.entry(in.User, in.Pool, in.Delta, in.Date, in.Kind, in.Flavor, in.RequestID, in.IdempotencyKey, in.CreatedBy)
	if err := l.ledger.Append(ctx, e); err != nil {
		return generic.Entry{}, err
	}
	if in.Delta.IsNegative() {
		if err := l.checkNonNegative(ctx, in.User, []generic.Entry{e}); err != nil {
			return generic.Entry{}, err
		}
	}
	return e, nil
}

// CurrentBalance sums the pool's entries dated on or before asOf.
// A zero asOf means today.
func (l *PoolLedger) CurrentBalance(ctx context.Context, user UserID, pool Pool, asOf generic.TimePoint) (generic.Amount, error) {
	if asOf.IsZero() {
		asOf = generic.Today(l.clock)
	}
	return l.ledger.BalanceAt(ctx, generic.EntityID(user), pool.ID, asOf, pool.Unit)
}

// Granted sums the accrual entries of the pool's window dated up to at.
// Adjustments and opening grants are not counted.
func (l *PoolLedger) Granted(ctx context.Context, user UserID, pool Pool, at generic.TimePoint) (decimal.Decimal, error) {
	entries, err := l.ledger.EntriesInRange(ctx, generic.EntityID(user), pool.ID, pool.Window.Start, at)
	if err != nil {
		return decimal.Zero, err
	}
	granted := decimal.Zero
	for _, e := range entries {
		if e.Kind == generic.EntryAccrual {
			granted = granted.Add(e.Delta.Value)
		}
	}
	return granted, nil
}

// Decrement charges amount against pools in drain order and returns the
// written entries. Pools must all belong to the request's vacation type.
func (l *PoolLedger) Decrement(ctx context.Context, req Request, pools []UserPool, amount decimal.Decimal, at generic.TimePoint) ([]generic.Entry, error) {
	if !amount.IsPositive() || len(pools) == 0 {
		return nil, nil
	}

	ordered := DrainOrder(pools)
	remaining := amount
	var entries []generic.Entry
	for i, up := range ordered {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(up.Amount, remaining)
		if i == len(ordered)-1 {
			take = remaining
		}
		if !take.IsPositive() {
			continue
		}
		key := fmt.Sprintf("request:%s:%s:consume", req.ID, up.Pool.ID)
		entries = append(entries, l.entry(req.UserID, up.Pool, take.Neg(), at, generic.EntryConsumption,
			req.VacationType, req.ID, key, req.LastActionUserID))
		remaining = remaining.Sub(take)
	}

	if err := l.ledger.AppendBatch(ctx, entries); err != nil {
		return nil, errors.Wrapf(err, "decrement request %s", req.ID)
	}
	if err := l.checkNonNegative(ctx, req.UserID, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Refund credits back every consumption entry of the request.
func (l *PoolLedger) Refund(ctx context.Context, req Request, at generic.TimePoint, actor UserID) ([]generic.Entry, error) {
	written, err := l.ledger.EntriesFor(ctx, string(req.ID))
	if err != nil {
		return nil, err
	}

	var entries []generic.Entry
	for _, e := range written {
		if e.Kind != generic.EntryConsumption {
			continue
		}
		entries = append(entries, generic.Entry{
			ID:             generic.EntryID(uuid.NewString()),
			EntityID:       e.EntityID,
			PoolID:         e.PoolID,
			EffectiveAt:    at,
			Delta:          e.Delta.Neg(),
			Kind:           generic.EntryRefund,
			Name:           e.Name,
			Flavor:         e.Flavor,
			ReferenceID:    e.ReferenceID,
			IdempotencyKey: fmt.Sprintf("request:%s:%s:refund", req.ID, e.PoolID),
			CreatedBy:      string(actor),
			CreatedAt:      generic.Today(l.clock),
		})
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if err := l.ledger.AppendBatch(ctx, entries); err != nil {
		return nil, errors.Wrapf(err, "refund request %s", req.ID)
	}
	return entries, nil
}

// DrainOrder sorts pools soonest-expiring first; "restant" wins a tie.
func DrainOrder(pools []UserPool) []UserPool {
	out := append([]UserPool(nil), pools...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Pool, out[j].Pool
		if !a.Window.End.Equal(b.Window.End) {
			return a.Window.End.Before(b.Window.End)
		}
		return a.Name == PoolRestant && b.Name != PoolRestant
	})
	return out
}

func (l *PoolLedger) entry(user UserID, pool Pool, delta decimal.Decimal, at generic.TimePoint, kind generic.EntryKind,
	flavor string, req RequestID, key string, createdBy UserID) generic.Entry {
	return generic.Entry{
		ID:             generic.EntryID(uuid.NewString()),
		EntityID:       generic.EntityID(user),
		PoolID:         pool.ID,
		EffectiveAt:    at,
		Delta:          generic.NewAmountFromDecimal(delta, pool.Unit),
		Kind:           kind,
		Name:           pool.Name,
		Flavor:         flavor,
		ReferenceID:    string(req),
		IdempotencyKey: key,
		CreatedBy:      string(createdBy),
		CreatedAt:      generic.Today(l.clock),
	}
}

func (l *PoolLedger) checkNonNegative(ctx context.Context, user UserID, written []generic.Entry) error {
	pools, err := l.repo.UserPools(ctx, user)
	if err != nil {
		return err
	}
	touched := make(map[generic.PoolID]bool, len(written))
	for _, e := range written {
		touched[e.PoolID] = true
	}
	for _, up := range pools {
		if touched[up.Pool.ID] && up.Amount.IsNegative() {
			return &generic.NegativeBalanceError{
				EntityID: generic.EntityID(user),
				PoolID:   up.Pool.ID,
				Balance:  generic.NewAmountFromDecimal(up.Amount, up.Pool.Unit),
			}
		}
	}
	return nil
}
