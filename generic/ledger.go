/*
ledger.go - Append-only entry log

PURPOSE:
  The Ledger is the source of truth for every pool balance. Accruals,
  request consumption, refunds and admin corrections are all entries.
  Balances are computed by replaying entries; the cached amount a
  repository keeps next to a pool is only an index of that sum.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, entries cannot be modified.
  3. IDEMPOTENT: Same idempotency key = same entry (no duplicates).

CORRECTIONS:
  A denied or canceled request is not erased. A refund entry with the
  opposite sign is appended, so the history shows both the reservation
  and its return.

EXAMPLE FLOW:
  1. Pool year opens:        accrual +25 (acquis)
  2. Request for 3 days:     consumption -1 (restant), -2 (acquis)
  3. Request canceled:       refund +1 (restant), +2 (acquis)

SEE ALSO:
  - store.go: Low-level persistence interface
  - leave/ledger.go: Pool split and refund on top of this ledger
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only entry log
// =============================================================================

// Ledger is the source of truth for all balance changes.
type Ledger interface {
	// Append adds an entry. Fails if the idempotency key exists.
	Append(ctx context.Context, e Entry) error

	// AppendBatch adds multiple entries atomically.
	AppendBatch(ctx context.Context, entries []Entry) error

	// Entries returns all entries for entity+pool, chronologically.
	Entries(ctx context.Context, entityID EntityID, poolID PoolID) ([]Entry, error)

	// EntriesInRange returns entries in [from, to].
	EntriesInRange(ctx context.Context, entityID EntityID, poolID PoolID, from, to TimePoint) ([]Entry, error)

	// EntriesFor returns the entries written on behalf of a reference.
	EntriesFor(ctx context.Context, referenceID string) ([]Entry, error)

	// BalanceAt sums every entry with EffectiveAt <= at.
	BalanceAt(ctx context.Context, entityID EntityID, poolID PoolID, at TimePoint, unit Unit) (Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, e Entry) error {
	if e.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, e)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		if seen[e.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
		exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, entries)
}

func (l *DefaultLedger) Entries(ctx context.Context, entityID EntityID, poolID PoolID) ([]Entry, error) {
	return l.Store.Load(ctx, entityID, poolID)
}

func (l *DefaultLedger) EntriesInRange(ctx context.Context, entityID EntityID, poolID PoolID, from, to TimePoint) ([]Entry, error) {
	return l.Store.LoadRange(ctx, entityID, poolID, from, to)
}

func (l *DefaultLedger) EntriesFor(ctx context.Context, referenceID string) ([]Entry, error) {
	return l.Store.LoadByReference(ctx, referenceID)
}

func (l *DefaultLedger) BalanceAt(ctx context.Context, entityID EntityID, poolID PoolID, at TimePoint, unit Unit) (Amount, error) {
	entries, err := l.Store.Load(ctx, entityID, poolID)
	if err != nil {
		return Amount{}, err
	}

	balance := NewAmount(0, unit)
	for _, e := range entries {
		if e.EffectiveAt.After(at) {
			break
		}
		balance = balance.Add(e.Delta)
	}
	return balance, nil
}
