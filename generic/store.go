/*
store.go - Persistence interface for ledger entries

PURPOSE:
  Defines the boundary between ledger logic and the database. The Store
  keeps append-only semantics; richer repositories (users, pools,
  requests) live in the leave package and embed this contract.

KEY INTERFACES:
  Store: Core entry persistence (append, load, exists). Units of work are
         opened by leave.TxRepository, whose Repository embeds Store.

APPEND-ONLY CONTRACT:
  - Append(): single entry write
  - AppendBatch(): atomic multi-entry write
  - NO Update() or Delete() methods exist

ORDERING:
  Load returns entries ordered by (EffectiveAt, Seq). Seq is assigned by
  the store so that two entries on the same day replay in append order;
  the history merge rule depends on it.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory, snapshot rollback
  - store/sqlite/sqlite.go:  SQLite (single writer)
  - store/postgres:          PostgreSQL (row locks)

SEE ALSO:
  - ledger.go: Higher-level interface using Store
  - leave/store.go: Repository interfaces for the leave domain
*/
package generic

import "context"

// =============================================================================
// STORE - Interface for entry persistence (append-only)
// =============================================================================

// Store handles persistence of ledger entries.
type Store interface {
	// Append persists an entry. Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, e Entry) error

	// AppendBatch persists multiple entries atomically.
	AppendBatch(ctx context.Context, entries []Entry) error

	// Load returns all entries for entity+pool, ordered by (EffectiveAt, Seq).
	Load(ctx context.Context, entityID EntityID, poolID PoolID) ([]Entry, error)

	// LoadRange returns entries with EffectiveAt in [from, to].
	LoadRange(ctx context.Context, entityID EntityID, poolID PoolID, from, to TimePoint) ([]Entry, error)

	// LoadByReference returns every entry written for a reference (request id).
	LoadByReference(ctx context.Context, referenceID string) ([]Entry, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
