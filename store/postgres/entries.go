package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEDGER ENTRIES - append-only
// =============================================================================

func (r *repo) Append(ctx context.Context, e generic.Entry) error {
	return r.AppendBatch(ctx, []generic.Entry{e})
}

// AppendBatch moves the cached pool amount first: a missing user_pools row
// is reported as an integrity error rather than a foreign key failure.
func (r *repo) AppendBatch(ctx context.Context, entries []generic.Entry) error {
	for _, e := range entries {
		tag, err := r.q.Exec(ctx, `
			UPDATE user_pools SET amount = amount + $1::numeric
			 WHERE user_id = $2 AND pool_id = $3`,
			e.Delta.Value.String(), string(e.EntityID), string(e.PoolID))
		if err != nil {
			return errors.Wrap(translatePgError(err), "update pool amount")
		}
		if tag.RowsAffected() == 0 {
			return generic.Integrityf("pool %s is not assigned to %s", e.PoolID, e.EntityID)
		}

		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = generic.DateOf(time.Now().UTC())
		}
		_, err = r.q.Exec(ctx, `
			INSERT INTO ledger_entries (
				id, entity_id, pool_id, effective_at, delta_value, delta_unit, kind,
				name, flavor, reference_id, idempotency_key, created_by, created_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13)`,
			string(e.ID), string(e.EntityID), string(e.PoolID), e.EffectiveAt.Time,
			e.Delta.Value.String(), string(e.Delta.Unit), string(e.Kind),
			e.Name, e.Flavor, nullText(e.ReferenceID), nullText(e.IdempotencyKey),
			e.CreatedBy, createdAt.Time)
		if err != nil {
			return errors.Wrapf(translatePgError(err), "insert entry %s", e.ID)
		}
	}
	return nil
}

const selectEntries = `
	SELECT seq, id, entity_id, pool_id, effective_at, delta_value::text, delta_unit, kind,
	       name, flavor, reference_id, idempotency_key, created_by, created_at
	  FROM ledger_entries`

func (r *repo) Load(ctx context.Context, entityID generic.EntityID, poolID generic.PoolID) ([]generic.Entry, error) {
	return r.queryEntries(ctx, selectEntries+`
	 WHERE entity_id = $1 AND pool_id = $2
	 ORDER BY effective_at, seq`, string(entityID), string(poolID))
}

func (r *repo) LoadRange(ctx context.Context, entityID generic.EntityID, poolID generic.PoolID, from, to generic.TimePoint) ([]generic.Entry, error) {
	return r.queryEntries(ctx, selectEntries+`
	 WHERE entity_id = $1 AND pool_id = $2 AND effective_at BETWEEN $3 AND $4
	 ORDER BY effective_at, seq`, string(entityID), string(poolID), from.Time, to.Time)
}

func (r *repo) LoadByReference(ctx context.Context, referenceID string) ([]generic.Entry, error) {
	return r.queryEntries(ctx, selectEntries+`
	 WHERE reference_id = $1
	 ORDER BY effective_at, seq`, referenceID)
}

func (r *repo) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE idempotency_key = $1)`,
		idempotencyKey).Scan(&exists)
	return exists, err
}

func (r *repo) queryEntries(ctx context.Context, query string, args ...any) ([]generic.Entry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query entries")
	}
	defer rows.Close()

	var out []generic.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (generic.Entry, error) {
	var (
		seq                             int64
		id, entityID, poolID            string
		effectiveAt, createdAt          time.Time
		value, unit, kind, name, flavor string
		referenceID, idempotencyKey     *string
		createdBy                       string
	)
	if err := row.Scan(&seq, &id, &entityID, &poolID, &effectiveAt, &value, &unit, &kind,
		&name, &flavor, &referenceID, &idempotencyKey, &createdBy, &createdAt); err != nil {
		return generic.Entry{}, err
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return generic.Entry{}, errors.Wrapf(err, "entry %s delta", id)
	}
	return generic.Entry{
		ID:             generic.EntryID(id),
		EntityID:       generic.EntityID(entityID),
		PoolID:         generic.PoolID(poolID),
		EffectiveAt:    generic.DateOf(effectiveAt),
		Delta:          generic.NewAmountFromDecimal(v, generic.Unit(unit)),
		Kind:           generic.EntryKind(kind),
		Name:           name,
		Flavor:         flavor,
		ReferenceID:    deref(referenceID),
		IdempotencyKey: deref(idempotencyKey),
		CreatedBy:      createdBy,
		CreatedAt:      generic.DateOf(createdAt),
		Seq:            seq,
	}, nil
}
