package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func TestWithTx_LocksPoolsAndCommits(t *testing.T) {
	mock, store := newMock(t)

	// GIVEN: the user row and one RTT pool row
	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("fr1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("fr1"))
	mock.ExpectQuery("FOR UPDATE OF up").
		WithArgs("fr1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "vacation_type", "country", "pool_group", "date_start", "date_end", "unit", "amount",
		}).AddRow("fr1:rtt", "RTT", "RTT", "fr", "", date(2016, 1, 1), date(2016, 12, 31), "days", "5.0000"))
	mock.ExpectCommit()

	// WHEN: a unit of work locks the pools
	var pools []leave.UserPool
	err := store.WithTx(context.Background(), func(tx leave.Repository) error {
		var err error
		pools, err = tx.LockUserPools(context.Background(), "fr1")
		return err
	})

	// THEN: the row is decoded and the transaction committed
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, generic.PoolID("fr1:rtt"), pools[0].Pool.ID)
	assert.Equal(t, "5", pools[0].Amount.String())
	assert.True(t, pools[0].Pool.Window.End.Equal(generic.NewTimePoint(2016, time.December, 31)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockUserPools_LocksUserWithoutPools(t *testing.T) {
	mock, store := newMock(t)

	// GIVEN: a user holding no pool at all
	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("lu1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("lu1"))
	mock.ExpectQuery("FOR UPDATE OF up").
		WithArgs("lu1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "vacation_type", "country", "pool_group", "date_start", "date_end", "unit", "amount",
		}))
	mock.ExpectCommit()

	// WHEN: a unit of work locks the pools
	err := store.WithTx(context.Background(), func(tx leave.Repository) error {
		pools, err := tx.LockUserPools(context.Background(), "lu1")
		assert.Empty(t, pools)
		return err
	})

	// THEN: the user row was locked all the same
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockUserPools_UnknownUser(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx leave.Repository) error {
		_, err := tx.LockUserPools(context.Background(), "ghost")
		return err
	})

	assert.True(t, generic.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	mock, store := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(leave.Repository) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_UnassignedPoolIsIntegrityError(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectExec("UPDATE user_pools").
		WithArgs("-1", "fr1", "fr1:rtt").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.Append(context.Background(), generic.Entry{
		ID: "e1", EntityID: "fr1", PoolID: "fr1:rtt", EffectiveAt: generic.NewTimePoint(2016, time.October, 3),
		Delta: generic.NewAmount(-1, generic.UnitDays), Kind: generic.EntryConsumption,
	})

	assert.True(t, generic.IsIntegrity(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_UniqueViolationIsDuplicateKey(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectExec("UPDATE user_pools").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(anyArgs(13)...).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})
	mock.ExpectRollback()

	err := store.Append(context.Background(), generic.Entry{
		ID: "e1", EntityID: "fr1", PoolID: "fr1:rtt", EffectiveAt: generic.NewTimePoint(2016, time.October, 3),
		Delta: generic.NewAmount(-1, generic.UnitDays), Kind: generic.EntryConsumption,
		IdempotencyKey: "request:r1:fr1:rtt:consume",
	})

	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_DecodesEntries(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectQuery("FROM ledger_entries").
		WithArgs("fr1", "fr1:cp").
		WillReturnRows(pgxmock.NewRows([]string{
			"seq", "id", "entity_id", "pool_id", "effective_at", "delta_value", "delta_unit", "kind",
			"name", "flavor", "reference_id", "idempotency_key", "created_by", "created_at",
		}).
			AddRow(int64(1), "e1", "fr1", "fr1:cp", date(2016, 6, 1), "10.0000", "days", "adjustment",
				"acquis", "opening", strPtr(""), strPtr(""), "", date(2016, 6, 1)).
			AddRow(int64(2), "e2", "fr1", "fr1:cp", date(2016, 10, 3), "-1.5000", "days", "consumption",
				"acquis", "CP", strPtr("r1"), strPtr("request:r1:fr1:cp:consume"), "fr1", date(2016, 10, 3)))

	entries, err := store.Load(context.Background(), "fr1", "fr1:cp")

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "-1.5", entries[1].Delta.Value.String())
	assert.Equal(t, "r1", entries[1].ReferenceID)
	assert.Equal(t, int64(2), entries[1].Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectQuery("FROM users").
		WithArgs("fr1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "login", "name", "country", "role", "arrival_date", "manager_id", "org_unit", "teams", "features",
		}).AddRow("fr1", "jdoe", "Jeanne", "fr", "user", date(2012, 1, 1), strPtr("boss"), "eng",
			[]string{"api"}, []string{leave.FeatureDisableRTT}))
	mock.ExpectQuery("FROM users").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	u, err := store.GetUser(context.Background(), "fr1")
	require.NoError(t, err)
	assert.Equal(t, leave.UserID("boss"), u.ManagerID)
	assert.True(t, u.HasFeature(leave.FeatureDisableRTT))

	_, err = store.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, leave.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRequests_BuildsPositionalFilter(t *testing.T) {
	mock, store := newMock(t)
	from, to := generic.NewTimePoint(2016, time.October, 10), generic.NewTimePoint(2016, time.October, 12)

	mock.ExpectQuery(`user_id = ANY\(\$1\) AND status = ANY\(\$2\) AND date_from <= \$3 AND date_to >= \$4`).
		WithArgs([]string{"fr1"}, []string{"PENDING", "ACCEPTED_MANAGER", "APPROVED_ADMIN"}, to.Time, from.Time).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "date_from", "date_to", "days", "label", "vacation_type", "status", "notified",
			"message", "recovered_holiday", "refusal_reason", "pool_status", "last_action_user_id",
			"created_at", "updated_at",
		}))

	got, err := store.ListRequests(context.Background(), leave.RequestFilter{
		UserIDs:     []leave.UserID{"fr1"},
		Statuses:    leave.ActiveStatuses,
		Overlapping: &generic.Period{Start: from, End: to},
	})

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolStatusJSONKeepsDecimals(t *testing.T) {
	b, err := encodePoolStatus(map[string]decimal.Decimal{"CP acquis": decimal.RequireFromString("12.48")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"CP acquis":"12.48"}`, string(b))

	m, err := decodePoolStatus(b)
	require.NoError(t, err)
	assert.Equal(t, "12.48", m["CP acquis"].String())
}

func TestTranslatePgError(t *testing.T) {
	assert.ErrorIs(t, translatePgError(&pgconn.PgError{Code: uniqueViolationCode}), generic.ErrDuplicateIdempotencyKey)
	assert.True(t, generic.IsIntegrity(translatePgError(&pgconn.PgError{Code: foreignKeyViolationCode})))

	other := errors.New("random")
	assert.Equal(t, other, translatePgError(other))
}
