/*
Package sqlite provides a SQLite-backed leave.TxRepository.

PURPOSE:
  Single-file persistence for development and small deployments. The
  PostgreSQL store (store/postgres) implements the same contract with row
  locks; here SQLite's single writer plus an in-process mutex serialize
  every unit of work.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on ledger_entries
  - Corrections are refund or adjustment entries
  - user_pools.amount is a cache moved in the same statement batch as the
    entry insert, so it always equals the sum of the pool's entries

KEY TABLES:
  users, vacation_types:  Directory data (lists stored as JSON)
  pools, user_pools:      Pool definitions and per-user cached amounts
  ledger_entries:         Immutable log, seq gives append order
  requests:               Leave requests, pool_status as JSON
  request_history:        One row per status change

WAL MODE:
  Opened with WAL and foreign keys on. The pool is capped at one
  connection so ":memory:" databases stay a single database.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - leave/store.go: Repository contract
  - store/memory:   In-process implementation
  - store/postgres: Production implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the top-level repository. Reads and single writes go straight
// to the database; WithTx hands fn a repo bound to one *sql.Tx.
type Store struct {
	*repo
	db *sql.DB
	mu sync.Mutex
}

type repo struct {
	q querier
}

var (
	_ leave.TxRepository = (*Store)(nil)
	_ leave.Repository   = (*repo)(nil)
)

// New opens (or creates) the database at path and migrates the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)

	s := &Store{repo: &repo{q: db}, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate sqlite")
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		login TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		arrival_date TEXT NOT NULL,
		manager_id TEXT,
		org_unit TEXT NOT NULL DEFAULT '',
		teams TEXT NOT NULL DEFAULT '[]',
		features TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS vacation_types (
		name TEXT PRIMARY KEY,
		countries TEXT NOT NULL DEFAULT '[]',
		visibility TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		vacation_type TEXT NOT NULL,
		country TEXT NOT NULL DEFAULT '',
		pool_group TEXT NOT NULL DEFAULT '',
		date_start TEXT NOT NULL,
		date_end TEXT NOT NULL,
		unit TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_pools (
		user_id TEXT NOT NULL REFERENCES users(id),
		pool_id TEXT NOT NULL REFERENCES pools(id),
		amount TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (user_id, pool_id)
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		entity_id TEXT NOT NULL,
		pool_id TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		flavor TEXT NOT NULL DEFAULT '',
		reference_id TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		FOREIGN KEY (entity_id, pool_id) REFERENCES user_pools(user_id, pool_id)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entity_pool_date
		ON ledger_entries(entity_id, pool_id, effective_at, seq);
	CREATE INDEX IF NOT EXISTS idx_ledger_reference
		ON ledger_entries(reference_id);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL,
		days TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		vacation_type TEXT NOT NULL,
		status TEXT NOT NULL,
		notified INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		recovered_holiday TEXT,
		refusal_reason TEXT NOT NULL DEFAULT '',
		pool_status TEXT NOT NULL DEFAULT '{}',
		last_action_user_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_user_dates
		ON requests(user_id, date_from, date_to);

	CREATE TABLE IF NOT EXISTS request_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		request_id TEXT NOT NULL REFERENCES requests(id),
		old_status TEXT NOT NULL DEFAULT '',
		new_status TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		sudo_user_id TEXT NOT NULL DEFAULT '',
		pool_status TEXT NOT NULL DEFAULT '{}',
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside one SQLite transaction. The mutex keeps two units
// of work from interleaving their pool reads and writes.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(&repo{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// Append outside WithTx still needs the entry and the cached amount to move
// together.
func (s *Store) Append(ctx context.Context, e generic.Entry) error {
	return s.AppendBatch(ctx, []generic.Entry{e})
}

func (s *Store) AppendBatch(ctx context.Context, entries []generic.Entry) error {
	return s.WithTx(ctx, func(r leave.Repository) error {
		return r.AppendBatch(ctx, entries)
	})
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func (r *repo) Append(ctx context.Context, e generic.Entry) error {
	return r.AppendBatch(ctx, []generic.Entry{e})
}

// AppendBatch assumes it runs inside a transaction: a failure part way
// leaves earlier rows for the caller's rollback to discard.
func (r *repo) AppendBatch(ctx context.Context, entries []generic.Entry) error {
	for _, e := range entries {
		if err := r.appendOne(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) appendOne(ctx context.Context, e generic.Entry) error {
	amount, err := r.userPoolAmount(ctx, leave.UserID(e.EntityID), e.PoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return generic.Integrityf("pool %s is not assigned to %s", e.PoolID, e.EntityID)
		}
		return err
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = generic.DateOf(time.Now().UTC())
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			id, entity_id, pool_id, effective_at, delta_value, delta_unit, kind,
			name, flavor, reference_id, idempotency_key, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EntityID, e.PoolID, e.EffectiveAt.String(),
		e.Delta.Value.String(), e.Delta.Unit, e.Kind,
		e.Name, e.Flavor, nullString(e.ReferenceID), nullString(e.IdempotencyKey),
		e.CreatedBy, createdAt.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return errors.Wrapf(err, "insert entry %s", e.ID)
	}

	_, err = r.q.ExecContext(ctx,
		`UPDATE user_pools SET amount = ? WHERE user_id = ? AND pool_id = ?`,
		amount.Add(e.Delta.Value).String(), e.EntityID, e.PoolID,
	)
	return errors.Wrap(err, "update pool amount")
}

func (r *repo) userPoolAmount(ctx context.Context, user leave.UserID, pool generic.PoolID) (decimal.Decimal, error) {
	var raw string
	err := r.q.QueryRowContext(ctx,
		`SELECT amount FROM user_pools WHERE user_id = ? AND pool_id = ?`, user, pool,
	).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

const entryColumns = `
	seq, id, entity_id, pool_id, effective_at, delta_value, delta_unit, kind,
	name, flavor, reference_id, idempotency_key, created_by, created_at`

func (r *repo) Load(ctx context.Context, entityID generic.EntityID, poolID generic.PoolID) ([]generic.Entry, error) {
	return r.queryEntries(ctx, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE entity_id = ? AND pool_id = ?
		ORDER BY effective_at, seq`, entityID, poolID)
}

func (r *repo) LoadRange(ctx context.Context, entityID generic.EntityID, poolID generic.PoolID, from, to generic.TimePoint) ([]generic.Entry, error) {
	return r.queryEntries(ctx, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE entity_id = ? AND pool_id = ? AND effective_at >= ? AND effective_at <= ?
		ORDER BY effective_at, seq`, entityID, poolID, from.String(), to.String())
}

func (r *repo) LoadByReference(ctx context.Context, referenceID string) ([]generic.Entry, error) {
	return r.queryEntries(ctx, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE reference_id = ?
		ORDER BY effective_at, seq`, referenceID)
}

func (r *repo) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?`, idempotencyKey,
	).Scan(&n)
	return n > 0, err
}

func (r *repo) queryEntries(ctx context.Context, query string, args ...any) ([]generic.Entry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query entries")
	}
	defer rows.Close()

	var out []generic.Entry
	for rows.Next() {
		var (
			e                       generic.Entry
			effectiveAt, createdAt  string
			value, unit, kind       string
			referenceID, idempotent sql.NullString
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.EntityID, &e.PoolID, &effectiveAt,
			&value, &unit, &kind, &e.Name, &e.Flavor, &referenceID, &idempotent,
			&e.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		if e.EffectiveAt, err = generic.ParseDate(effectiveAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = generic.ParseDate(createdAt); err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %s delta", e.ID)
		}
		e.Delta = generic.NewAmountFromDecimal(v, generic.Unit(unit))
		e.Kind = generic.EntryKind(kind)
		e.ReferenceID = referenceID.String
		e.IdempotencyKey = idempotent.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// USERS AND TYPES
// =============================================================================

const userColumns = `id, login, name, country, role, arrival_date, manager_id, org_unit, teams, features`

func (r *repo) GetUser(ctx context.Context, id leave.UserID) (leave.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return leave.User{}, leave.ErrUserNotFound
	}
	return u, err
}

func (r *repo) ListUsers(ctx context.Context) ([]leave.User, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	var out []leave.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *repo) SaveUser(ctx context.Context, u leave.User) error {
	teams, err := json.Marshal(nonNil(u.Teams))
	if err != nil {
		return err
	}
	features, err := json.Marshal(nonNil(u.Features))
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			login = excluded.login,
			name = excluded.name,
			country = excluded.country,
			role = excluded.role,
			arrival_date = excluded.arrival_date,
			manager_id = excluded.manager_id,
			org_unit = excluded.org_unit,
			teams = excluded.teams,
			features = excluded.features`,
		u.ID, u.Login, u.Name, u.Country, u.Role, u.ArrivalDate.String(),
		nullString(string(u.ManagerID)), u.OrgUnit, string(teams), string(features),
	)
	return errors.Wrapf(err, "save user %s", u.ID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (leave.User, error) {
	var (
		u                      leave.User
		role, arrival          string
		manager                sql.NullString
		teamsJSON, featureJSON string
	)
	if err := row.Scan(&u.ID, &u.Login, &u.Name, &u.Country, &role, &arrival,
		&manager, &u.OrgUnit, &teamsJSON, &featureJSON); err != nil {
		return leave.User{}, err
	}
	u.Role = leave.Role(role)
	u.ManagerID = leave.UserID(manager.String)
	var err error
	if u.ArrivalDate, err = generic.ParseDate(arrival); err != nil {
		return leave.User{}, err
	}
	if err := json.Unmarshal([]byte(teamsJSON), &u.Teams); err != nil {
		return leave.User{}, errors.Wrapf(err, "user %s teams", u.ID)
	}
	if err := json.Unmarshal([]byte(featureJSON), &u.Features); err != nil {
		return leave.User{}, errors.Wrapf(err, "user %s features", u.ID)
	}
	return u, nil
}

func (r *repo) GetVacationType(ctx context.Context, name string) (leave.VacationType, error) {
	vt, err := scanVacationType(r.q.QueryRowContext(ctx,
		`SELECT name, countries, visibility FROM vacation_types WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return leave.VacationType{}, leave.ErrVacationTypeNotFound
	}
	return vt, err
}

func (r *repo) ListVacationTypes(ctx context.Context) ([]leave.VacationType, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT name, countries, visibility FROM vacation_types ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list vacation types")
	}
	defer rows.Close()

	var out []leave.VacationType
	for rows.Next() {
		vt, err := scanVacationType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, vt)
	}
	return out, rows.Err()
}

func (r *repo) SaveVacationType(ctx context.Context, vt leave.VacationType) error {
	countries, err := json.Marshal(nonNil(vt.Countries))
	if err != nil {
		return err
	}
	visibility, err := json.Marshal(nonNil(vt.Visibility))
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO vacation_types (name, countries, visibility) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			countries = excluded.countries,
			visibility = excluded.visibility`,
		vt.Name, string(countries), string(visibility),
	)
	return errors.Wrapf(err, "save vacation type %s", vt.Name)
}

func scanVacationType(row rowScanner) (leave.VacationType, error) {
	var (
		vt                   leave.VacationType
		countries, visibleTo string
	)
	if err := row.Scan(&vt.Name, &countries, &visibleTo); err != nil {
		return leave.VacationType{}, err
	}
	if err := json.Unmarshal([]byte(countries), &vt.Countries); err != nil {
		return leave.VacationType{}, err
	}
	if err := json.Unmarshal([]byte(visibleTo), &vt.Visibility); err != nil {
		return leave.VacationType{}, err
	}
	if len(vt.Countries) == 0 {
		vt.Countries = nil
	}
	if len(vt.Visibility) == 0 {
		vt.Visibility = nil
	}
	return vt, nil
}

// =============================================================================
// POOLS
// =============================================================================

func (r *repo) SavePool(ctx context.Context, p leave.Pool) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO pools (id, name, vacation_type, country, pool_group, date_start, date_end, unit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			vacation_type = excluded.vacation_type,
			country = excluded.country,
			pool_group = excluded.pool_group,
			date_start = excluded.date_start,
			date_end = excluded.date_end,
			unit = excluded.unit`,
		p.ID, p.Name, p.VacationType, p.Country, p.Group,
		p.Window.Start.String(), p.Window.End.String(), p.Unit,
	)
	return errors.Wrapf(err, "save pool %s", p.ID)
}

func (r *repo) AssignPool(ctx context.Context, user leave.UserID, pool generic.PoolID) error {
	var exists int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM pools WHERE id = ?`, pool).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return leave.ErrPoolNotFound
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO user_pools (user_id, pool_id, amount) VALUES (?, ?, '0')
		ON CONFLICT(user_id, pool_id) DO NOTHING`, user, pool)
	return errors.Wrapf(err, "assign pool %s to %s", pool, user)
}

func (r *repo) UserPools(ctx context.Context, user leave.UserID) ([]leave.UserPool, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT p.id, p.name, p.vacation_type, p.country, p.pool_group,
		       p.date_start, p.date_end, p.unit, up.amount
		FROM user_pools up
		JOIN pools p ON p.id = up.pool_id
		WHERE up.user_id = ?
		ORDER BY p.date_start, p.id`, user)
	if err != nil {
		return nil, errors.Wrap(err, "list user pools")
	}
	defer rows.Close()

	var out []leave.UserPool
	for rows.Next() {
		var (
			p                leave.Pool
			start, end, unit string
			amount           string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.VacationType, &p.Country, &p.Group,
			&start, &end, &unit, &amount); err != nil {
			return nil, err
		}
		if p.Window.Start, err = generic.ParseDate(start); err != nil {
			return nil, err
		}
		if p.Window.End, err = generic.ParseDate(end); err != nil {
			return nil, err
		}
		p.Unit = generic.Unit(unit)
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, errors.Wrapf(err, "pool %s amount", p.ID)
		}
		out = append(out, leave.UserPool{UserID: user, Pool: p, Amount: v})
	}
	return out, rows.Err()
}

// LockUserPools relies on WithTx holding the store mutex; SQLite has no
// row locks.
func (r *repo) LockUserPools(ctx context.Context, user leave.UserID) ([]leave.UserPool, error) {
	return r.UserPools(ctx, user)
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `
	id, user_id, date_from, date_to, days, label, vacation_type, status, notified,
	message, recovered_holiday, refusal_reason, pool_status, last_action_user_id,
	created_at, updated_at`

func (r *repo) GetRequest(ctx context.Context, id leave.RequestID) (leave.Request, error) {
	req, err := scanRequest(r.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Request{}, leave.ErrRequestNotFound
	}
	return req, err
}

func (r *repo) SaveRequest(ctx context.Context, req leave.Request) error {
	poolStatus, err := encodePoolStatus(req.PoolStatus)
	if err != nil {
		return err
	}
	var recovered sql.NullString
	if !req.RecoveredHoliday.IsZero() {
		recovered = sql.NullString{String: req.RecoveredHoliday.String(), Valid: true}
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			notified = excluded.notified,
			message = excluded.message,
			refusal_reason = excluded.refusal_reason,
			pool_status = excluded.pool_status,
			last_action_user_id = excluded.last_action_user_id,
			updated_at = excluded.updated_at`,
		req.ID, req.UserID, req.DateFrom.String(), req.DateTo.String(), req.Days.String(),
		req.Label, req.VacationType, req.Status, req.Notified, req.Message, recovered,
		req.RefusalReason, poolStatus, req.LastActionUserID,
		req.CreatedAt.UTC().Format(time.RFC3339Nano), req.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return errors.Wrapf(err, "save request %s", req.ID)
}

// ListRequests pushes every filter field into SQL.
func (r *repo) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	var (
		where []string
		args  []any
	)
	if len(f.UserIDs) > 0 {
		where = append(where, "user_id IN ("+placeholders(len(f.UserIDs))+")")
		for _, id := range f.UserIDs {
			args = append(args, id)
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.VacationType != "" {
		where = append(where, "vacation_type = ?")
		args = append(args, f.VacationType)
	}
	if f.Overlapping != nil {
		where = append(where, "date_from <= ? AND date_to >= ?")
		args = append(args, f.Overlapping.End.String(), f.Overlapping.Start.String())
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date_from, id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list requests")
	}
	defer rows.Close()

	var out []leave.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row rowScanner) (leave.Request, error) {
	var (
		req                   leave.Request
		from, to, days, label string
		status, poolStatus    string
		createdAt, updatedAt  string
		recovered             sql.NullString
	)
	if err := row.Scan(&req.ID, &req.UserID, &from, &to, &days, &label, &req.VacationType,
		&status, &req.Notified, &req.Message, &recovered, &req.RefusalReason, &poolStatus,
		&req.LastActionUserID, &createdAt, &updatedAt); err != nil {
		return leave.Request{}, err
	}
	var err error
	if req.DateFrom, err = generic.ParseDate(from); err != nil {
		return leave.Request{}, err
	}
	if req.DateTo, err = generic.ParseDate(to); err != nil {
		return leave.Request{}, err
	}
	if recovered.Valid {
		if req.RecoveredHoliday, err = generic.ParseDate(recovered.String); err != nil {
			return leave.Request{}, err
		}
	}
	if req.Days, err = decimal.NewFromString(days); err != nil {
		return leave.Request{}, errors.Wrapf(err, "request %s days", req.ID)
	}
	if req.PoolStatus, err = decodePoolStatus(poolStatus); err != nil {
		return leave.Request{}, errors.Wrapf(err, "request %s pool status", req.ID)
	}
	req.Label = label
	req.Status = leave.Status(status)
	req.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	req.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return req, nil
}

// =============================================================================
// REQUEST HISTORY
// =============================================================================

func (r *repo) AppendHistory(ctx context.Context, h leave.RequestHistory) error {
	poolStatus, err := encodePoolStatus(h.PoolStatus)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO request_history (
			id, request_id, old_status, new_status, actor_id, sudo_user_id,
			pool_status, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.RequestID, h.OldStatus, h.NewStatus, h.ActorID, h.SudoUserID,
		poolStatus, h.Reason, h.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return errors.Wrapf(err, "append history for %s", h.RequestID)
}

func (r *repo) ListHistory(ctx context.Context, id leave.RequestID) ([]leave.RequestHistory, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, request_id, old_status, new_status, actor_id, sudo_user_id,
		       pool_status, reason, created_at
		FROM request_history WHERE request_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	defer rows.Close()

	var out []leave.RequestHistory
	for rows.Next() {
		var (
			h                               leave.RequestHistory
			oldStatus, newStatus, poolState string
			createdAt                       string
		)
		if err := rows.Scan(&h.ID, &h.RequestID, &oldStatus, &newStatus, &h.ActorID,
			&h.SudoUserID, &poolState, &h.Reason, &createdAt); err != nil {
			return nil, err
		}
		h.OldStatus = leave.Status(oldStatus)
		h.NewStatus = leave.Status(newStatus)
		if h.PoolStatus, err = decodePoolStatus(poolState); err != nil {
			return nil, err
		}
		h.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func encodePoolStatus(m map[string]decimal.Decimal) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw := make(map[string]string, len(m))
	for k, v := range m {
		raw[k] = v.String()
	}
	b, err := json.Marshal(raw)
	return string(b), err
}

func decodePoolStatus(s string) (map[string]decimal.Decimal, error) {
	var raw map[string]string
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for k, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
