/*
Package postgres provides the production leave.TxRepository on PostgreSQL.

PURPOSE:
  Same contract as store/sqlite, but concurrent units of work are
  isolated by row locks instead of a process mutex: LockUserPools issues
  SELECT ... FOR UPDATE on the user row and the user's pool rows, so two
  requests for the same user serialize while different users proceed in
  parallel.

SCHEMA:
  Versioned SQL under migrations/, embedded and applied with
  golang-migrate (Migrate here, or cmd/migrate).

TRANSACTIONS:
  WithTx begins a pgx transaction and hands fn a repository bound to it.

SEE ALSO:
  - leave/store.go:   Repository contract
  - store/sqlite:     Embedded implementation
  - cmd/migrate:      Migration CLI
*/
package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

// Queryer is satisfied by pgxpool.Pool, pgx.Tx and pgxmock.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB is a Queryer that can open transactions.
type DB interface {
	Queryer
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Store is the pool-level repository.
type Store struct {
	*repo
	db DB
}

type repo struct {
	q Queryer
}

var (
	_ leave.TxRepository = (*Store)(nil)
	_ leave.Repository   = (*repo)(nil)
)

func New(db DB) *Store {
	return &Store{repo: &repo{q: db}, db: db}
}

// BuildPoolConfig maps the store section onto a pgxpool config.
func BuildPoolConfig(cfg config.PostgresConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: parse config")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	return poolCfg, nil
}

// NewPool opens a pool and pings it.
func NewPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := BuildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: ping")
	}
	return pool, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a read-write transaction at READ COMMITTED; the row
// locks taken by LockUserPools provide the per-user serialization.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Repository) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return errors.Wrap(err, "postgres: begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(&repo{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.CombineErrors(err, errors.Wrap(rbErr, "postgres: rollback"))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "postgres: commit")
	}
	committed = true
	return nil
}

// Append outside a transaction still moves the entry and the cached amount
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
// HELPERS
// =============================================================================

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return generic.ErrDuplicateIdempotencyKey
		case foreignKeyViolationCode:
			return generic.Integrityf("%s", pgErr.Message)
		}
	}
	return err
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
