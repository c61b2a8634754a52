package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// USERS
// =============================================================================

const selectUsers = `
	SELECT id, login, name, country, role, arrival_date, manager_id, org_unit, teams, features
	  FROM users`

func (r *repo) GetUser(ctx context.Context, id leave.UserID) (leave.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, selectUsers+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.User{}, leave.ErrUserNotFound
	}
	return u, err
}

func (r *repo) ListUsers(ctx context.Context) ([]leave.User, error) {
	rows, err := r.q.Query(ctx, selectUsers+` ORDER BY id`)
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
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, login, name, country, role, arrival_date, manager_id, org_unit, teams, features)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			login = EXCLUDED.login,
			name = EXCLUDED.name,
			country = EXCLUDED.country,
			role = EXCLUDED.role,
			arrival_date = EXCLUDED.arrival_date,
			manager_id = EXCLUDED.manager_id,
			org_unit = EXCLUDED.org_unit,
			teams = EXCLUDED.teams,
			features = EXCLUDED.features`,
		string(u.ID), u.Login, u.Name, u.Country, string(u.Role), u.ArrivalDate.Time,
		nullText(string(u.ManagerID)), u.OrgUnit, nonNil(u.Teams), nonNil(u.Features))
	return errors.Wrapf(err, "save user %s", u.ID)
}

func scanUser(row pgx.Row) (leave.User, error) {
	var (
		id, login, name, country, role, orgUnit string
		arrival                                 time.Time
		manager                                 *string
		teams, features                         []string
	)
	if err := row.Scan(&id, &login, &name, &country, &role, &arrival, &manager, &orgUnit, &teams, &features); err != nil {
		return leave.User{}, err
	}
	return leave.User{
		ID:          leave.UserID(id),
		Login:       login,
		Name:        name,
		Country:     country,
		Role:        leave.Role(role),
		ArrivalDate: generic.DateOf(arrival),
		ManagerID:   leave.UserID(deref(manager)),
		OrgUnit:     orgUnit,
		Teams:       emptyToNil(teams),
		Features:    emptyToNil(features),
	}, nil
}

// =============================================================================
// VACATION TYPES
// =============================================================================

func (r *repo) GetVacationType(ctx context.Context, name string) (leave.VacationType, error) {
	vt, err := scanVacationType(r.q.QueryRow(ctx,
		`SELECT name, countries, visibility FROM vacation_types WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.VacationType{}, leave.ErrVacationTypeNotFound
	}
	return vt, err
}

func (r *repo) ListVacationTypes(ctx context.Context) ([]leave.VacationType, error) {
	rows, err := r.q.Query(ctx, `SELECT name, countries, visibility FROM vacation_types ORDER BY name`)
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
	_, err := r.q.Exec(ctx, `
		INSERT INTO vacation_types (name, countries, visibility) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			countries = EXCLUDED.countries,
			visibility = EXCLUDED.visibility`,
		vt.Name, nonNil(vt.Countries), toStrings(vt.Visibility))
	return errors.Wrapf(err, "save vacation type %s", vt.Name)
}

func scanVacationType(row pgx.Row) (leave.VacationType, error) {
	var (
		name                  string
		countries, visibility []string
	)
	if err := row.Scan(&name, &countries, &visibility); err != nil {
		return leave.VacationType{}, err
	}
	vt := leave.VacationType{Name: name, Countries: emptyToNil(countries)}
	for _, role := range visibility {
		vt.Visibility = append(vt.Visibility, leave.Role(role))
	}
	return vt, nil
}

// =============================================================================
// POOLS
// =============================================================================

func (r *repo) SavePool(ctx context.Context, p leave.Pool) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO pools (id, name, vacation_type, country, pool_group, date_start, date_end, unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			vacation_type = EXCLUDED.vacation_type,
			country = EXCLUDED.country,
			pool_group = EXCLUDED.pool_group,
			date_start = EXCLUDED.date_start,
			date_end = EXCLUDED.date_end,
			unit = EXCLUDED.unit`,
		string(p.ID), p.Name, p.VacationType, p.Country, p.Group,
		p.Window.Start.Time, p.Window.End.Time, string(p.Unit))
	return errors.Wrapf(err, "save pool %s", p.ID)
}

func (r *repo) AssignPool(ctx context.Context, user leave.UserID, pool generic.PoolID) error {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO user_pools (user_id, pool_id, amount)
		SELECT $1, id, 0 FROM pools WHERE id = $2
		ON CONFLICT (user_id, pool_id) DO NOTHING`,
		string(user), string(pool))
	if err != nil {
		return errors.Wrapf(translatePgError(err), "assign pool %s to %s", pool, user)
	}
	if tag.RowsAffected() == 0 {
		// Either already assigned or the pool does not exist.
		var exists bool
		if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pools WHERE id = $1)`, string(pool)).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return leave.ErrPoolNotFound
		}
	}
	return nil
}

const selectUserPools = `
	SELECT p.id, p.name, p.vacation_type, p.country, p.pool_group,
	       p.date_start, p.date_end, p.unit, up.amount::text
	  FROM user_pools up
	  JOIN pools p ON p.id = up.pool_id
	 WHERE up.user_id = $1
	 ORDER BY p.date_start, p.id`

func (r *repo) UserPools(ctx context.Context, user leave.UserID) ([]leave.UserPool, error) {
	return r.queryUserPools(ctx, selectUserPools, user)
}

// LockUserPools locks the user row, then the user's pools, until the
// transaction ends. The user row serializes units of work for users that
// hold no pool of the requested type (Compensatoire, Exceptionnel).
// Outside WithTx the locks are released immediately.
func (r *repo) LockUserPools(ctx context.Context, user leave.UserID) ([]leave.UserPool, error) {
	var id string
	err := r.q.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, string(user)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(leave.ErrUserNotFound, "lock %s", user)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock user")
	}
	return r.queryUserPools(ctx, selectUserPools+` FOR UPDATE OF up`, user)
}

func (r *repo) queryUserPools(ctx context.Context, query string, user leave.UserID) ([]leave.UserPool, error) {
	rows, err := r.q.Query(ctx, query, string(user))
	if err != nil {
		return nil, errors.Wrap(err, "list user pools")
	}
	defer rows.Close()

	var out []leave.UserPool
	for rows.Next() {
		var (
			id, name, vacationType, country, group, unit, amount string
			start, end                                          time.Time
		)
		if err := rows.Scan(&id, &name, &vacationType, &country, &group, &start, &end, &unit, &amount); err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, errors.Wrapf(err, "pool %s amount", id)
		}
		out = append(out, leave.UserPool{
			UserID: user,
			Pool: leave.Pool{
				ID:           generic.PoolID(id),
				Name:         name,
				VacationType: vacationType,
				Country:      country,
				Group:        group,
				Window:       generic.Period{Start: generic.DateOf(start), End: generic.DateOf(end)},
				Unit:         generic.Unit(unit),
			},
			Amount: v,
		})
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyToNil(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
