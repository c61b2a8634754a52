/*
seed.go - Fixture loader for demos and local development

PURPOSE:
  Populates a repository with vacation types, users, pool definitions and
  opening grants described in YAML. Built-in scenarios are embedded under
  fixtures/; any other file can be loaded by path.

HOW LOADING WORKS:
  1. Upsert vacation types
  2. Upsert users
  3. Upsert pool definitions
  4. Assign each granted pool and append an "opening" adjustment

  Everything runs in one WithTx. Grants carry the idempotency key
  seed:<user>:<pool>, so loading the same fixture twice changes nothing.

FILE FORMAT:
  vacation_types: [{name, countries, visibility}]
  users:          [{id, login, name, country, role, arrival_date, manager_id, org_unit, teams, features}]
  pools:          [{id, name, vacation_type, country, group, start, end, unit}]
  grants:         [{user, pool, amount, date}]

SEE ALSO:
  - api/scenarios.go: HTTP endpoints listing and loading scenarios
*/
package seed

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures/*.yaml
var fixtureFS embed.FS

type Fixture struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	VacationTypes []VacationTypeDef `yaml:"vacation_types"`
	Users         []UserDef         `yaml:"users"`
	Pools         []PoolDef         `yaml:"pools"`
	Grants        []GrantDef        `yaml:"grants"`
}

type VacationTypeDef struct {
	Name       string   `yaml:"name"`
	Countries  []string `yaml:"countries"`
	Visibility []string `yaml:"visibility"`
}

type UserDef struct {
	ID          string   `yaml:"id"`
	Login       string   `yaml:"login"`
	Name        string   `yaml:"name"`
	Country     string   `yaml:"country"`
	Role        string   `yaml:"role"`
	ArrivalDate string   `yaml:"arrival_date"`
	ManagerID   string   `yaml:"manager_id"`
	OrgUnit     string   `yaml:"org_unit"`
	Teams       []string `yaml:"teams"`
	Features    []string `yaml:"features"`
}

type PoolDef struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	VacationType string `yaml:"vacation_type"`
	Country      string `yaml:"country"`
	Group        string `yaml:"group"`
	Start        string `yaml:"start"`
	End          string `yaml:"end"`
	Unit         string `yaml:"unit"`
}

type GrantDef struct {
	User   string `yaml:"user"`
	Pool   string `yaml:"pool"`
	Amount string `yaml:"amount"`
	// Date defaults to the pool's window start.
	Date string `yaml:"date"`
}

// Report counts what Load wrote.
type Report struct {
	VacationTypes int `json:"vacation_types"`
	Users         int `json:"users"`
	Pools         int `json:"pools"`
	Assigned      int `json:"assigned"`
	Grants        int `json:"grants"`
	Skipped       int `json:"skipped"` // grants already applied by an earlier load
}

// Scenario describes one embedded fixture.
type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// PARSING
// =============================================================================

func Parse(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, errors.Wrap(err, "seed: parse fixture")
	}
	return f, nil
}

func LoadFile(p string) (Fixture, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return Fixture{}, errors.Wrapf(err, "seed: read %s", p)
	}
	return Parse(data)
}

// Scenarios lists the embedded fixtures, sorted by id.
func Scenarios() ([]Scenario, error) {
	entries, err := fixtureFS.ReadDir("fixtures")
	if err != nil {
		return nil, err
	}
	var out []Scenario
	for _, e := range entries {
		id := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		f, err := Embedded(id)
		if err != nil {
			return nil, err
		}
		out = append(out, Scenario{ID: id, Name: f.Name, Description: f.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Embedded returns the built-in fixture with the given id.
func Embedded(id string) (Fixture, error) {
	data, err := fixtureFS.ReadFile("fixtures/" + id + ".yaml")
	if err != nil {
		return Fixture{}, generic.NotFoundf("seed: unknown scenario %q", id)
	}
	return Parse(data)
}

// =============================================================================
// LOADING
// =============================================================================

// Load writes the fixture into repo in one unit of work.
func Load(ctx context.Context, repo leave.TxRepository, clock generic.Clock, f Fixture) (Report, error) {
	var report Report
	err := repo.WithTx(ctx, func(tx leave.Repository) error {
		report = Report{}

		for _, def := range f.VacationTypes {
			vt := leave.VacationType{Name: def.Name, Countries: def.Countries}
			for _, r := range def.Visibility {
				vt.Visibility = append(vt.Visibility, leave.Role(r))
			}
			if err := tx.SaveVacationType(ctx, vt); err != nil {
				return err
			}
			report.VacationTypes++
		}

		for _, def := range f.Users {
			u, err := def.user()
			if err != nil {
				return err
			}
			if err := tx.SaveUser(ctx, u); err != nil {
				return err
			}
			report.Users++
		}

		pools := make(map[generic.PoolID]leave.Pool, len(f.Pools))
		for _, def := range f.Pools {
			p, err := def.pool()
			if err != nil {
				return err
			}
			if err := tx.SavePool(ctx, p); err != nil {
				return err
			}
			pools[p.ID] = p
			report.Pools++
		}

		ledger := leave.NewPoolLedger(tx, clock)
		for _, g := range f.Grants {
			p, ok := pools[generic.PoolID(g.Pool)]
			if !ok {
				return errors.Newf("seed: grant for %s references unknown pool %q", g.User, g.Pool)
			}
			user := leave.UserID(g.User)
			if err := tx.AssignPool(ctx, user, p.ID); err != nil {
				return errors.Wrapf(err, "seed: assign %s to %s", p.ID, user)
			}
			report.Assigned++

			written, err := grant(ctx, ledger, user, p, g)
			switch {
			case errors.Is(err, generic.ErrDuplicateIdempotencyKey):
				report.Skipped++
			case err != nil:
				return err
			case written:
				report.Grants++
			}
		}
		return nil
	})
	return report, err
}

// grant appends the opening adjustment. A zero amount writes nothing.
func grant(ctx context.Context, ledger *leave.PoolLedger, user leave.UserID, p leave.Pool, g GrantDef) (bool, error) {
	amount := decimal.Zero
	if g.Amount != "" {
		var err error
		if amount, err = decimal.NewFromString(g.Amount); err != nil {
			return false, errors.Wrapf(err, "seed: grant %s/%s amount", user, p.ID)
		}
	}
	if amount.IsZero() {
		return false, nil
	}

	date := p.Window.Start
	if g.Date != "" {
		var err error
		if date, err = generic.ParseDate(g.Date); err != nil {
			return false, errors.Wrapf(err, "seed: grant %s/%s date", user, p.ID)
		}
	}

	_, err := ledger.Append(ctx, leave.AppendInput{
		User:           user,
		Pool:           p,
		Delta:          amount,
		Date:           date,
		Kind:           generic.EntryAdjustment,
		Flavor:         "opening",
		IdempotencyKey: fmt.Sprintf("seed:%s:%s", user, p.ID),
	})
	return err == nil, err
}

func (d UserDef) user() (leave.User, error) {
	arrival, err := generic.ParseDate(d.ArrivalDate)
	if err != nil {
		return leave.User{}, errors.Wrapf(err, "seed: user %s arrival_date", d.ID)
	}
	role := leave.Role(d.Role)
	if role == "" {
		role = leave.RoleUser
	}
	return leave.User{
		ID:          leave.UserID(d.ID),
		Login:       d.Login,
		Name:        d.Name,
		Country:     d.Country,
		Role:        role,
		ArrivalDate: arrival,
		ManagerID:   leave.UserID(d.ManagerID),
		OrgUnit:     d.OrgUnit,
		Teams:       d.Teams,
		Features:    d.Features,
	}, nil
}

func (d PoolDef) pool() (leave.Pool, error) {
	start, err := generic.ParseDate(d.Start)
	if err != nil {
		return leave.Pool{}, errors.Wrapf(err, "seed: pool %s start", d.ID)
	}
	end, err := generic.ParseDate(d.End)
	if err != nil {
		return leave.Pool{}, errors.Wrapf(err, "seed: pool %s end", d.ID)
	}
	window, err := generic.NewPeriod(start, end)
	if err != nil {
		return leave.Pool{}, errors.Wrapf(err, "seed: pool %s", d.ID)
	}
	unit := generic.Unit(d.Unit)
	if unit == "" {
		unit = generic.UnitDays
	}
	return leave.Pool{
		ID:           generic.PoolID(d.ID),
		Name:         d.Name,
		VacationType: d.VacationType,
		Country:      d.Country,
		Group:        d.Group,
		Window:       window,
		Unit:         unit,
	}, nil
}
