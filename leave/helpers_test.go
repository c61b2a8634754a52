package leave_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

func d(s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func clockAt(s string) *generic.FixedClock {
	return &generic.FixedClock{At: d(s).Time.Add(9 * time.Hour)}
}

func userPool(id, typeName, group, name, start, end string, unit generic.Unit, amount string) leave.UserPool {
	return leave.UserPool{
		UserID: "u",
		Pool: leave.Pool{
			ID:           generic.PoolID(id),
			Name:         name,
			VacationType: typeName,
			Group:        group,
			Window:       generic.Period{Start: d(start), End: d(end)},
			Unit:         unit,
		},
		Amount: dec(amount),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// SERVICE FIXTURE
// =============================================================================

type fixture struct {
	ctx      context.Context
	repo     *memory.Repository
	clock    *generic.FixedClock
	registry *leave.Registry
	svc      *leave.RequestService
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()
	clock := clockAt(today)
	repo := memory.New()
	registry := leave.NewDefaultRegistry(leave.DefaultPolicyConfig(), clock)
	f := &fixture{
		ctx:      context.Background(),
		repo:     repo,
		clock:    clock,
		registry: registry,
		svc:      leave.NewRequestService(repo, registry, calendar.NewProvider(), clock, discardLogger()),
	}

	for _, vt := range []leave.VacationType{
		{Name: leave.TypeCP, Countries: []string{"fr", "lu", "us"}},
		{Name: leave.TypeRTT, Countries: []string{"fr"}},
		{Name: leave.TypeExceptionnel, Countries: []string{"fr", "lu"}},
		{Name: leave.TypeCompensatoire, Countries: []string{"lu"}},
		{Name: leave.TypeRecuperation, Countries: []string{"fr"}, Visibility: []leave.Role{leave.RoleManager, leave.RoleAdmin}},
	} {
		require.NoError(t, repo.SaveVacationType(f.ctx, vt))
	}
	return f
}

func (f *fixture) addUser(t *testing.T, u leave.User) leave.User {
	t.Helper()
	if u.Role == "" {
		u.Role = leave.RoleUser
	}
	require.NoError(t, f.repo.SaveUser(f.ctx, u))
	return u
}

// grant gives the user a pool holding amount.
func (f *fixture) grant(t *testing.T, user leave.UserID, p leave.Pool, amount string) {
	t.Helper()
	p.ID = generic.PoolID(string(user) + ":" + string(p.ID))
	require.NoError(t, f.repo.SavePool(f.ctx, p))
	require.NoError(t, f.repo.AssignPool(f.ctx, user, p.ID))
	if amount == "0" {
		return
	}
	_, err := leave.NewPoolLedger(f.repo, f.clock).Append(f.ctx, leave.AppendInput{
		User:   user,
		Pool:   p,
		Delta:  dec(amount),
		Date:   p.Window.Start,
		Kind:   generic.EntryAdjustment,
		Flavor: "opening",
	})
	require.NoError(t, err)
}

func (f *fixture) pools(t *testing.T, user leave.UserID) map[string]decimal.Decimal {
	t.Helper()
	ups, err := f.repo.UserPools(f.ctx, user)
	require.NoError(t, err)
	out := make(map[string]decimal.Decimal, len(ups))
	for _, up := range ups {
		out[up.Pool.Key()] = up.Amount
	}
	return out
}

func cpPoolDefs(country, start, end string, unit generic.Unit) (acquis, restant leave.Pool) {
	w := generic.Period{Start: d(start), End: d(end)}
	acquis = leave.Pool{ID: "cp-acquis", Name: leave.PoolAcquis, VacationType: leave.TypeCP, Country: country, Group: leave.TypeCP, Window: w, Unit: unit}
	restant = leave.Pool{ID: "cp-restant", Name: leave.PoolRestant, VacationType: leave.TypeCP, Country: country, Group: leave.TypeCP, Window: w, Unit: unit}
	return acquis, restant
}

func rttPoolDef(start, end string) leave.Pool {
	return leave.Pool{
		ID: "rtt", Name: leave.TypeRTT, VacationType: leave.TypeRTT, Country: "fr",
		Window: generic.Period{Start: d(start), End: d(end)}, Unit: generic.UnitDays,
	}
}
