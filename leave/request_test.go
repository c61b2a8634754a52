package leave_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// frTeam sets up a French manager, admin and employee with CP and RTT pools.
func frTeam(t *testing.T, f *fixture) (employee, manager, admin leave.User) {
	t.Helper()
	manager = f.addUser(t, leave.User{ID: "mgr", Country: "fr", Role: leave.RoleManager, ArrivalDate: d("2010-01-01")})
	admin = f.addUser(t, leave.User{ID: "adm", Country: "fr", Role: leave.RoleAdmin, ArrivalDate: d("2010-01-01")})
	employee = f.addUser(t, leave.User{ID: "emp", Country: "fr", ManagerID: manager.ID, ArrivalDate: d("2014-01-01")})

	acquis, restant := cpPoolDefs("fr", "2016-06-01", "2017-05-31", generic.UnitDays)
	f.grant(t, employee.ID, acquis, "10")
	f.grant(t, employee.ID, restant, "2")
	f.grant(t, employee.ID, rttPoolDef("2016-01-01", "2016-12-31"), "5")
	return employee, manager, admin
}

func validationMessage(t *testing.T, err error) string {
	t.Helper()
	var ve *leave.ValidationError
	require.ErrorAs(t, err, &ve)
	return ve.Message
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_PendingAndCharged(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, _ := frTeam(t, f)

	// WHEN: requesting Mon 10/10 .. Fri 14/10
	req, err := f.svc.Create(f.ctx, leave.CreateInput{
		ActorID: emp.ID, VacationType: leave.TypeCP, DateFrom: d("2016-10-10"), DateTo: d("2016-10-14"),
	})
	require.NoError(t, err)

	// THEN: pending, five days, charged restant first
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, "5", req.Days.String())
	assert.False(t, req.Notified)
	assert.Equal(t, "10", req.PoolStatus["CP acquis"].String(), "snapshot taken before the charge")

	pools := f.pools(t, emp.ID)
	assert.Equal(t, "0", pools["CP restant"].String())
	assert.Equal(t, "7", pools["CP acquis"].String())

	history, err := f.svc.History(f.ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, leave.Status(""), history[0].OldStatus)
	assert.Equal(t, leave.StatusPending, history[0].NewStatus)
	assert.Empty(t, history[0].SudoUserID)
}

func TestCreate_PolicyRejectionWritesNothing(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, _ := frTeam(t, f)

	// WHEN: asking for more RTT than available
	_, err := f.svc.Create(f.ctx, leave.CreateInput{
		ActorID: emp.ID, VacationType: leave.TypeRTT, DateFrom: d("2016-10-10"), DateTo: d("2016-10-19"),
	})

	// THEN: validation message, pools untouched, no request
	assert.Equal(t, "You only have 5 RTT to use.", validationMessage(t, err))
	assert.True(t, leave.IsClientError(err))
	assert.Equal(t, "5", f.pools(t, emp.ID)["RTT"].String())

	reqs, err := f.repo.ListRequests(f.ctx, leave.RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestCreate_HalfDaysOnSameDay(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, _ := frTeam(t, f)
	day := d("2016-10-10")

	am, err := f.svc.Create(f.ctx, leave.CreateInput{ActorID: emp.ID, VacationType: leave.TypeRTT, DateFrom: day, DateTo: day, Breakdown: leave.BreakdownAM})
	require.NoError(t, err)
	assert.Equal(t, "0.5", am.Days.String())
	assert.Equal(t, leave.LabelAM, am.Label)

	// the other half of the same day is free
	_, err = f.svc.Create(f.ctx, leave.CreateInput{ActorID: emp.ID, VacationType: leave.TypeCP, DateFrom: day, DateTo: day, Breakdown: leave.BreakdownPM})
	require.NoError(t, err)

	// the same half, or the full day, is not
	_, err = f.svc.Create(f.ctx, leave.CreateInput{ActorID: emp.ID, VacationType: leave.TypeCP, DateFrom: day, DateTo: day, Breakdown: leave.BreakdownAM})
	assert.Equal(t, "Invalid period: days already requested.", validationMessage(t, err))
	_, err = f.svc.Create(f.ctx, leave.CreateInput{ActorID: emp.ID, VacationType: leave.TypeCP, DateFrom: day, DateTo: d("2016-10-11")})
	assert.Equal(t, "Invalid period: days already requested.", validationMessage(t, err))

	assert.Equal(t, "4.5", f.pools(t, emp.ID)["RTT"].String())
}

func TestCreate_TypeRules(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, mgr, _ := frTeam(t, f)
	noRTT := f.addUser(t, leave.User{ID: "nortt", Country: "fr", ArrivalDate: d("2014-01-01"), Features: []string{leave.FeatureDisableRTT}})
	lu := f.addUser(t, leave.User{ID: "lu1", Country: "lu", ArrivalDate: d("2014-01-01")})

	in := func(actor leave.UserID, typeName, reason string) leave.CreateInput {
		return leave.CreateInput{ActorID: actor, VacationType: typeName, DateFrom: d("2016-10-10"), DateTo: d("2016-10-10"), Reason: reason}
	}

	cases := []struct {
		name string
		in   leave.CreateInput
		want string
	}{
		{"restricted to managers", in(emp.ID, leave.TypeRecuperation, ""), "You are not allowed to use type: Récupération"},
		{"rtt disabled", in(noRTT.ID, leave.TypeRTT, ""), "You are not allowed to use type: RTT"},
		{"type not in country", in(lu.ID, leave.TypeRTT, ""), "You are not allowed to use type: RTT"},
		{"exceptionnel needs reason", in(emp.ID, leave.TypeExceptionnel, ""), "You must provide a reason for Exceptionnel requests"},
		{"reason too long", in(mgr.ID, leave.TypeRecuperation, strings.Repeat("x", 141)), "Récupération reason must not exceed 140 characters"},
		{"compensatoire needs date", in(lu.ID, leave.TypeCompensatoire, ""), "You must select a date for Compensatoire"},
		{"weekend only", leave.CreateInput{ActorID: emp.ID, VacationType: leave.TypeCP, DateFrom: d("2016-10-08"), DateTo: d("2016-10-09")}, "Invalid value for days."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(f.ctx, tc.in)
			assert.Equal(t, tc.want, validationMessage(t, err))
		})
	}

	// a manager may use Récupération; it has no pool and no policy
	req, err := f.svc.Create(f.ctx, in(mgr.ID, leave.TypeRecuperation, "worked on Saturday"))
	require.NoError(t, err)
	assert.Equal(t, "worked on Saturday", req.Message)
}

func TestCreate_MissingRequiredPoolIsIntegrityError(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp := f.addUser(t, leave.User{ID: "nopool", Country: "fr", ArrivalDate: d("2014-01-01")})

	_, err := f.svc.Create(f.ctx, leave.CreateInput{
		ActorID: emp.ID, VacationType: leave.TypeRTT, DateFrom: d("2016-10-10"), DateTo: d("2016-10-10"),
	})

	assert.ErrorIs(t, err, leave.ErrMissingPool)
	assert.True(t, generic.IsIntegrity(err))
	assert.False(t, leave.IsClientError(err))
}

func TestCreate_NextPoolYearGetsWindowMessage(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, _ := frTeam(t, f)

	// GIVEN: no pool of the employee covers 2017-06 or 2017-01
	cases := []struct {
		name     string
		typeName string
		from, to string
		want     string
	}{
		{"cp after the acquisition year", leave.TypeCP, "2017-06-06", "2017-06-07", "CP can only be used until 31/05/2017."},
		{"rtt next calendar year", leave.TypeRTT, "2017-01-09", "2017-01-09", "RTT can only be used between 01/01/2016 and 31/12/2016"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// WHEN: requesting outside every pool window
			_, err := f.svc.Create(f.ctx, leave.CreateInput{
				ActorID: emp.ID, VacationType: tc.typeName, DateFrom: d(tc.from), DateTo: d(tc.to),
			})

			// THEN: the current pool year's window is reported, not a missing pool
			assert.Equal(t, tc.want, validationMessage(t, err))
			assert.False(t, generic.IsIntegrity(err))
		})
	}

	pools := f.pools(t, emp.ID)
	assert.Equal(t, "10", pools["CP acquis"].String())
	assert.Equal(t, "5", pools["RTT"].String())
}

func TestCreate_OnlyExpiredPoolGetsWindowMessage(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp := f.addUser(t, leave.User{ID: "old", Country: "fr", ArrivalDate: d("2012-01-01")})
	f.grant(t, emp.ID, rttPoolDef("2015-01-01", "2015-12-31"), "3")

	_, err := f.svc.Create(f.ctx, leave.CreateInput{
		ActorID: emp.ID, VacationType: leave.TypeRTT, DateFrom: d("2016-10-10"), DateTo: d("2016-10-10"),
	})

	assert.Equal(t, "RTT can only be used between 01/01/2015 and 31/12/2015", validationMessage(t, err))
}

func TestCreate_OverlapReportedBeforeTypeRules(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, _ := frTeam(t, f)
	createCP(t, f, emp.ID, "2016-10-10", "2016-10-14")

	// WHEN: asking for a type the employee may not use, on a day already taken
	_, err := f.svc.Create(f.ctx, leave.CreateInput{
		ActorID: emp.ID, VacationType: leave.TypeRecuperation, DateFrom: d("2016-10-11"), DateTo: d("2016-10-11"),
	})

	// THEN: the overlap wins
	assert.Equal(t, "Invalid period: days already requested.", validationMessage(t, err))
}

func TestCreate_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, _ := frTeam(t, f)

	// GIVEN: 5 RTT days and six two-day requests on distinct weeks
	const workers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		charged = decimal.Zero
		granted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(week int) {
			defer wg.Done()
			monday := d("2016-10-10").AddDays(7 * week)
			req, err := f.svc.Create(f.ctx, leave.CreateInput{
				ActorID: emp.ID, VacationType: leave.TypeRTT, DateFrom: monday, DateTo: monday.AddDays(1),
			})
			if err != nil {
				assert.True(t, leave.IsValidation(err), fmt.Sprintf("week %d: %v", week, err))
				return
			}
			mu.Lock()
			charged = charged.Add(req.Days)
			granted++
			mu.Unlock()
		}(i)
	}

	// WHEN: they all race
	wg.Wait()

	// THEN: what was granted fits the pool and the pool never went negative
	assert.Positive(t, granted)
	assert.True(t, charged.LessThanOrEqual(dec("5")), "charged %s", charged)
	left := f.pools(t, emp.ID)["RTT"]
	assert.False(t, left.IsNegative())
	assert.Equal(t, dec("5").Sub(charged).String(), left.String())
}

func TestCreate_SudoIsApprovedAndNotified(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, mgr, adm := frTeam(t, f)

	req, err := f.svc.Create(f.ctx, leave.CreateInput{
		ActorID: adm.ID, UserID: emp.ID, VacationType: leave.TypeCP, DateFrom: d("2016-10-10"), DateTo: d("2016-10-10"),
	})
	require.NoError(t, err)

	assert.Equal(t, leave.StatusApprovedAdmin, req.Status)
	assert.True(t, req.Notified)
	assert.Equal(t, emp.ID, req.UserID)
	history, _ := f.svc.History(f.ctx, req.ID)
	require.Len(t, history, 1)
	assert.Equal(t, adm.ID, history[0].SudoUserID)

	// a manager cannot submit for someone else
	_, err = f.svc.Create(f.ctx, leave.CreateInput{
		ActorID: mgr.ID, UserID: emp.ID, VacationType: leave.TypeCP, DateFrom: d("2016-10-11"), DateTo: d("2016-10-11"),
	})
	assert.ErrorIs(t, err, leave.ErrNotAllowed)
}

func TestCreate_CompensatoireUsesOpenRecoveries(t *testing.T) {
	f := newFixture(t, "2017-01-20")
	lu := f.addUser(t, leave.User{ID: "lu1", Country: "lu", ArrivalDate: d("2016-08-25")})

	candidates, err := f.svc.RecoveryCandidates(f.ctx, lu.ID, generic.TimePoint{})
	require.NoError(t, err)
	assert.Equal(t, []generic.TimePoint{d("2016-12-25"), d("2017-01-01")}, candidates)

	req, err := f.svc.Create(f.ctx, leave.CreateInput{
		ActorID: lu.ID, VacationType: leave.TypeCompensatoire,
		DateFrom: d("2017-01-23"), DateTo: d("2017-01-23"), RecoveredHoliday: d("2016-12-25"),
	})
	require.NoError(t, err)
	assert.Equal(t, "25/12/2016", req.Message)

	// the recovered holiday is no longer offered, nor accepted twice
	candidates, err = f.svc.RecoveryCandidates(f.ctx, lu.ID, generic.TimePoint{})
	require.NoError(t, err)
	assert.Equal(t, []generic.TimePoint{d("2017-01-01")}, candidates)

	_, err = f.svc.Create(f.ctx, leave.CreateInput{
		ActorID: lu.ID, VacationType: leave.TypeCompensatoire,
		DateFrom: d("2017-01-24"), DateTo: d("2017-01-24"), RecoveredHoliday: d("2016-12-25"),
	})
	assert.Equal(t, "25/12/2016 is not a valid value for Compensatory vacation", validationMessage(t, err))
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func createCP(t *testing.T, f *fixture, user leave.UserID, from, to string) leave.Request {
	t.Helper()
	req, err := f.svc.Create(f.ctx, leave.CreateInput{ActorID: user, VacationType: leave.TypeCP, DateFrom: d(from), DateTo: d(to)})
	require.NoError(t, err)
	return req
}

func TestAccept_ManagerThenAdmin(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, mgr, adm := frTeam(t, f)
	req := createCP(t, f, emp.ID, "2016-10-10", "2016-10-11")

	// a colleague cannot accept
	_, err := f.svc.Accept(f.ctx, req.ID, emp.ID)
	assert.ErrorIs(t, err, leave.ErrNotAllowed)

	got, err := f.svc.Accept(f.ctx, req.ID, mgr.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusAcceptedManager, got.Status)
	assert.Equal(t, mgr.ID, got.LastActionUserID)

	// the manager has nothing left to accept
	_, err = f.svc.Accept(f.ctx, req.ID, mgr.ID)
	assert.ErrorIs(t, err, leave.ErrNotAllowed)

	got, err = f.svc.Accept(f.ctx, req.ID, adm.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApprovedAdmin, got.Status)
	assert.False(t, got.Notified, "went through the manager")

	history, _ := f.svc.History(f.ctx, req.ID)
	statuses := make([]leave.Status, 0, len(history))
	for _, h := range history {
		statuses = append(statuses, h.NewStatus)
	}
	assert.Equal(t, []leave.Status{leave.StatusPending, leave.StatusAcceptedManager, leave.StatusApprovedAdmin}, statuses)
}

func TestAccept_KeepsCreationPoolSnapshot(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, mgr, _ := frTeam(t, f)

	// GIVEN: a five-day CP request taken against 2 restant + 10 acquis
	req := createCP(t, f, emp.ID, "2016-10-10", "2016-10-14")

	// WHEN: the manager accepts it
	_, err := f.svc.Accept(f.ctx, req.ID, mgr.ID)
	require.NoError(t, err)

	// THEN: the stored request still shows the pools at creation...
	stored, err := f.svc.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", stored.PoolStatus["CP acquis"].String())
	assert.Equal(t, "2", stored.PoolStatus["CP restant"].String())

	// ...while the history record of the transition has the current pools
	history, err := f.svc.History(f.ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "10", history[0].PoolStatus["CP acquis"].String())
	assert.Equal(t, "7", history[1].PoolStatus["CP acquis"].String())
	assert.Equal(t, "0", history[1].PoolStatus["CP restant"].String())
}

func TestAccept_AdminSkipsManager(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, adm := frTeam(t, f)
	req := createCP(t, f, emp.ID, "2016-10-10", "2016-10-11")

	got, err := f.svc.Accept(f.ctx, req.ID, adm.ID)
	require.NoError(t, err)

	assert.Equal(t, leave.StatusApprovedAdmin, got.Status)
	assert.True(t, got.Notified)

	// approved is final for Accept
	_, err = f.svc.Accept(f.ctx, req.ID, adm.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestRefuse_RefundsDays(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, mgr, _ := frTeam(t, f)
	req := createCP(t, f, emp.ID, "2016-10-10", "2016-10-14")
	require.Equal(t, "7", f.pools(t, emp.ID)["CP acquis"].String())

	got, err := f.svc.Refuse(f.ctx, req.ID, mgr.ID, "busy week")
	require.NoError(t, err)

	assert.Equal(t, leave.StatusDenied, got.Status)
	assert.Equal(t, "busy week", got.RefusalReason)
	pools := f.pools(t, emp.ID)
	assert.Equal(t, "10", pools["CP acquis"].String())
	assert.Equal(t, "2", pools["CP restant"].String())
	assert.Equal(t, "10", got.PoolStatus["CP acquis"].String(), "snapshot after the refund")

	_, err = f.svc.Cancel(f.ctx, req.ID, emp.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestCancel_BeforeStartRefunds(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, _ := frTeam(t, f)
	req := createCP(t, f, emp.ID, "2016-10-10", "2016-10-10")

	got, err := f.svc.Cancel(f.ctx, req.ID, emp.ID)
	require.NoError(t, err)

	assert.Equal(t, leave.StatusCanceled, got.Status)
	assert.Equal(t, "2", f.pools(t, emp.ID)["CP restant"].String())
}

func TestCancel_AfterStartOnlyByAdmin(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, adm := frTeam(t, f)
	req := createCP(t, f, emp.ID, "2016-10-10", "2016-10-12")

	// GIVEN: the request has started
	f.clock.At = d("2016-10-11").Time

	// WHEN: the employee cancels
	_, err := f.svc.Cancel(f.ctx, req.ID, emp.ID)

	// THEN: rejected and nothing changes
	assert.ErrorIs(t, err, leave.ErrRequestConsumed)
	stored, _ := f.svc.Get(f.ctx, req.ID)
	assert.Equal(t, leave.StatusPending, stored.Status)
	assert.Equal(t, "9", f.pools(t, emp.ID)["CP acquis"].String())

	// an admin still can
	got, err := f.svc.Cancel(f.ctx, req.ID, adm.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCanceled, got.Status)
	assert.Equal(t, "10", f.pools(t, emp.ID)["CP acquis"].String())
}

func TestFail_KeepsCharge(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, _ := frTeam(t, f)
	req := createCP(t, f, emp.ID, "2016-10-10", "2016-10-10")

	got, err := f.svc.Fail(f.ctx, req.ID, "notification failed")
	require.NoError(t, err)

	assert.Equal(t, leave.StatusError, got.Status)
	assert.Equal(t, "1", f.pools(t, emp.ID)["CP restant"].String())
}

func TestMarkNotified(t *testing.T) {
	f := newFixture(t, "2016-10-03")
	emp, _, _ := frTeam(t, f)
	req := createCP(t, f, emp.ID, "2016-10-10", "2016-10-10")

	require.NoError(t, f.svc.MarkNotified(f.ctx, req.ID))

	got, err := f.svc.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified)

	assert.ErrorIs(t, f.svc.MarkNotified(f.ctx, "missing"), leave.ErrRequestNotFound)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, leave.CanTransition(leave.StatusPending, leave.StatusApprovedAdmin))
	assert.True(t, leave.CanTransition(leave.StatusApprovedAdmin, leave.StatusCanceled))
	assert.False(t, leave.CanTransition(leave.StatusApprovedAdmin, leave.StatusDenied))
	assert.False(t, leave.CanTransition(leave.StatusDenied, leave.StatusCanceled))
	assert.True(t, leave.StatusCanceled.IsTerminal())
	assert.True(t, leave.StatusAcceptedManager.IsActive())
}
