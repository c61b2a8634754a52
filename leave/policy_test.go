package leave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REGISTRY
// =============================================================================

func TestRegistry_DefaultKeys(t *testing.T) {
	r := leave.NewDefaultRegistry(leave.DefaultPolicyConfig(), clockAt("2016-01-01"))

	assert.Equal(t, []leave.PolicyKey{"CP_lu", "CP_fr", "RTT_fr", "Compensatoire_lu"}, r.Keys())

	_, ok := r.Lookup(leave.TypeCP, "us")
	assert.False(t, ok, "CP_us has no policy")
	p, ok := r.Lookup(leave.TypeRTT, "fr")
	require.True(t, ok)
	assert.Equal(t, leave.PolicyKey("RTT_fr"), p.Key())
}

func TestRegistry_RejectsDuplicateKey(t *testing.T) {
	cfg := leave.DefaultPolicyConfig()
	_, err := leave.NewRegistry(leave.NewFranceRTT(cfg), leave.NewFranceRTT(cfg))
	assert.Error(t, err)
}

// =============================================================================
// ACCRUAL
// =============================================================================

func TestRTTAccrual_StepSchedule(t *testing.T) {
	p := leave.NewFranceRTT(leave.DefaultPolicyConfig())
	user := leave.User{Country: "fr", ArrivalDate: d("2010-03-01")}

	dec25, ok := p.Accrued(user, d("2014-12-25"))
	require.True(t, ok)
	aug15, _ := p.Accrued(user, d("2014-08-15"))

	assert.Equal(t, "10", dec25.String())
	assert.Equal(t, "7", aug15.String())
}

func TestRTTAccrual_MonotonicWithinYear(t *testing.T) {
	p := leave.NewFranceRTT(leave.DefaultPolicyConfig())
	user := leave.User{Country: "fr", ArrivalDate: d("2010-03-01")}

	prev, _ := p.Accrued(user, d("2014-01-01"))
	for day := d("2014-01-02"); day.Year() == 2014; day = day.AddDays(1) {
		cur, _ := p.Accrued(user, day)
		assert.False(t, cur.LessThan(prev), "accrual decreased on %s", day)
		prev = cur
	}
}

func TestRTTAccrual_ArrivalDuringYear(t *testing.T) {
	p := leave.NewFranceRTT(leave.DefaultPolicyConfig())
	user := leave.User{Country: "fr", ArrivalDate: d("2014-09-13")}

	got, _ := p.Accrued(user, d("2014-12-25"))
	assert.Equal(t, "3", got.String())
}

func TestLuxembourgCPAccrual_SeniorityTruncation(t *testing.T) {
	p := leave.NewLuxembourgCP(leave.DefaultPolicyConfig(), clockAt("2014-12-25"))

	newcomer, ok := p.Accrued(leave.User{Country: "lu", ArrivalDate: d("2014-09-13")}, d("2014-12-25"))
	require.True(t, ok)
	senior, _ := p.Accrued(leave.User{Country: "lu", ArrivalDate: d("2010-01-01")}, d("2014-12-25"))

	assert.Equal(t, "3", newcomer.String())
	assert.Equal(t, "10", senior.String())
}

func TestFranceCP_NoComputedAccrual(t *testing.T) {
	p := leave.NewFranceCP(clockAt("2014-12-25"))
	_, ok := p.Accrued(leave.User{Country: "fr"}, d("2014-12-25"))
	assert.False(t, ok)
}

func TestConvertDays(t *testing.T) {
	cfg := leave.DefaultPolicyConfig()
	assert.Equal(t, "12", leave.NewLuxembourgCP(cfg, clockAt("2016-01-01")).ConvertDays(dec("1.5")).String())
	assert.Equal(t, "1.5", leave.NewFranceCP(clockAt("2016-01-01")).ConvertDays(dec("1.5")).String())
}

// =============================================================================
// CP VALIDATION
// =============================================================================

func luCPInput(arrival, from, to, acquis string, days string) leave.ValidationInput {
	return leave.ValidationInput{
		User: leave.User{Country: "lu", ArrivalDate: d(arrival)},
		Pools: leave.NewPoolSnapshot([]leave.UserPool{
			userPool("a", leave.TypeCP, leave.TypeCP, leave.PoolAcquis, "2017-01-01", "2017-12-31", generic.UnitHours, acquis),
			userPool("r", leave.TypeCP, leave.TypeCP, leave.PoolRestant, "2017-01-01", "2017-12-31", generic.UnitHours, "0"),
		}),
		Days:     dec(days),
		DateFrom: d(from),
		DateTo:   d(to),
	}
}

func TestLuxembourgCP_SeniorityGate(t *testing.T) {
	p := leave.NewLuxembourgCP(leave.DefaultPolicyConfig(), clockAt("2017-06-10"))

	// GIVEN: arrival two months ago
	ve := p.Validate(luCPInput("2017-04-10", "2017-06-13", "2017-06-13", "200", "8"))

	// THEN: rejected on seniority
	require.NotNil(t, ve)
	assert.Equal(t, "You need 3 months of seniority before using your CP", ve.Message)

	// GIVEN: arrival five months ago
	assert.Nil(t, p.Validate(luCPInput("2017-01-10", "2017-06-13", "2017-06-13", "200", "8")))
}

func TestLuxembourgCP_SeniorityWinsOverBalance(t *testing.T) {
	p := leave.NewLuxembourgCP(leave.DefaultPolicyConfig(), clockAt("2017-06-10"))

	// GIVEN: a request failing both seniority and balance
	ve := p.Validate(luCPInput("2017-04-10", "2017-06-13", "2017-06-13", "0", "8"))

	// THEN: only the seniority message is reported
	require.NotNil(t, ve)
	assert.Equal(t, "You need 3 months of seniority before using your CP", ve.Message)
}

func TestLuxembourgCP_BalanceGate(t *testing.T) {
	p := leave.NewLuxembourgCP(leave.DefaultPolicyConfig(), clockAt("2017-06-10"))

	ve := p.Validate(luCPInput("2017-01-10", "2017-06-13", "2017-06-13", "0", "8"))
	require.NotNil(t, ve)
	assert.Equal(t, "No CP left to take.", ve.Message)

	ve = p.Validate(luCPInput("2017-01-10", "2017-06-13", "2017-07-13", "200", "208"))
	require.NotNil(t, ve)
	assert.Equal(t, "You only have 200 CP to use.", ve.Message)
}

func TestCP_UsageWindowBoundary(t *testing.T) {
	p := leave.NewLuxembourgCP(leave.DefaultPolicyConfig(), clockAt("2017-12-20"))

	// GIVEN: a request spilling into the next pool year
	ve := p.Validate(luCPInput("2015-01-10", "2017-12-28", "2018-01-03", "200", "24"))

	require.NotNil(t, ve)
	assert.Equal(t, "CP can only be used until 31/12/2017.", ve.Message)

	// the last day of the window is still fine
	assert.Nil(t, p.Validate(luCPInput("2015-01-10", "2017-12-28", "2017-12-31", "200", "24")))
}

func TestFranceCP_BalanceAcrossRestantAndAcquis(t *testing.T) {
	p := leave.NewFranceCP(clockAt("2016-10-03"))
	in := leave.ValidationInput{
		User: leave.User{Country: "fr", ArrivalDate: d("2016-09-01")},
		Pools: leave.NewPoolSnapshot([]leave.UserPool{
			userPool("a", leave.TypeCP, leave.TypeCP, leave.PoolAcquis, "2016-06-01", "2017-05-31", generic.UnitDays, "10.48"),
			userPool("r", leave.TypeCP, leave.TypeCP, leave.PoolRestant, "2016-06-01", "2017-05-31", generic.UnitDays, "2"),
		}),
		Days:     dec("13"),
		DateFrom: d("2016-10-10"),
		DateTo:   d("2016-10-26"),
	}

	// no seniority gate in France, balance is acquis + restant
	ve := p.Validate(in)
	require.NotNil(t, ve)
	assert.Equal(t, "You only have 12.48 CP to use.", ve.Message)

	in.Days = dec("12.48")
	assert.Nil(t, p.Validate(in))
}

func TestCP_ValidationIsRepeatable(t *testing.T) {
	p := leave.NewLuxembourgCP(leave.DefaultPolicyConfig(), clockAt("2017-06-10"))
	in := luCPInput("2017-01-10", "2017-06-13", "2017-07-13", "200", "208")

	first := p.Validate(in)
	second := p.Validate(in)
	assert.Equal(t, first, second)
}

// =============================================================================
// RTT VALIDATION
// =============================================================================

func rttInput(amount, days, from, to string) leave.ValidationInput {
	return leave.ValidationInput{
		User:     leave.User{Country: "fr", ArrivalDate: d("2010-01-01")},
		Pools:    leave.NewPoolSnapshot([]leave.UserPool{userPool("rtt", leave.TypeRTT, "", leave.TypeRTT, "2016-01-01", "2016-12-31", generic.UnitDays, amount)}),
		Days:     dec(days),
		DateFrom: d(from),
		DateTo:   d(to),
	}
}

func TestFranceRTT_Validation(t *testing.T) {
	p := leave.NewFranceRTT(leave.DefaultPolicyConfig())

	cases := []struct {
		name string
		in   leave.ValidationInput
		want string
	}{
		{"empty pool", rttInput("0", "1", "2016-03-01", "2016-03-01"), "No RTT left to take."},
		{"too many days", rttInput("2.5", "3", "2016-03-01", "2016-03-03"), "You only have 2.5 RTT to use."},
		{"outside window", rttInput("5", "2", "2016-12-30", "2017-01-02"), "RTT can only be used between 01/01/2016 and 31/12/2016"},
		{"ok", rttInput("5", "2", "2016-03-01", "2016-03-02"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ve := p.Validate(tc.in)
			if tc.want == "" {
				assert.Nil(t, ve)
				return
			}
			require.NotNil(t, ve)
			assert.Equal(t, tc.want, ve.Message)
		})
	}
}

// =============================================================================
// COMPENSATOIRE VALIDATION
// =============================================================================

func TestCompensatoire_Constraints(t *testing.T) {
	p := leave.NewCompensatoire(leave.DefaultPolicyConfig())
	candidates := []generic.TimePoint{d("2016-12-25"), d("2017-01-01")}

	input := func(days, recovered, requested string) leave.ValidationInput {
		return leave.ValidationInput{
			User:               leave.User{Country: "lu", ArrivalDate: d("2016-08-25")},
			Days:               dec(days),
			DateFrom:           d(requested),
			DateTo:             d(requested),
			RecoveredHoliday:   d(recovered),
			RecoveryCandidates: candidates,
		}
	}

	cases := []struct {
		name string
		in   leave.ValidationInput
		want string
	}{
		{"three days", input("3", "2016-12-25", "2017-01-10"), "You can only use 1 Compensatory holiday at a time, for a full day."},
		{"half day", input("0.5", "2016-12-25", "2017-01-10"), "You can only use 1 Compensatory holiday at a time, for a full day."},
		{"not a recoverable holiday", input("1", "2016-12-30", "2017-01-10"), "30/12/2016 is not a valid value for Compensatory vacation"},
		{"before the holiday", input("1", "2016-12-25", "2016-12-20"), "You must request a date after 25/12/2016"},
		{"same day as the holiday", input("1", "2016-12-25", "2016-12-25"), "You must request a date after 25/12/2016"},
		{"beyond three months", input("1", "2016-12-25", "2017-04-01"), "You must request a date in the following 3 months after 25/12/2016"},
		{"last day of the window", input("1", "2016-12-25", "2017-03-25"), ""},
		{"ok", input("1", "2017-01-01", "2017-01-20"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ve := p.Validate(tc.in)
			if tc.want == "" {
				assert.Nil(t, ve)
				return
			}
			require.NotNil(t, ve)
			assert.Equal(t, tc.want, ve.Message)
		})
	}
}
