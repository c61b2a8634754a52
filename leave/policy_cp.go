package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

var (
	keyCPAcquis  = TypeCP + " " + PoolAcquis
	keyCPRestant = TypeCP + " " + PoolRestant
)

// cpPolicy covers congés payés. A CP request draws on two pools: "restant"
// (carried over from last year, expires first) and "acquis" (this year).
type cpPolicy struct {
	key   PolicyKey
	clock generic.Clock
	unit  generic.Unit

	// hoursPerDay converts requested days into pool units; one for
	// day-denominated pools.
	hoursPerDay decimal.Decimal

	// seniorityMonths gates any CP use; zero disables the gate.
	seniorityMonths int

	schedule *ProratedSchedule
}

// NewLuxembourgCP counts CP in hours, needs a few months of seniority and
// prorates the yearly grant for newcomers.
func NewLuxembourgCP(cfg PolicyConfig, clock generic.Clock) Policy {
	return &cpPolicy{
		key:             KeyFor(TypeCP, "lu"),
		clock:           clock,
		unit:            generic.UnitHours,
		hoursPerDay:     cfg.LUHoursPerDay,
		seniorityMonths: cfg.LUSeniorityMonths,
		schedule:        &ProratedSchedule{Nominal: cfg.LUCPNominalDays},
	}
}

// NewFranceCP counts CP in days. Acquisition is loaded into the pools by
// admins and seed files.
func NewFranceCP(clock generic.Clock) Policy {
	return &cpPolicy{
		key:         KeyFor(TypeCP, "fr"),
		clock:       clock,
		unit:        generic.UnitDays,
		hoursPerDay: decimal.NewFromInt(1),
	}
}

func (p *cpPolicy) Key() PolicyKey          { return p.key }
func (p *cpPolicy) Unit() generic.Unit      { return p.unit }
func (p *cpPolicy) RequiredPools() []string { return []string{keyCPAcquis} }

func (p *cpPolicy) ConvertDays(days decimal.Decimal) decimal.Decimal {
	return days.Mul(p.hoursPerDay)
}

func (p *cpPolicy) Accrued(user User, at generic.TimePoint) (decimal.Decimal, bool) {
	if p.schedule == nil {
		return decimal.Zero, false
	}
	return p.schedule.AccruedAt(user.ArrivalDate, at), true
}

// Validate checks, in order: seniority, usage window, balance.
func (p *cpPolicy) Validate(in ValidationInput) *ValidationError {
	if p.seniorityMonths > 0 {
		today := generic.Today(p.clock)
		if generic.MonthsBetween(in.User.ArrivalDate, today) < p.seniorityMonths {
			return invalid("seniority", "You need %d months of seniority before using your CP", p.seniorityMonths)
		}
	}

	acquis, ok := in.Pools[keyCPAcquis]
	if !ok {
		return invalid("pool", "No CP left to take.")
	}
	restant := in.Pools[keyCPRestant]

	if in.DateTo.After(acquis.Pool.Window.End) {
		return invalid("window", "CP can only be used until %s.", acquis.Pool.Window.End.DMY())
	}

	total := acquis.Amount.Add(restant.Amount)
	if !total.IsPositive() {
		return invalid("balance", "No CP left to take.")
	}
	if in.Days.GreaterThan(total) {
		return invalid("balance", "You only have %s CP to use.", total.String())
	}
	return nil
}
