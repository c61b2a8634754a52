package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// rttPolicy covers French RTT: one day per worked month, capped yearly,
// usable inside the pool's window.
type rttPolicy struct {
	schedule MonthlySchedule
}

func NewFranceRTT(cfg PolicyConfig) Policy {
	return &rttPolicy{schedule: MonthlySchedule{PerMonth: decimal.NewFromInt(1), Annual: cfg.RTTAnnualDays}}
}

func (p *rttPolicy) Key() PolicyKey                                  { return KeyFor(TypeRTT, "fr") }
func (p *rttPolicy) Unit() generic.Unit                              { return generic.UnitDays }
func (p *rttPolicy) RequiredPools() []string                         { return []string{TypeRTT} }
func (p *rttPolicy) ConvertDays(days decimal.Decimal) decimal.Decimal { return days }

func (p *rttPolicy) Accrued(user User, at generic.TimePoint) (decimal.Decimal, bool) {
	return p.schedule.AccruedAt(user.ArrivalDate, at), true
}

func (p *rttPolicy) Validate(in ValidationInput) *ValidationError {
	pool, ok := in.Pools[TypeRTT]
	if !ok || !pool.Amount.IsPositive() {
		return invalid("balance", "No RTT left to take.")
	}
	if in.Days.GreaterThan(pool.Amount) {
		return invalid("balance", "You only have %s RTT to use.", pool.Amount.String())
	}
	w := pool.Pool.Window
	if !w.Contains(in.DateFrom) || !w.Contains(in.DateTo) {
		return invalid("window", "RTT can only be used between %s and %s", w.Start.DMY(), w.End.DMY())
	}
	return nil
}
