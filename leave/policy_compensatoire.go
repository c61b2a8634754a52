package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// compensatoirePolicy lets Luxembourg employees take back a public holiday
// that fell on a weekend: one full day, after the holiday, within a few
// months of it. Nothing is accrued or decremented.
type compensatoirePolicy struct {
	windowMonths int
}

func NewCompensatoire(cfg PolicyConfig) Policy {
	return &compensatoirePolicy{windowMonths: cfg.RecoveryWindowMonths}
}

func (p *compensatoirePolicy) Key() PolicyKey          { return KeyFor(TypeCompensatoire, "lu") }
func (p *compensatoirePolicy) Unit() generic.Unit      { return generic.UnitDays }
func (p *compensatoirePolicy) RequiredPools() []string { return nil }

func (p *compensatoirePolicy) ConvertDays(days decimal.Decimal) decimal.Decimal { return days }

func (p *compensatoirePolicy) Accrued(User, generic.TimePoint) (decimal.Decimal, bool) {
	return decimal.Zero, false
}

// Validate expects RecoveryCandidates to hold the holidays still open for
// recovery at the time of the request.
func (p *compensatoirePolicy) Validate(in ValidationInput) *ValidationError {
	if !in.Days.Equal(decimal.NewFromInt(1)) {
		return invalid("full_day", "You can only use 1 Compensatory holiday at a time, for a full day.")
	}

	recovered := in.RecoveredHoliday
	if recovered.IsZero() || !containsDate(in.RecoveryCandidates, recovered) {
		return invalid("holiday", "%s is not a valid value for Compensatory vacation", recovered.DMY())
	}
	if !in.DateFrom.After(recovered) {
		return invalid("after", "You must request a date after %s", recovered.DMY())
	}
	if in.DateTo.After(recovered.AddMonths(p.windowMonths)) {
		return invalid("window", "You must request a date in the following %d months after %s", p.windowMonths, recovered.DMY())
	}
	return nil
}

func containsDate(list []generic.TimePoint, d generic.TimePoint) bool {
	for _, c := range list {
		if c.Equal(d) {
			return true
		}
	}
	return false
}
