package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// Breakdown selects a full day or one half of a single day.
type Breakdown string

const (
	BreakdownFull Breakdown = "FULL"
	BreakdownAM   Breakdown = "AM"
	BreakdownPM   Breakdown = "PM"
)

// DayCount is the cost of a request period.
type DayCount struct {
	Days        decimal.Decimal
	Label       string
	WorkingDays []generic.TimePoint
}

var halfDay = decimal.NewFromFloat(0.5)

// CountDays counts working days in [from, to] outside weekends and the
// given holidays. A half-day breakdown is only valid on a single day and
// costs 0.5.
func CountDays(from, to generic.TimePoint, holidays generic.DateSet, breakdown Breakdown) (DayCount, *ValidationError) {
	if to.Before(from) {
		return DayCount{}, invalid("period", "Invalid format for period.")
	}

	working := generic.WorkingDays(from, to, holidays)
	if len(working) == 0 {
		return DayCount{}, invalid("period", "Invalid value for days.")
	}

	switch breakdown {
	case "", BreakdownFull:
		return DayCount{Days: decimal.NewFromInt(int64(len(working))), WorkingDays: working}, nil
	case BreakdownAM, BreakdownPM:
		if !from.Equal(to) {
			return DayCount{}, invalid("breakdown", "AM/PM option must be used only when requesting a single day.")
		}
		return DayCount{Days: halfDay, Label: string(breakdown), WorkingDays: working}, nil
	default:
		return DayCount{}, invalid("breakdown", "Invalid breakdown %q.", string(breakdown))
	}
}
