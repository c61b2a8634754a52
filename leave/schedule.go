package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// MonthlySchedule earns PerMonth for every complete month since the start
// of the year, or since arrival when the user joined during the year,
// capped at Annual.
//
//	arrival 2014-09-13, at 2014-12-25: 3 months -> 3
//	arrival 2010-01-01, at 2014-12-25: 11 months -> capped at 10
type MonthlySchedule struct {
	PerMonth decimal.Decimal
	Annual   decimal.Decimal
}

func (s MonthlySchedule) AccruedAt(arrival, at generic.TimePoint) decimal.Decimal {
	start := generic.StartOfYear(at.Year())
	if arrival.After(start) {
		start = arrival
	}
	if at.Before(start) {
		return decimal.Zero
	}
	earned := s.PerMonth.Mul(decimal.NewFromInt(int64(generic.MonthsBetween(start, at))))
	return decimal.Min(earned, s.Annual)
}

// ProratedSchedule grants Nominal once the user has a full year of
// seniority. Before that the grant is Nominal * months worked / 12,
// rounded to whole days.
type ProratedSchedule struct {
	Nominal decimal.Decimal
}

func (s ProratedSchedule) AccruedAt(arrival, at generic.TimePoint) decimal.Decimal {
	if at.Before(arrival) {
		return decimal.Zero
	}
	months := generic.MonthsBetween(arrival, at)
	if months >= 12 {
		return s.Nominal
	}
	return s.Nominal.Mul(decimal.NewFromInt(int64(months))).Div(decimal.NewFromInt(12)).Round(0)
}
