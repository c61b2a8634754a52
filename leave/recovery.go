package leave

import (
	"context"

	"github.com/warp/leave-engine/generic"
)

// HolidaySource returns the public holidays of a (country, year).
// calendar.Provider satisfies it.
type HolidaySource interface {
	Holidays(ctx context.Context, country string, year int) (generic.DateSet, error)
}

// HolidaysBetween merges the holiday sets of every year touched by [from, to].
func HolidaysBetween(ctx context.Context, src HolidaySource, country string, from, to generic.TimePoint) (generic.DateSet, error) {
	set := generic.NewDateSet()
	for year := from.Year(); year <= to.Year(); year++ {
		hs, err := src.Holidays(ctx, country, year)
		if err != nil {
			return nil, err
		}
		set.Merge(hs)
	}
	return set, nil
}

// RecoveryCandidates lists the public holidays that fell on a weekend in
// the twelve months before asOf, not earlier than the user's arrival.
// Each one may be taken back as a Compensatoire day.
//
//	arrival 2016-08-25, asOf 2017-01-25 (lu) -> 2016-12-25, 2017-01-01
func RecoveryCandidates(ctx context.Context, src HolidaySource, user User, asOf generic.TimePoint) ([]generic.TimePoint, error) {
	window := generic.PeriodConfig{Type: generic.PeriodRolling}.PeriodFor(asOf)
	if user.ArrivalDate.After(window.Start) {
		window.Start = user.ArrivalDate
	}
	if window.End.Before(window.Start) {
		return nil, nil
	}

	holidays, err := HolidaysBetween(ctx, src, user.Country, window.Start, window.End)
	if err != nil {
		return nil, err
	}

	var out []generic.TimePoint
	for _, d := range holidays.Sorted() {
		if window.Contains(d) && d.IsWeekend() {
			out = append(out, d)
		}
	}
	return out, nil
}
