/*
Package calendar provides public-holiday lookups per country and year.

PURPOSE:
  Request day counting skips public holidays, and Luxembourg holiday
  recovery needs to know which holidays fell on a weekend. Both ask the
  Provider for the holiday set of a (country, year) pair.

SOURCES:
  Computed:  rickar/cal holiday definitions (fixed dates, Easter offsets,
             nth-weekday rules) per supported country.
  Overrides: per (country, year) tables that REPLACE the computed set.
             Lunar-calendar holidays (Taiwan) cannot be computed, so the
             override table is the only source for those years.

COUNTRIES:
  fr  France
  lu  Luxembourg
  us  United States (California)
  zh  Taiwan

SEE ALSO:
  - overrides.go: YAML override tables
  - leave/request.go: day counting
  - leave/recovery.go: Compensatoire candidates
*/
package calendar

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/us"
	"github.com/warp/leave-engine/generic"
)

// ErrUnknownCountry is returned for a country with no holiday definitions.
var ErrUnknownCountry = errors.Mark(errors.New("calendar: unknown country"), generic.ErrNotFound)

// Holiday is one named public holiday.
type Holiday struct {
	Date generic.TimePoint `json:"date"`
	Name string            `json:"name"`
}

// =============================================================================
// COUNTRY DEFINITIONS
// =============================================================================

var luxembourg = []*cal.Holiday{
	{Name: "New Year's Day", Type: cal.ObservancePublic, Month: time.January, Day: 1, Func: cal.CalcDayOfMonth},
	{Name: "Easter Monday", Type: cal.ObservancePublic, Offset: 1, Func: cal.CalcEasterOffset},
	{Name: "Labour Day", Type: cal.ObservancePublic, Month: time.May, Day: 1, Func: cal.CalcDayOfMonth},
	{Name: "Europe Day", Type: cal.ObservancePublic, Month: time.May, Day: 9, StartYear: 2019, Func: cal.CalcDayOfMonth},
	{Name: "Ascension Day", Type: cal.ObservancePublic, Offset: 39, Func: cal.CalcEasterOffset},
	{Name: "Whit Monday", Type: cal.ObservancePublic, Offset: 50, Func: cal.CalcEasterOffset},
	{Name: "National Day", Type: cal.ObservancePublic, Month: time.June, Day: 23, Func: cal.CalcDayOfMonth},
	{Name: "Assumption Day", Type: cal.ObservancePublic, Month: time.August, Day: 15, Func: cal.CalcDayOfMonth},
	{Name: "All Saints' Day", Type: cal.ObservancePublic, Month: time.November, Day: 1, Func: cal.CalcDayOfMonth},
	{Name: "Christmas Day", Type: cal.ObservancePublic, Month: time.December, Day: 25, Func: cal.CalcDayOfMonth},
	{Name: "St. Stephen's Day", Type: cal.ObservancePublic, Month: time.December, Day: 26, Func: cal.CalcDayOfMonth},
}

var california = []*cal.Holiday{
	us.NewYear,
	us.MlkDay,
	{Name: "Presidents' Day", Type: cal.ObservancePublic, Month: time.February, Weekday: time.Monday, Offset: 3, Func: cal.CalcWeekdayOffset},
	{Name: "Cesar Chavez Day", Type: cal.ObservancePublic, Month: time.March, Day: 31, Func: cal.CalcDayOfMonth},
	us.MemorialDay,
	us.IndependenceDay,
	us.LaborDay,
	{Name: "Veterans Day", Type: cal.ObservancePublic, Month: time.November, Day: 11, Func: cal.CalcDayOfMonth},
	us.ThanksgivingDay,
	us.ChristmasDay,
}

// Taiwan's lunar holidays come from overrides; only solar dates are computed.
var taiwan = []*cal.Holiday{
	{Name: "Founding Day", Type: cal.ObservancePublic, Month: time.January, Day: 1, Func: cal.CalcDayOfMonth},
	{Name: "Peace Memorial Day", Type: cal.ObservancePublic, Month: time.February, Day: 28, Func: cal.CalcDayOfMonth},
	{Name: "Children's Day", Type: cal.ObservancePublic, Month: time.April, Day: 4, Func: cal.CalcDayOfMonth},
	{Name: "National Day", Type: cal.ObservancePublic, Month: time.October, Day: 10, Func: cal.CalcDayOfMonth},
}

func defaultDefinitions() map[string][]*cal.Holiday {
	return map[string][]*cal.Holiday{
		"fr": fr.Holidays,
		"lu": luxembourg,
		"us": california,
		"zh": taiwan,
	}
}

// =============================================================================
// PROVIDER
// =============================================================================

// Provider answers holiday sets per (country, year). Immutable after construction.
type Provider struct {
	definitions map[string][]*cal.Holiday
	overrides   Overrides
}

// NewProvider builds a provider with the built-in country definitions and
// the given overrides layered on top of DefaultOverrides.
func NewProvider(overrides ...Overrides) *Provider {
	merged := DefaultOverrides()
	for _, o := range overrides {
		merged = merged.Merge(o)
	}
	return &Provider{definitions: defaultDefinitions(), overrides: merged}
}

// Countries lists the supported country codes.
func (p *Provider) Countries() []string {
	out := make([]string, 0, len(p.definitions))
	for c := range p.definitions {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Named returns the holidays of a (country, year), sorted by date.
// An override for the pair replaces the computed list entirely.
func (p *Provider) Named(_ context.Context, country string, year int) ([]Holiday, error) {
	defs, ok := p.definitions[country]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCountry, "country %q", country)
	}

	if list, ok := p.overrides.lookup(country, year); ok {
		return sortHolidays(list), nil
	}

	var out []Holiday
	for _, h := range defs {
		actual, _ := h.Calc(year)
		if actual.IsZero() {
			continue
		}
		out = append(out, Holiday{Date: generic.DateOf(actual), Name: h.Name})
	}
	return sortHolidays(out), nil
}

// Holidays returns the holiday dates of a (country, year).
func (p *Provider) Holidays(ctx context.Context, country string, year int) (generic.DateSet, error) {
	named, err := p.Named(ctx, country, year)
	if err != nil {
		return nil, err
	}
	set := generic.NewDateSet()
	for _, h := range named {
		set.Add(h.Date)
	}
	return set, nil
}

func sortHolidays(list []Holiday) []Holiday {
	out := append([]Holiday(nil), list...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
