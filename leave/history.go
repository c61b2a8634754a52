package leave

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// HistoryRow is one step of a pool timeline with running totals after it.
type HistoryRow struct {
	Date      generic.TimePoint
	Value     decimal.Decimal
	Name      string
	Flavor    string
	Kind      generic.EntryKind
	RequestID RequestID

	Restant decimal.Decimal
	Acquis  decimal.Decimal
	Balance decimal.Decimal
}

// BuildHistory replays entries in (date, seq) order into a running-balance
// timeline, then folds split decrements.
func BuildHistory(entries []generic.Entry) []HistoryRow {
	sorted := append([]generic.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.EffectiveAt.Equal(b.EffectiveAt) {
			return a.EffectiveAt.Before(b.EffectiveAt)
		}
		return a.Seq < b.Seq
	})

	var restant, acquis, balance decimal.Decimal
	rows := make([]HistoryRow, 0, len(sorted))
	for _, e := range sorted {
		v := e.Delta.Value
		balance = balance.Add(v)
		switch e.Name {
		case PoolRestant:
			restant = restant.Add(v)
		case PoolAcquis:
			acquis = acquis.Add(v)
		}
		rows = append(rows, HistoryRow{
			Date:      e.EffectiveAt,
			Value:     v,
			Name:      e.Name,
			Flavor:    e.Flavor,
			Kind:      e.Kind,
			RequestID: RequestID(e.ReferenceID),
			Restant:   restant,
			Acquis:    acquis,
			Balance:   balance,
		})
	}

	return dropRedundantLead(foldSplits(rows))
}

type pairAction int

const (
	keepBoth pairAction = iota
	markRefunded
	mergePair
)

// classifyPair decides how two adjacent rows combine. Only rows written for
// the same request on the same day interact: opposite signs are a charge
// and its refund, same signs are one charge split across two pools.
func classifyPair(prev, next HistoryRow) pairAction {
	if prev.RequestID == "" || prev.RequestID != next.RequestID || !prev.Date.Equal(next.Date) {
		return keepBoth
	}
	if prev.Value.Sign()*next.Value.Sign() < 0 {
		return markRefunded
	}
	return mergePair
}

// mergeRows collapses a split charge. Running totals are the later row's,
// with the restant marker cleared.
func mergeRows(prev, next HistoryRow) HistoryRow {
	m := next
	m.Value = prev.Value.Add(next.Value)
	m.Flavor = prev.Flavor
	m.Restant = decimal.Zero
	return m
}

// foldSplits applies classifyPair left to right. A merged row is never
// merged again: a charge is split across two pools at most.
func foldSplits(rows []HistoryRow) []HistoryRow {
	out := make([]HistoryRow, 0, len(rows))
	lastMerged := false
	for _, row := range rows {
		if len(out) == 0 {
			out = append(out, row)
			continue
		}
		prev := out[len(out)-1]
		switch classifyPair(prev, row) {
		case markRefunded:
			row.Flavor = strings.TrimSpace(row.Flavor + " refunded")
			out = append(out, row)
			lastMerged = false
		case mergePair:
			if lastMerged {
				out = append(out, row)
				lastMerged = false
				continue
			}
			out[len(out)-1] = mergeRows(prev, row)
			lastMerged = true
		default:
			out = append(out, row)
			lastMerged = false
		}
	}
	return out
}

func dropRedundantLead(rows []HistoryRow) []HistoryRow {
	if len(rows) < 2 {
		return rows
	}
	a, b := rows[0], rows[1]
	if a.Restant.Equal(b.Restant) && a.Acquis.Equal(b.Acquis) && a.Balance.Equal(b.Balance) {
		return rows[1:]
	}
	return rows
}

// =============================================================================
// POOL-YEAR LOOKUP
// =============================================================================

// PoolYear is how pool years are laid out in a country: June to May in
// France, the calendar year elsewhere.
func PoolYear(country string) generic.PeriodConfig {
	if country == "fr" {
		return generic.PeriodConfig{Type: generic.PeriodFiscalYear, FiscalYearStartMonth: time.June}
	}
	return generic.PeriodConfig{Type: generic.PeriodCalendarYear}
}

// HistoryReferenceDate picks the day whose pool year is shown for year:
// today for the current year, else the end of the pool year running on
// Jan 1 of year (31/05 in France, 31/12 elsewhere).
func HistoryReferenceDate(country string, year int, today generic.TimePoint) generic.TimePoint {
	if year == today.Year() {
		return today
	}
	return PoolYear(country).PeriodFor(generic.StartOfYear(year)).End
}

// History rebuilds the timeline of the user's pools of one vacation type
// for the pool year selected by year. Grouped pools share one timeline.
func (l *PoolLedger) History(ctx context.Context, user User, vacationType string, year int) ([]HistoryRow, error) {
	ref := HistoryReferenceDate(user.Country, year, generic.Today(l.clock))

	pools, err := l.repo.UserPools(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var entries []generic.Entry
	found := false
	for _, up := range pools {
		if up.Pool.VacationType != vacationType || !up.Pool.Window.Contains(ref) {
			continue
		}
		found = true
		es, err := l.ledger.Entries(ctx, user.Entity(), up.Pool.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, es...)
	}
	if !found {
		return nil, errors.Wrapf(ErrPoolNotFound, "%s pool of %s for %d", vacationType, user.ID, year)
	}
	return BuildHistory(entries), nil
}
