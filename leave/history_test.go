package leave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

var seq int64

func entry(date, pool, value, requestID string, kind generic.EntryKind) generic.Entry {
	seq++
	return generic.Entry{
		EntityID:    "u",
		PoolID:      generic.PoolID("cp-" + pool),
		EffectiveAt: d(date),
		Delta:       generic.NewAmountFromDecimal(dec(value), generic.UnitDays),
		Kind:        kind,
		Name:        pool,
		Flavor:      leave.TypeCP,
		ReferenceID: requestID,
		Seq:         seq,
	}
}

func TestBuildHistory_SameSignedSplitIsMerged(t *testing.T) {
	// GIVEN: openings, then one request charged on restant and acquis
	rows := leave.BuildHistory([]generic.Entry{
		entry("2016-06-01", leave.PoolRestant, "2", "", generic.EntryAdjustment),
		entry("2016-06-01", leave.PoolAcquis, "10", "", generic.EntryAdjustment),
		entry("2016-10-03", leave.PoolRestant, "-2", "r1", generic.EntryConsumption),
		entry("2016-10-03", leave.PoolAcquis, "-1", "r1", generic.EntryConsumption),
	})

	// THEN: the split is one row summing both values, restant marker cleared
	require.Len(t, rows, 3)
	last := rows[2]
	assert.Equal(t, "-3", last.Value.String())
	assert.Equal(t, "0", last.Restant.String())
	assert.Equal(t, "9", last.Acquis.String())
	assert.Equal(t, "9", last.Balance.String())
	assert.Equal(t, leave.RequestID("r1"), last.RequestID)
}

func TestBuildHistory_OppositeSignsAreRefundNotMerge(t *testing.T) {
	// GIVEN: a charge and its refund on the same day
	rows := leave.BuildHistory([]generic.Entry{
		entry("2016-06-01", leave.PoolAcquis, "10", "", generic.EntryAdjustment),
		entry("2016-10-03", leave.PoolAcquis, "-2", "r1", generic.EntryConsumption),
		entry("2016-10-03", leave.PoolAcquis, "2", "r1", generic.EntryRefund),
	})

	// THEN: both rows stay, the later one is flagged
	require.Len(t, rows, 3)
	assert.Equal(t, "-2", rows[1].Value.String())
	assert.Equal(t, "CP", rows[1].Flavor)
	assert.Equal(t, "2", rows[2].Value.String())
	assert.Equal(t, "CP refunded", rows[2].Flavor)
	assert.Equal(t, "10", rows[2].Balance.String())
}

func TestBuildHistory_SplitChargeThenSplitRefund(t *testing.T) {
	rows := leave.BuildHistory([]generic.Entry{
		entry("2016-06-01", leave.PoolRestant, "2", "", generic.EntryAdjustment),
		entry("2016-06-01", leave.PoolAcquis, "10", "", generic.EntryAdjustment),
		entry("2016-10-03", leave.PoolRestant, "-2", "r1", generic.EntryConsumption),
		entry("2016-10-03", leave.PoolAcquis, "-1", "r1", generic.EntryConsumption),
		entry("2016-10-03", leave.PoolRestant, "2", "r1", generic.EntryRefund),
		entry("2016-10-03", leave.PoolAcquis, "1", "r1", generic.EntryRefund),
	})

	require.Len(t, rows, 4)
	assert.Equal(t, "-3", rows[2].Value.String())
	assert.Equal(t, "3", rows[3].Value.String())
	assert.Equal(t, "CP refunded", rows[3].Flavor)
	assert.Equal(t, "12", rows[3].Balance.String())
}

func TestBuildHistory_DifferentRequestsNeverMerge(t *testing.T) {
	rows := leave.BuildHistory([]generic.Entry{
		entry("2016-06-01", leave.PoolAcquis, "10", "", generic.EntryAdjustment),
		entry("2016-10-03", leave.PoolAcquis, "-1", "r1", generic.EntryConsumption),
		entry("2016-10-03", leave.PoolAcquis, "-1", "r2", generic.EntryConsumption),
	})

	require.Len(t, rows, 3)
	assert.Equal(t, "8", rows[2].Balance.String())
}

func TestBuildHistory_DropsRedundantLeadingRow(t *testing.T) {
	// GIVEN: a zero opening followed by a real grant
	rows := leave.BuildHistory([]generic.Entry{
		entry("2016-06-01", leave.PoolAcquis, "0", "", generic.EntryAdjustment),
		entry("2016-06-01", leave.PoolAcquis, "0", "", generic.EntryAdjustment),
		entry("2016-07-01", leave.PoolAcquis, "2.08", "", generic.EntryAccrual),
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "2.08", rows[1].Balance.String())
}

func TestBuildHistory_OrdersByDateThenSeq(t *testing.T) {
	late := entry("2016-10-03", leave.PoolAcquis, "-1", "r1", generic.EntryConsumption)
	early := entry("2016-06-01", leave.PoolAcquis, "5", "", generic.EntryAdjustment)

	rows := leave.BuildHistory([]generic.Entry{late, early})

	require.Len(t, rows, 2)
	assert.Equal(t, "5", rows[0].Balance.String())
	assert.Equal(t, "4", rows[1].Balance.String())
}

func TestHistoryReferenceDate(t *testing.T) {
	today := d("2017-03-15")
	assert.Equal(t, today, leave.HistoryReferenceDate("fr", 2017, today))
	assert.Equal(t, d("2016-05-31"), leave.HistoryReferenceDate("fr", 2016, today))
	assert.Equal(t, d("2016-12-31"), leave.HistoryReferenceDate("lu", 2016, today))

	assert.Equal(t, "[2016-06-01, 2017-05-31]", leave.PoolYear("fr").PeriodFor(today).String())
	assert.Equal(t, "[2017-01-01, 2017-12-31]", leave.PoolYear("lu").PeriodFor(today).String())
}
