package interest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/interest"
)

func TestComputeProjections_StrictlyIncreasing(t *testing.T) {
	horizons := []int{14, 30, 180, 365, 1825}
	got := interest.ComputeProjections(dec("500.00"), dec("0.10"), horizons)

	require.Len(t, got, len(horizons))
	prev := dec("500.00")
	for _, h := range horizons {
		assert.True(t, got[h].GreaterThan(prev), "horizon %d: %s <= %s", h, got[h], prev)
		prev = got[h]
	}
}

func TestComputeProjections_CashStaysFlat(t *testing.T) {
	rate := interest.DefaultRates().AnnualRateFor(generic.CategoryCash)
	got := interest.ComputeProjections(dec("80.00"), rate, []int{0, 365, 1825})
	for h, v := range got {
		assert.Equal(t, "80", v.String(), "horizon %d", h)
	}
}

func TestParseHorizons(t *testing.T) {
	got, err := interest.ParseHorizons("")
	require.NoError(t, err)
	assert.Equal(t, []int{14, 30, 180, 365, 1825}, got)

	got, err = interest.ParseHorizons("1y, 7,2w")
	require.NoError(t, err)
	assert.Equal(t, []int{7, 14, 365}, got)

	_, err = interest.ParseHorizons("soon")
	assert.Error(t, err)
	_, err = interest.ParseHorizons("-4")
	assert.Error(t, err)
}

func TestParseHorizons_Cap(t *testing.T) {
	got, err := interest.ParseHorizons("36500")
	require.NoError(t, err)
	assert.Equal(t, []int{interest.MaxHorizonDays}, got)

	_, err = interest.ParseHorizons("36501")
	assert.ErrorContains(t, err, "invalid horizon")
	_, err = interest.ParseHorizons("30,2000000000000")
	assert.ErrorContains(t, err, "invalid horizon")
}

func TestProjectionSeries(t *testing.T) {
	series := interest.ProjectionSeries(dec("100"), dec("0.045"), 365, 12)
	require.Len(t, series, 13)
	assert.Equal(t, 0, series[0].Day)
	assert.Equal(t, 365, series[12].Day)
	assert.True(t, series[0].Balance.Equal(dec("100")))
	for i := 1; i < len(series); i++ {
		assert.True(t, series[i].Balance.GreaterThanOrEqual(series[i-1].Balance))
	}

	assert.Len(t, interest.ProjectionSeries(dec("100"), dec("0.045"), 0, 12), 1)
}

func TestProjectionSeries_ClampsDays(t *testing.T) {
	series := interest.ProjectionSeries(dec("100"), dec("0.045"), 2000000000000, 4)
	require.Len(t, series, 5)
	for i, p := range series {
		assert.GreaterOrEqual(t, p.Day, 0, "point %d", i)
	}
	assert.Equal(t, interest.MaxHorizonDays, series[4].Day)
}

func TestSummarizeByDay(t *testing.T) {
	day1 := time.Date(2025, time.February, 10, 8, 0, 0, 0, time.UTC)
	day2 := day1.Add(26 * time.Hour)

	txs := []generic.Transaction{
		{Date: day1, Amount: amount("20.00"), Direction: generic.Credit, Kind: generic.TxDeposit},
		{Date: day1.Add(time.Hour), Amount: amount("5.00"), Direction: generic.Debit, Kind: generic.TxWithdrawal},
		// A large interest posting is still interest; a tiny deposit is still a deposit.
		{Date: day2, Amount: amount("45.00"), Direction: generic.Credit, Kind: generic.TxInterest},
		{Date: day2, Amount: amount("0.50"), Direction: generic.Credit, Kind: generic.TxDeposit},
		{Date: day2, Amount: amount("2.00"), Direction: generic.Debit, Kind: generic.TxAdjustment},
	}

	days := interest.SummarizeByDay(txs)
	require.Len(t, days, 2)

	assert.True(t, days[0].Date.Equal(generic.DateKey(day2)), "most recent day first")
	assert.Equal(t, "45.00", days[0].Interest.String())
	assert.Equal(t, "0.50", days[0].Added.String())
	assert.Equal(t, "2.00", days[0].Withdrawn.String())
	assert.Equal(t, 3, days[0].Count)

	assert.Equal(t, "20.00", days[1].Added.String())
	assert.Equal(t, "5.00", days[1].Withdrawn.String())
	assert.Equal(t, "15.00", days[1].Net().String())
}
