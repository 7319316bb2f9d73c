package interest_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/interest"
)

func dec(s string) decimal.Decimal { return generic.MustParseDecimal(s) }

// =============================================================================
// COMPOUNDING
// =============================================================================

func TestAccruedInterest_ThirtyDaysOfSavings(t *testing.T) {
	// 1000 × ((1 + 0.045/365)^30 − 1) = 3.7052... → 3.71
	got := interest.AccruedInterest(dec("1000.00"), dec("0.045"), 30)
	assert.Equal(t, "3.71", got.StringFixed(2))
}

func TestAccruedInterest_FourHundredDayCatchUp(t *testing.T) {
	// 200 × ((1 + 0.045/365)^400 − 1) = 10.1096... → 10.11
	got := interest.AccruedInterest(dec("200.00"), dec("0.045"), 400)
	assert.Equal(t, "10.11", got.StringFixed(2))
}

func TestAccruedInterest_ZeroEdges(t *testing.T) {
	rates := []string{"0", "0.045", "0.10", "1"}
	for _, r := range rates {
		rate := dec(r)
		assert.True(t, interest.AccruedInterest(dec("1000"), rate, 0).IsZero(), "zero days at rate %s", r)
		assert.True(t, interest.AccruedInterest(decimal.Zero, rate, 365).IsZero(), "zero principal at rate %s", r)
		assert.True(t, interest.AccruedInterest(dec("-50"), rate, 365).IsZero(), "negative principal at rate %s", r)
		assert.True(t, interest.AccruedInterest(dec("1000"), rate, -3).IsZero(), "negative days at rate %s", r)
	}
}

func TestAccruedInterest_RoundsHalfAwayFromZero(t *testing.T) {
	// Zero rate never grows, regardless of the horizon.
	assert.True(t, interest.AccruedInterest(dec("999.99"), decimal.Zero, 1000).IsZero())

	// Result always carries at most two fractional digits.
	got := interest.AccruedInterest(dec("1234.567"), dec("0.1"), 17)
	assert.True(t, got.Equal(got.Round(2)))
}

func TestAccruedInterest_NegativeRatePanics(t *testing.T) {
	assert.Panics(t, func() { interest.AccruedInterest(dec("100"), dec("-0.01"), 10) })
}

func TestProjectedBalance_ZeroDaysIsExact(t *testing.T) {
	p := dec("123.456789")
	assert.True(t, interest.ProjectedBalance(p, dec("0.10"), 0).Equal(p))
}

func TestProjectedBalance_NeverBelowPrincipal(t *testing.T) {
	principals := []string{"0", "0.01", "1", "500", "1000000"}
	rates := []string{"0", "0.0001", "0.045", "0.10", "1"}
	days := []int{0, 1, 7, 30, 365, 3650}

	for _, p := range principals {
		for _, r := range rates {
			for _, d := range days {
				got := interest.ProjectedBalance(dec(p), dec(r), d)
				assert.True(t, got.GreaterThanOrEqual(dec(p)), "p=%s r=%s d=%d got=%s", p, r, d, got)
			}
		}
	}
}

func TestProjectedBalance_PreconditionsPanic(t *testing.T) {
	assert.Panics(t, func() { interest.ProjectedBalance(dec("-1"), dec("0.045"), 10) })
	assert.Panics(t, func() { interest.ProjectedBalance(dec("1"), dec("-0.045"), 10) })
	assert.Panics(t, func() { interest.ProjectedBalance(dec("1"), dec("0.045"), -1) })
}

func TestProjectedBalance_MatchesAccruedInterest(t *testing.T) {
	p, r := dec("2500"), dec("0.10")
	for _, d := range []int{1, 30, 365} {
		gain := interest.ProjectedBalance(p, r, d).Sub(p).Round(2)
		assert.True(t, gain.Equal(interest.AccruedInterest(p, r, d)), "d=%d", d)
	}
}

func TestIsMaterial(t *testing.T) {
	assert.True(t, interest.IsMaterial(dec("0.01")))
	assert.True(t, interest.IsMaterial(dec("12.34")))
	assert.False(t, interest.IsMaterial(dec("0.00")))
	assert.False(t, interest.IsMaterial(dec("0.009")))
}

// =============================================================================
// RATES
// =============================================================================

func TestRateTable_Defaults(t *testing.T) {
	rates := interest.DefaultRates()
	assert.True(t, rates.AnnualRateFor(generic.CategoryCash).IsZero())
	assert.Equal(t, "0.045", rates.AnnualRateFor(generic.CategorySavings).String())
	assert.Equal(t, "0.1", rates.AnnualRateFor(generic.CategoryInvestments).String())
}

func TestRateTable_EffectiveRate_UsesAccountOverride(t *testing.T) {
	acc := generic.NewAccount("acc-1", "Maya", testNow)
	override := dec("0.05")
	require.NoError(t, acc.SetRateOverride(generic.CategorySavings, &override))

	rates := interest.DefaultRates()
	assert.Equal(t, "0.05", rates.EffectiveRate(acc, generic.CategorySavings).String())
	assert.Equal(t, "0.1", rates.EffectiveRate(acc, generic.CategoryInvestments).String())
}

func TestRateTable_CashCannotBeOverridden(t *testing.T) {
	acc := generic.NewAccount("acc-1", "Maya", testNow)
	r := dec("0.05")
	assert.ErrorIs(t, acc.SetRateOverride(generic.CategoryCash, &r), generic.ErrInvalidRate)

	_, err := interest.DefaultRates().WithOverrides(map[generic.Category]decimal.Decimal{
		generic.CategoryCash: r,
	})
	assert.ErrorIs(t, err, generic.ErrInvalidRate)
}

func TestRateFromPercent(t *testing.T) {
	r, err := interest.RateFromPercent(dec("4.5"))
	require.NoError(t, err)
	assert.Equal(t, "0.045", r.String())
	assert.Equal(t, "4.5", interest.RateToPercent(r).String())

	_, err = interest.RateFromPercent(dec("100.5"))
	assert.ErrorIs(t, err, generic.ErrInvalidRate)
	_, err = interest.RateFromPercent(dec("-1"))
	assert.ErrorIs(t, err, generic.ErrInvalidRate)
}

func TestValidateRate(t *testing.T) {
	assert.NoError(t, interest.ValidateRate(decimal.Zero))
	assert.NoError(t, interest.ValidateRate(dec("1")))
	assert.ErrorIs(t, interest.ValidateRate(dec("1.01")), generic.ErrInvalidRate)
	assert.ErrorIs(t, interest.ValidateRate(dec("-0.01")), generic.ErrInvalidRate)
}
