package interest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/savings-engine/generic"
)

// =============================================================================
// COMPOUNDING CALCULATOR - Pure arithmetic, daily compounding
// =============================================================================

const (
	// DaysPerYear divides the annual rate into the daily rate.
	DaysPerYear = 365

	// precision is the number of fractional digits kept in intermediate
	// products. Well beyond cents, so rounding only happens once at the end.
	precision = 24
)

var daysPerYear = decimal.NewFromInt(DaysPerYear)

// MaterialityFloor is the smallest interest amount worth posting.
var MaterialityFloor = decimal.New(1, -generic.CentPlaces)

// ProjectedBalance returns principal × (1 + annualRate/365)^days.
// days == 0 returns principal unchanged. Negative inputs are programming
// errors and panic.
func ProjectedBalance(principal, annualRate decimal.Decimal, days int) decimal.Decimal {
	if principal.IsNegative() {
		panic(fmt.Sprintf("interest: negative principal %s", principal))
	}
	if annualRate.IsNegative() {
		panic(fmt.Sprintf("interest: negative rate %s", annualRate))
	}
	if days < 0 {
		panic(fmt.Sprintf("interest: negative days %d", days))
	}
	if days == 0 || principal.IsZero() {
		return principal
	}
	return principal.Mul(growthFactor(annualRate, days)).Truncate(precision)
}

// AccruedInterest returns principal × ((1 + annualRate/365)^daysPassed − 1),
// rounded to cents half away from zero. It is exactly 0 when principal <= 0 or
// daysPassed <= 0. A negative rate panics.
func AccruedInterest(principal, annualRate decimal.Decimal, daysPassed int) decimal.Decimal {
	if annualRate.IsNegative() {
		panic(fmt.Sprintf("interest: negative rate %s", annualRate))
	}
	if !principal.IsPositive() || daysPassed <= 0 {
		return decimal.Zero
	}
	gain := principal.Mul(growthFactor(annualRate, daysPassed).Sub(one))
	return gain.Round(generic.CentPlaces)
}

// IsMaterial reports whether an interest amount clears the posting floor.
func IsMaterial(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(MaterialityFloor)
}

// growthFactor is (1 + rate/365)^days.
func growthFactor(annualRate decimal.Decimal, days int) decimal.Decimal {
	daily := one.Add(annualRate.DivRound(daysPerYear, precision))
	return powInt(daily, days)
}

// powInt raises base to a non-negative integer power by repeated squaring,
// truncating each product to keep the digit count bounded.
func powInt(base decimal.Decimal, exp int) decimal.Decimal {
	result := one
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base).Truncate(precision)
		}
		exp >>= 1
		if exp > 0 {
			base = base.Mul(base).Truncate(precision)
		}
	}
	return result
}
