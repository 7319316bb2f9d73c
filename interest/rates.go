/*
Package interest is the accrual engine: rates, compounding, the periodic
accrual scheduler and the ledger writer that posts its decisions.

COMPONENTS (leaves first):
  RateTable     - category → nominal annual rate, overridable per account
  Calculator    - ProjectedBalance / AccruedInterest, daily compounding
  Scheduler     - decides what to post for each account on each pass
  LedgerWriter  - applies a decision atomically (balance + transaction)

COMPOUNDING MODEL:
  daily rate   = annual / 365
  balance(d)   = principal × (1 + annual/365)^d
  interest(d)  = balance(d) − principal, rounded to cents

  A gap of N whole days is compounded in one shot with exponent N, so one
  pass after N days lands on the same balance as N daily passes (within
  rounding of the posted cents).

USAGE:
    sched := interest.NewScheduler(store, interest.DefaultRates(), logger)
    result, err := sched.RunAccrualPass(ctx, time.Now())
    for _, ev := range result.Events() {
        ...
    }

SEE ALSO:
  - generic/account.go: The aggregate the writer mutates
  - api/scheduler.go: Cron-driven host for RunAccrualPass
*/
package interest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/savings-engine/generic"
)

// RateTable maps categories to nominal annual rates (0.045 = 4.5%).
type RateTable map[generic.Category]decimal.Decimal

var (
	defaultSavingsRate     = decimal.RequireFromString("0.045")
	defaultInvestmentsRate = decimal.RequireFromString("0.10")

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// DefaultRates returns a fresh copy of the built-in table.
func DefaultRates() RateTable {
	return RateTable{
		generic.CategoryCash:        decimal.Zero,
		generic.CategorySavings:     defaultSavingsRate,
		generic.CategoryInvestments: defaultInvestmentsRate,
	}
}

// AnnualRateFor returns the table rate. Cash and unknown categories are 0.
func (t RateTable) AnnualRateFor(c generic.Category) decimal.Decimal {
	if c == generic.CategoryCash {
		return decimal.Zero
	}
	if r, ok := t[c]; ok {
		return r
	}
	return decimal.Zero
}

// EffectiveRate applies the account's override, if it has one, over the table.
func (t RateTable) EffectiveRate(account generic.Account, c generic.Category) decimal.Decimal {
	if c == generic.CategoryCash {
		return decimal.Zero
	}
	if r, ok := account.RateOverride(c); ok {
		return r
	}
	return t.AnnualRateFor(c)
}

// WithOverrides returns a copy of t with the given entries replaced.
func (t RateTable) WithOverrides(overrides map[generic.Category]decimal.Decimal) (RateTable, error) {
	out := make(RateTable, len(t))
	for c, r := range t {
		out[c] = r
	}
	for c, r := range overrides {
		if c == generic.CategoryCash {
			return nil, fmt.Errorf("%w: cash never accrues", generic.ErrInvalidRate)
		}
		if !c.Valid() {
			return nil, fmt.Errorf("%w: %q", generic.ErrInvalidCategory, c)
		}
		if err := ValidateRate(r); err != nil {
			return nil, err
		}
		out[c] = r
	}
	return out, nil
}

// ValidateRate accepts annual rates in [0, 1].
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return fmt.Errorf("%w: %s is outside [0, 1]", generic.ErrInvalidRate, rate.String())
	}
	return nil
}

// RateFromPercent converts the 0–100 form shown to users into a fraction.
func RateFromPercent(percent decimal.Decimal) (decimal.Decimal, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: %s%% is outside [0, 100]", generic.ErrInvalidRate, percent.String())
	}
	return percent.Div(hundred), nil
}

// RateToPercent is the inverse of RateFromPercent.
func RateToPercent(rate decimal.Decimal) decimal.Decimal {
	return rate.Mul(hundred)
}
