/*
account.go - The Account aggregate

PURPOSE:
  An Account owns its three balances, its optional per-category rate
  overrides and the instant of its last accrual pass. All mutations go
  through methods on this type, so the invariants below are enforced in one
  place instead of by whoever happens to hold the struct.

INVARIANTS:
  1. Balances are never negative (debits beyond the balance are rejected)
  2. LastAccrualAt never moves backwards
  3. Every balance change returns the Transaction that explains it
  4. Rate overrides live in [0, 1] and only on interest-bearing categories

VERSIONING:
  Version is owned by the store. UpdateAccount compares the version it read
  with the one on disk and bumps it on write (optimistic locking).

SEE ALSO:
  - types.go: Amount, Category, Transaction
  - store.go: AccountStore.UpdateAccount (atomic read-modify-write)
  - interest/writer.go: The only engine code that mutates accounts
*/
package generic

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID            AccountID
	Name          string
	Balances      map[Category]decimal.Decimal
	RateOverrides map[Category]decimal.Decimal
	LastAccrualAt time.Time
	Version       int64
	CreatedAt     time.Time
}

// NewAccount creates an account with zero balances whose accrual clock starts now.
func NewAccount(id AccountID, name string, now time.Time) Account {
	balances := make(map[Category]decimal.Decimal, 3)
	for _, c := range Categories() {
		balances[c] = decimal.Zero
	}
	return Account{
		ID:            id,
		Name:          name,
		Balances:      balances,
		RateOverrides: make(map[Category]decimal.Decimal),
		LastAccrualAt: now,
		CreatedAt:     now,
	}
}

// Clone returns a deep copy; stores hand out clones so callers can't alias state.
func (a Account) Clone() Account {
	out := a
	out.Balances = make(map[Category]decimal.Decimal, len(a.Balances))
	for k, v := range a.Balances {
		out.Balances[k] = v
	}
	out.RateOverrides = make(map[Category]decimal.Decimal, len(a.RateOverrides))
	for k, v := range a.RateOverrides {
		out.RateOverrides[k] = v
	}
	return out
}

func (a Account) Balance(c Category) Amount {
	return NewAmountFromDecimal(a.Balances[c])
}

// Total sums all three balances.
func (a Account) Total() Amount {
	total := ZeroAmount()
	for _, c := range Categories() {
		total = total.Add(a.Balance(c))
	}
	return total
}

// RateOverride returns the stored override for c, if any.
func (a Account) RateOverride(c Category) (decimal.Decimal, bool) {
	r, ok := a.RateOverrides[c]
	return r, ok
}

// =============================================================================
// MUTATIONS
// =============================================================================

// ApplyAccrual credits posted interest to an interest-bearing category.
func (a *Account) ApplyAccrual(c Category, amount Amount, now time.Time) (Transaction, error) {
	if c == CategoryCash || !c.Valid() {
		return Transaction{}, fmt.Errorf("%w: %q does not accrue interest", ErrInvalidCategory, c)
	}
	if !amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: interest must be positive, got %s", ErrInvalidAmount, amount.Value)
	}

	a.credit(c, amount)
	return Transaction{
		AccountID: a.ID,
		Category:  c,
		Date:      now,
		Amount:    amount,
		Direction: Credit,
		Kind:      TxInterest,
		Reason:    "Interest earned",
		CreatedAt: now,
	}, nil
}

// ApplyManualTransaction handles the add/subtract actions.
func (a *Account) ApplyManualTransaction(c Category, dir Direction, amount Amount, reason string, now time.Time) (Transaction, error) {
	if !c.Valid() {
		return Transaction{}, fmt.Errorf("%w: %q", ErrInvalidCategory, c)
	}
	if !amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: must be positive, got %s", ErrInvalidAmount, amount.Value)
	}

	tx := Transaction{
		AccountID: a.ID,
		Category:  c,
		Date:      now,
		Amount:    amount,
		Direction: dir,
		Reason:    reason,
		CreatedAt: now,
	}

	switch dir {
	case Credit:
		tx.Kind = TxDeposit
		a.credit(c, amount)
	case Debit:
		available := a.Balance(c)
		if amount.GreaterThan(available) {
			return Transaction{}, &InsufficientBalanceError{
				AccountID: a.ID,
				Category:  c,
				Available: available,
				Requested: amount,
			}
		}
		tx.Kind = TxWithdrawal
		a.debit(c, amount)
	default:
		return Transaction{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidTransaction, dir)
	}
	return tx, nil
}

// SetBalance overwrites a balance and returns the adjustment that records the
// difference. Returns nil when the balance doesn't change.
func (a *Account) SetBalance(c Category, value Amount, now time.Time) (*Transaction, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, c)
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("%w: balance cannot be negative, got %s", ErrInvalidAmount, value.Value)
	}

	diff := value.Sub(a.Balance(c))
	if diff.IsZero() {
		return nil, nil
	}

	dir := Credit
	if diff.IsNegative() {
		dir = Debit
	}
	if a.Balances == nil {
		a.Balances = make(map[Category]decimal.Decimal)
	}
	a.Balances[c] = value.Value

	return &Transaction{
		AccountID: a.ID,
		Category:  c,
		Date:      now,
		Amount:    diff.Abs(),
		Direction: dir,
		Kind:      TxAdjustment,
		Reason:    fmt.Sprintf("Balance set to %s", value.Display()),
		CreatedAt: now,
	}, nil
}

// SetRateOverride stores (or clears, when rate is nil) the annual rate for c.
func (a *Account) SetRateOverride(c Category, rate *decimal.Decimal) error {
	if c != CategorySavings && c != CategoryInvestments {
		return fmt.Errorf("%w: %q has no editable rate", ErrInvalidRate, c)
	}
	if rate == nil {
		delete(a.RateOverrides, c)
		return nil
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s is outside [0, 1]", ErrInvalidRate, rate.String())
	}
	if a.RateOverrides == nil {
		a.RateOverrides = make(map[Category]decimal.Decimal)
	}
	a.RateOverrides[c] = *rate
	return nil
}

func (a *Account) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidAccount)
	}
	a.Name = name
	return nil
}

// AdvanceAccrual moves the accrual clock to now. It never moves it backwards.
func (a *Account) AdvanceAccrual(now time.Time) bool {
	if !now.After(a.LastAccrualAt) {
		return false
	}
	a.LastAccrualAt = now
	return true
}

func (a *Account) credit(c Category, amount Amount) {
	if a.Balances == nil {
		a.Balances = make(map[Category]decimal.Decimal)
	}
	a.Balances[c] = a.Balances[c].Add(amount.Value)
}

func (a *Account) debit(c Category, amount Amount) {
	a.Balances[c] = a.Balances[c].Sub(amount.Value)
}
