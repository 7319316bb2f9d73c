/*
Package generic provides the core account and ledger model of the savings engine.

PURPOSE:
  This package contains the types every other package speaks: money amounts,
  balance categories, transactions, and the Account aggregate. It knows
  nothing about interest rates or schedules; the interest package builds the
  accrual engine on top of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A decimal money value with a currency label (always USD here)
  - Category: Which of the three balances a value belongs to
  - Transaction: An immutable ledger entry recording a balance change
  - Direction/Kind: Credit vs debit, and WHY the entry exists

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only offset by new ones
  2. Precision: Uses decimal.Decimal, rounded to cents only for display
  3. Positive magnitudes: Transaction.Amount is always > 0, sign lives in Direction
  4. Explicit tagging: Interest entries carry Kind=interest, never guessed from size

USAGE:
  tx := generic.Transaction{
      AccountID: "acc-123",
      Category:  generic.CategorySavings,
      Amount:    generic.NewAmount(3.71),
      Direction: generic.Credit,
      Kind:      generic.TxInterest,
  }

SEE ALSO:
  - account.go: Account aggregate and its mutation methods
  - ledger.go: Transaction persistence interface
  - store.go: Account and transaction store ports
*/
package generic

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Money value with currency
// =============================================================================

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const CurrencyUSD Currency = "USD"

// CentPlaces is the minor-unit precision used for posting and display.
const CentPlaces = 2

func NewAmount(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Currency: CurrencyUSD}
}

func NewAmountFromDecimal(value decimal.Decimal) Amount {
	return Amount{Value: value, Currency: CurrencyUSD}
}

func ZeroAmount() Amount { return Amount{Value: decimal.Zero, Currency: CurrencyUSD} }

// ParseAmount parses a decimal string such as "12.50".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return NewAmountFromDecimal(d), nil
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("generic: invalid decimal literal %q", s))
	}
	return d
}

func (a Amount) Add(b Amount) Amount        { return Amount{Value: a.Value.Add(b.Value), Currency: a.currency()} }
func (a Amount) Sub(b Amount) Amount        { return Amount{Value: a.Value.Sub(b.Value), Currency: a.currency()} }
func (a Amount) Neg() Amount                { return Amount{Value: a.Value.Neg(), Currency: a.currency()} }
func (a Amount) Abs() Amount                { return Amount{Value: a.Value.Abs(), Currency: a.currency()} }
func (a Amount) IsNegative() bool           { return a.Value.IsNegative() }
func (a Amount) IsZero() bool               { return a.Value.IsZero() }
func (a Amount) IsPositive() bool           { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool  { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool     { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool        { return a.Value.Equal(b.Value) }
func (a Amount) Round() Amount              { return Amount{Value: a.Value.Round(CentPlaces), Currency: a.currency()} }

func (a Amount) currency() Currency {
	if a.Currency == "" {
		return CurrencyUSD
	}
	return a.Currency
}

// String renders the amount with exactly two fraction digits ("12.50").
func (a Amount) String() string { return a.Value.StringFixed(CentPlaces) }

// Display renders the amount the way the account cards show it: "$1,234.56".
func (a Amount) Display() string {
	s := a.Value.Abs().StringFixed(CentPlaces)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if a.Value.Round(CentPlaces).IsNegative() {
		sign = "-"
	}
	return sign + "$" + b.String() + "." + frac
}

// =============================================================================
// CATEGORY - The three balances every account carries
// =============================================================================

type Category string

const (
	CategoryCash        Category = "cash"
	CategorySavings     Category = "savings"
	CategoryInvestments Category = "investments"
)

// Categories returns all categories in display order.
func Categories() []Category {
	return []Category{CategoryCash, CategorySavings, CategoryInvestments}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryCash, CategorySavings, CategoryInvestments:
		return true
	}
	return false
}

// ParseCategory accepts "savings" as well as the "savings_balance" column form.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_balance"))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type TransactionID string

// =============================================================================
// TRANSACTION - Immutable record of one balance change
// =============================================================================

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type TransactionKind string

const (
	TxDeposit    TransactionKind = "deposit"    // Manual "add" action
	TxWithdrawal TransactionKind = "withdrawal" // Manual "subtract" action
	TxInterest   TransactionKind = "interest"   // Posted by the accrual engine
	TxAdjustment TransactionKind = "adjustment" // Direct balance edit, records the difference
)

type Transaction struct {
	ID             TransactionID
	AccountID      AccountID
	Category       Category
	Date           time.Time
	Amount         Amount // always strictly positive
	Direction      Direction
	Kind           TransactionKind
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// IsInterest reports whether the engine posted this entry as accrued interest.
func (t Transaction) IsInterest() bool { return t.Kind == TxInterest }

// Signed returns the amount with the direction applied (debits negative).
func (t Transaction) Signed() Amount {
	if t.Direction == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Validate checks the structural invariants every stored transaction must hold.
func (t Transaction) Validate() error {
	if t.AccountID == "" {
		return fmt.Errorf("%w: missing account id", ErrInvalidTransaction)
	}
	if !t.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, t.Category)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, t.Amount.Value)
	}
	if t.Direction != Credit && t.Direction != Debit {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidTransaction, t.Direction)
	}
	switch t.Kind {
	case TxDeposit, TxWithdrawal, TxInterest, TxAdjustment:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTransaction, t.Kind)
	}
	if t.Kind == TxInterest && (t.Direction != Credit || t.Category == CategoryCash) {
		return fmt.Errorf("%w: interest must be a non-cash credit", ErrInvalidTransaction)
	}
	return nil
}
