/*
ledger.go - Append-only transaction log

PURPOSE:
  The Ledger is the audit trail of every balance change: deposits,
  withdrawals, balance edits and posted interest. The Account aggregate
  carries the live balance; the ledger explains how it got there.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. POSITIVE: Amount > 0, sign carried by Direction
  3. TAGGED: Kind says why the entry exists; IsInterest() reads the tag
  4. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  Mistakes are never edited away. A balance edit records an adjustment
  for the difference, so replaying the ledger always reproduces the
  account's balances.

EXAMPLE FLOW:
  1. Parent adds $20 to savings:   deposit    credit 20.00
  2. Child spends $5 of it:        withdrawal debit   5.00
  3. 30 days pass:                 interest   credit  0.06

  Savings ledger: [+20.00, -5.00, +0.06] = 15.06

SEE ALSO:
  - store.go: Low-level persistence interface
  - interest/writer.go: Writes ledger entries alongside balance changes
*/
package generic

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

type Ledger interface {
	// Append validates tx, assigns an ID and date if absent, and persists it.
	// This is the ONLY write operation.
	Append(ctx context.Context, tx Transaction) (Transaction, error)

	// Query returns matching transactions sorted by date, oldest first.
	Query(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// Balance replays the ledger for one account and category.
	Balance(ctx context.Context, accountID AccountID, category Category) (Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using TransactionStore
// =============================================================================

type DefaultLedger struct {
	Store TransactionStore
	Now   func() time.Time
}

func NewLedger(store TransactionStore) *DefaultLedger {
	return &DefaultLedger{Store: store, Now: time.Now}
}

// NewTransactionID returns a fresh random transaction identifier.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// NewAccountID returns a fresh random account identifier.
func NewAccountID() AccountID {
	return AccountID(uuid.NewString())
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	now := l.now()
	if tx.ID == "" {
		tx.ID = NewTransactionID()
	}
	if tx.Date.IsZero() {
		tx.Date = now
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}

	if tx.IdempotencyKey != "" {
		exists, err := l.Store.TransactionExists(ctx, tx.IdempotencyKey)
		if err != nil {
			return Transaction{}, err
		}
		if exists {
			return Transaction{}, ErrDuplicateIdempotencyKey
		}
	}

	if err := l.Store.AppendTransaction(ctx, tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func (l *DefaultLedger) Query(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	txs, err := l.Store.QueryTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortByDate(txs)
	return txs, nil
}

func (l *DefaultLedger) Balance(ctx context.Context, accountID AccountID, category Category) (Amount, error) {
	txs, err := l.Store.QueryTransactions(ctx, TransactionFilter{AccountID: &accountID, Category: &category})
	if err != nil {
		return Amount{}, err
	}

	balance := ZeroAmount()
	for _, tx := range txs {
		balance = balance.Add(tx.Signed())
	}
	return balance, nil
}

func (l *DefaultLedger) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}
