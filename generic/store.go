/*
store.go - Persistence ports for accounts and transactions

PURPOSE:
  Defines the interface between the engine and the database. The engine
  never sees SQL; it sees an AccountStore (read/modify accounts) and a
  TransactionStore (append/query the ledger), joined by WithTx so both can
  be written atomically.

KEY INTERFACES:
  AccountStore:     Account CRUD plus atomic read-modify-write
  TransactionStore: Append-only transaction persistence
  Store:            Both, plus WithTx for all-or-nothing units of work

APPEND-ONLY CONTRACT:
  TransactionStore has no Update or Delete. Corrections are new offsetting
  transactions.

ATOMICITY:
  WithTx(fn) runs fn against a transactional view of the store. If fn
  returns an error nothing it wrote survives: no balance change without its
  transaction, no transaction without its balance change.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite, schema managed by golang-migrate
  - generic/store/memory.go: In-memory with snapshot rollback (tests, demos)

SEE ALSO:
  - ledger.go: Higher-level ledger using TransactionStore
  - interest/writer.go: The WithTx caller
*/
package generic

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// ACCOUNT STORE
// =============================================================================

// AccountMutator edits an account in place. Returning an error aborts the update.
type AccountMutator func(*Account) error

type AccountStore interface {
	// GetAccount returns ErrAccountNotFound if the id is unknown.
	GetAccount(ctx context.Context, id AccountID) (Account, error)

	// ListAccounts returns all accounts ordered by creation time.
	ListAccounts(ctx context.Context) ([]Account, error)

	CreateAccount(ctx context.Context, account Account) error

	// UpdateAccount is an atomic read-modify-write. The mutator sees the
	// current state; the store persists the result and bumps Version, or
	// returns ErrConcurrentModification if another writer got there first.
	UpdateAccount(ctx context.Context, id AccountID, mutate AccountMutator) (Account, error)

	// DeleteAccount removes the account and its transactions.
	DeleteAccount(ctx context.Context, id AccountID) error
}

// =============================================================================
// TRANSACTION STORE - Append-only
// =============================================================================

// TransactionFilter selects transactions. Nil fields match everything.
type TransactionFilter struct {
	AccountID *AccountID
	Category  *Category
	Kinds     []TransactionKind
	From      *time.Time // inclusive
	To        *time.Time // inclusive
	Limit     int        // 0 = no limit
}

// Matches applies the filter in memory; stores without a query language use it.
func (f TransactionFilter) Matches(tx Transaction) bool {
	if f.AccountID != nil && tx.AccountID != *f.AccountID {
		return false
	}
	if f.Category != nil && tx.Category != *f.Category {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if tx.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.Date.After(*f.To) {
		return false
	}
	return true
}

type TransactionStore interface {
	// AppendTransaction persists a fully-formed transaction.
	// Returns ErrDuplicateIdempotencyKey if the key exists.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// QueryTransactions returns matching transactions. Order is not guaranteed;
	// callers that care use SortByDate.
	QueryTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// TransactionExists checks if an idempotency key was already used.
	TransactionExists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// STORE - Both, with transactions
// =============================================================================

type Store interface {
	AccountStore
	TransactionStore

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the passed Store is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// SortByDate orders transactions chronologically, oldest first. Ties keep
// creation order.
func SortByDate(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Date.Equal(txs[j].Date) {
			return txs[i].CreatedAt.Before(txs[j].CreatedAt)
		}
		return txs[i].Date.Before(txs[j].Date)
	})
}
