/*
Package sqlite provides a SQLite-backed implementation of generic.Store.

PURPOSE:
  Persists accounts and the transaction ledger. The accrual engine and the
  HTTP API only see generic.Store; this package is the only place that knows
  about SQL.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the transactions table
  - Rows leave the table only when their account is deleted
  - Corrections are adjustment transactions

KEY TABLES:
  accounts:     One row per account: three balances, optional rate
                overrides, last accrual instant, version
  transactions: Immutable ledger of every balance change

MONEY AND TIME:
  Decimals are stored as TEXT (decimal.String) so nothing passes through
  float64. Instants are stored as fixed-width UTC text so lexical order is
  chronological order.

CONCURRENCY:
  Writers are serialized: a single pooled connection (which SQLite requires
  anyway, and which keeps ":memory:" databases shared by every caller) and
  s.mu held across WithTx. Within one process a read-modify-write never
  interleaves with another.

  Accounts also carry a version. UpdateAccount writes with
  "WHERE id = ? AND version = ?" and reports ErrConcurrentModification if
  the row changed between its read and its write, which only happens when
  something outside this Store (another process, a manual edit) touches
  the file.

MIGRATION:
  Schema lives in migrations/*.sql, embedded and applied by golang-migrate
  on New().

USAGE:
  store, err := sqlite.New("./data/savings.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/savings-engine/generic"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is RFC 3339 with a fixed nanosecond width.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements generic.Store using SQLite.
type Store struct {
	db       *sql.DB
	migrator *migrate.Migrate
	mu       sync.RWMutex
}

var _ generic.Store = (*Store)(nil)

// New opens (creating if needed) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	driver, err := migratesqlite3.WithInstance(s.db, &migratesqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite3 driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	// The migrator shares s.db; closing it would close the store, so it is
	// kept open for SchemaVersion and released with the database.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	s.migrator = m
	return nil
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion() (version uint, dirty bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.migrator.Version()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

const accountColumns = `id, name, cash_balance, savings_balance, investments_balance,
	savings_rate, investments_rate, last_accrual_at, version, created_at`

func (s *Store) GetAccount(ctx context.Context, id generic.AccountID) (generic.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

func (s *Store) ListAccounts(ctx context.Context) ([]generic.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccounts(ctx, s.db)
}

func (s *Store) CreateAccount(ctx context.Context, account generic.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createAccount(ctx, s.db, account)
}

// UpdateAccount runs the read-modify-write in its own transaction.
func (s *Store) UpdateAccount(ctx context.Context, id generic.AccountID, mutate generic.AccountMutator) (generic.Account, error) {
	var out generic.Account
	err := s.WithTx(ctx, func(tx generic.Store) error {
		var err error
		out, err = tx.UpdateAccount(ctx, id, mutate)
		return err
	})
	return out, err
}

func (s *Store) DeleteAccount(ctx context.Context, id generic.AccountID) error {
	return s.WithTx(ctx, func(tx generic.Store) error {
		return tx.DeleteAccount(ctx, id)
	})
}

func getAccount(ctx context.Context, q querier, id generic.AccountID) (generic.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Account{}, fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}
	return acc, err
}

func listAccounts(ctx context.Context, q querier) ([]generic.Account, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list accounts: %w", err))
	}
	defer rows.Close()

	var accounts []generic.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func createAccount(ctx context.Context, q querier, acc generic.Account) error {
	if acc.ID == "" {
		return fmt.Errorf("%w: missing id", generic.ErrInvalidAccount)
	}
	savingsRate, investmentsRate := rateColumns(acc)
	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		acc.ID,
		acc.Name,
		acc.Balances[generic.CategoryCash].String(),
		acc.Balances[generic.CategorySavings].String(),
		acc.Balances[generic.CategoryInvestments].String(),
		savingsRate,
		investmentsRate,
		formatTime(acc.LastAccrualAt),
		formatTime(acc.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s already exists", generic.ErrInvalidAccount, acc.ID)
	}
	if err != nil {
		return classify(fmt.Errorf("failed to create account: %w", err))
	}
	return nil
}

func updateAccount(ctx context.Context, q querier, id generic.AccountID, mutate generic.AccountMutator) (generic.Account, error) {
	current, err := getAccount(ctx, q, id)
	if err != nil {
		return generic.Account{}, err
	}

	working := current.Clone()
	if err := mutate(&working); err != nil {
		return generic.Account{}, err
	}
	working.ID = current.ID

	savingsRate, investmentsRate := rateColumns(working)
	res, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET name = ?, cash_balance = ?, savings_balance = ?, investments_balance = ?,
		    savings_rate = ?, investments_rate = ?, last_accrual_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		working.Name,
		working.Balances[generic.CategoryCash].String(),
		working.Balances[generic.CategorySavings].String(),
		working.Balances[generic.CategoryInvestments].String(),
		savingsRate,
		investmentsRate,
		formatTime(working.LastAccrualAt),
		id,
		current.Version,
	)
	if err != nil {
		return generic.Account{}, classify(fmt.Errorf("failed to update account: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return generic.Account{}, classify(err)
	}
	if n == 0 {
		return generic.Account{}, fmt.Errorf("%w: account %s", generic.ErrConcurrentModification, id)
	}

	working.Version = current.Version + 1
	return working, nil
}

func deleteAccount(ctx context.Context, q querier, id generic.AccountID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ?`, id); err != nil {
		return classify(fmt.Errorf("failed to delete transactions: %w", err))
	}
	res, err := q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return classify(fmt.Errorf("failed to delete account: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (generic.Account, error) {
	var (
		acc                        generic.Account
		cash, savings, investments string
		savingsRate, investRate    sql.NullString
		lastAccrualAt, createdAt   string
	)
	err := row.Scan(&acc.ID, &acc.Name, &cash, &savings, &investments,
		&savingsRate, &investRate, &lastAccrualAt, &acc.Version, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return acc, err
		}
		return acc, classify(fmt.Errorf("failed to scan account: %w", err))
	}

	acc.Balances = make(map[generic.Category]decimal.Decimal, 3)
	acc.RateOverrides = make(map[generic.Category]decimal.Decimal)
	for c, v := range map[generic.Category]string{
		generic.CategoryCash:        cash,
		generic.CategorySavings:     savings,
		generic.CategoryInvestments: investments,
	} {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return acc, fmt.Errorf("account %s: corrupt %s balance %q: %w", acc.ID, c, v, err)
		}
		acc.Balances[c] = d
	}
	for c, v := range map[generic.Category]sql.NullString{
		generic.CategorySavings:     savingsRate,
		generic.CategoryInvestments: investRate,
	} {
		if !v.Valid {
			continue
		}
		d, err := decimal.NewFromString(v.String)
		if err != nil {
			return acc, fmt.Errorf("account %s: corrupt %s rate %q: %w", acc.ID, c, v.String, err)
		}
		acc.RateOverrides[c] = d
	}

	if acc.LastAccrualAt, err = parseTime(lastAccrualAt); err != nil {
		return acc, err
	}
	if acc.CreatedAt, err = parseTime(createdAt); err != nil {
		return acc, err
	}
	return acc, nil
}

func rateColumns(acc generic.Account) (savings, investments sql.NullString) {
	if r, ok := acc.RateOverride(generic.CategorySavings); ok {
		savings = sql.NullString{String: r.String(), Valid: true}
	}
	if r, ok := acc.RateOverride(generic.CategoryInvestments); ok {
		investments = sql.NullString{String: r.String(), Valid: true}
	}
	return savings, investments
}

// =============================================================================
// TRANSACTION STORE - Append-only
// =============================================================================

const transactionColumns = `id, account_id, category, date, amount, direction, kind,
	reason, idempotency_key, created_at`

func (s *Store) AppendTransaction(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func (s *Store) QueryTransactions(ctx context.Context, filter generic.TransactionFilter) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTransactions(ctx, s.db, filter)
}

func (s *Store) TransactionExists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionExists(ctx, s.db, idempotencyKey)
}

func appendTransaction(ctx context.Context, q querier, tx generic.Transaction) error {
	if tx.ID == "" {
		tx.ID = generic.NewTransactionID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.AccountID,
		tx.Category,
		formatTime(tx.Date),
		tx.Amount.Value.String(),
		tx.Direction,
		tx.Kind,
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %s", generic.ErrAccountNotFound, tx.AccountID)
		}
		return classify(fmt.Errorf("failed to append transaction: %w", err))
	}
	return nil
}

func queryTransactions(ctx context.Context, q querier, f generic.TransactionFilter) ([]generic.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != nil {
		where = append(where, "account_id = ?")
		args = append(args, *f.AccountID)
	}
	if f.Category != nil {
		where = append(where, "category = ?")
		args = append(args, *f.Category)
	}
	if len(f.Kinds) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.Kinds)), ",")
		where = append(where, "kind IN ("+marks+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if f.From != nil {
		where = append(where, "date >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where = append(where, "date <= ?")
		args = append(args, formatTime(*f.To))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// Newest first so LIMIT keeps the most recent rows; SortByDate restores
	// chronological order below.
	query += " ORDER BY date DESC, created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query transactions: %w", err))
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	generic.SortByDate(transactions)
	return transactions, nil
}

func transactionExists(ctx context.Context, q querier, key string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?", key,
	).Scan(&count)
	if err != nil {
		return false, classify(err)
	}
	return count > 0, nil
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		date           string
		amount         string
		reason         sql.NullString
		idempotencyKey sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.AccountID, &tx.Category, &date, &amount, &tx.Direction,
		&tx.Kind, &reason, &idempotencyKey, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return tx, fmt.Errorf("transaction %s: corrupt amount %q: %w", tx.ID, amount, err)
	}
	tx.Amount = generic.NewAmountFromDecimal(value)
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	if tx.Date, err = parseTime(date); err != nil {
		return tx, err
	}
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return tx, err
	}
	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("%w: commit: %w", generic.ErrTransactionFailed, err))
	}
	return nil
}

// txStore routes every call through one *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetAccount(ctx context.Context, id generic.AccountID) (generic.Account, error) {
	return getAccount(ctx, ts.tx, id)
}

func (ts *txStore) ListAccounts(ctx context.Context) ([]generic.Account, error) {
	return listAccounts(ctx, ts.tx)
}

func (ts *txStore) CreateAccount(ctx context.Context, account generic.Account) error {
	return createAccount(ctx, ts.tx, account)
}

func (ts *txStore) UpdateAccount(ctx context.Context, id generic.AccountID, mutate generic.AccountMutator) (generic.Account, error) {
	return updateAccount(ctx, ts.tx, id, mutate)
}

func (ts *txStore) DeleteAccount(ctx context.Context, id generic.AccountID) error {
	return deleteAccount(ctx, ts.tx, id)
}

func (ts *txStore) AppendTransaction(ctx context.Context, tx generic.Transaction) error {
	return appendTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) QueryTransactions(ctx context.Context, filter generic.TransactionFilter) ([]generic.Transaction, error) {
	return queryTransactions(ctx, ts.tx, filter)
}

func (ts *txStore) TransactionExists(ctx context.Context, idempotencyKey string) (bool, error) {
	return transactionExists(ctx, ts.tx, idempotencyKey)
}

// WithTx inside a transaction joins it.
func (ts *txStore) WithTx(_ context.Context, fn func(generic.Store) error) error {
	return fn(ts)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"transactions", "accounts"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return classify(err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// classify marks lock contention and I/O trouble as ErrStoreUnavailable so
// callers can tell retryable failures apart.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen:
			return fmt.Errorf("%w: %w", generic.ErrStoreUnavailable, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", generic.ErrStoreUnavailable, err)
	}
	return err
}
