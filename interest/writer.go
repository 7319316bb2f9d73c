package interest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/savings-engine/generic"
)

// DefaultWriteTimeout bounds one account's unit of work.
const DefaultWriteTimeout = 5 * time.Second

// =============================================================================
// LEDGER WRITER - The only code that changes account balances
// =============================================================================

// LedgerWriter turns decisions into a balance change plus the transaction that
// explains it, both inside one store transaction. Every write for an account
// holds that account's lock, so a read-compute-write sequence is never
// interleaved with another one for the same account.
type LedgerWriter struct {
	store        generic.Store
	locks        *keyedMutex
	log          logrus.FieldLogger
	writeTimeout time.Duration
}

type WriterOption func(*LedgerWriter)

// WithWriteTimeout overrides DefaultWriteTimeout. Zero disables the bound.
func WithWriteTimeout(d time.Duration) WriterOption {
	return func(w *LedgerWriter) { w.writeTimeout = d }
}

func WithWriterLogger(log logrus.FieldLogger) WriterOption {
	return func(w *LedgerWriter) { w.log = log }
}

func NewLedgerWriter(store generic.Store, opts ...WriterOption) *LedgerWriter {
	w := &LedgerWriter{
		store:        store,
		locks:        newKeyedMutex(),
		log:          logrus.StandardLogger(),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ApplyAccrualEvent credits ev.Amount to the event's category and appends the
// matching interest transaction dated now. Both or neither.
func (w *LedgerWriter) ApplyAccrualEvent(ctx context.Context, ev AccrualEvent, now time.Time) (generic.Account, generic.Transaction, error) {
	var (
		acc generic.Account
		tx  generic.Transaction
	)
	err := w.withAccountTx(ctx, ev.AccountID, func(ctx context.Context, s generic.Store) error {
		var err error
		acc, tx, err = applyAccrual(ctx, s, ev, now)
		return err
	})
	if err != nil {
		return generic.Account{}, generic.Transaction{}, err
	}
	return acc, tx, nil
}

// Deposit adds amount to a category.
func (w *LedgerWriter) Deposit(ctx context.Context, id generic.AccountID, c generic.Category, amount generic.Amount, reason string, now time.Time) (generic.Account, generic.Transaction, error) {
	if reason == "" {
		reason = "Added funds"
	}
	return w.manual(ctx, id, c, generic.Credit, amount, reason, now)
}

// Withdraw subtracts amount from a category. Overdrafts are rejected.
func (w *LedgerWriter) Withdraw(ctx context.Context, id generic.AccountID, c generic.Category, amount generic.Amount, reason string, now time.Time) (generic.Account, generic.Transaction, error) {
	if reason == "" {
		reason = "Withdrew funds"
	}
	return w.manual(ctx, id, c, generic.Debit, amount, reason, now)
}

func (w *LedgerWriter) manual(ctx context.Context, id generic.AccountID, c generic.Category, dir generic.Direction, amount generic.Amount, reason string, now time.Time) (generic.Account, generic.Transaction, error) {
	var (
		acc generic.Account
		tx  generic.Transaction
	)
	err := w.withAccountTx(ctx, id, func(ctx context.Context, s generic.Store) error {
		var err error
		acc, err = s.UpdateAccount(ctx, id, func(a *generic.Account) error {
			tx, err = a.ApplyManualTransaction(c, dir, amount, reason, now)
			return err
		})
		if err != nil {
			return err
		}
		tx, err = generic.NewLedger(s).Append(ctx, tx)
		return err
	})
	if err != nil {
		return generic.Account{}, generic.Transaction{}, err
	}

	w.log.WithFields(logrus.Fields{
		"account_id": id,
		"category":   c,
		"direction":  dir,
		"amount":     amount.String(),
	}).Info("manual transaction recorded")
	return acc, tx, nil
}

// EditBalance overwrites a balance and records an adjustment for the
// difference. The returned transaction is nil when nothing changed.
func (w *LedgerWriter) EditBalance(ctx context.Context, id generic.AccountID, c generic.Category, value generic.Amount, now time.Time) (generic.Account, *generic.Transaction, error) {
	var (
		acc generic.Account
		adj *generic.Transaction
	)
	err := w.withAccountTx(ctx, id, func(ctx context.Context, s generic.Store) error {
		var err error
		acc, err = s.UpdateAccount(ctx, id, func(a *generic.Account) error {
			adj, err = a.SetBalance(c, value, now)
			return err
		})
		if err != nil || adj == nil {
			return err
		}
		recorded, err := generic.NewLedger(s).Append(ctx, *adj)
		if err != nil {
			return err
		}
		adj = &recorded
		return nil
	})
	if err != nil {
		return generic.Account{}, nil, err
	}
	return acc, adj, nil
}

// SetRate stores or, with a nil rate, clears the account's override for c.
func (w *LedgerWriter) SetRate(ctx context.Context, id generic.AccountID, c generic.Category, rate *decimal.Decimal) (generic.Account, error) {
	return w.update(ctx, id, func(a *generic.Account) error {
		return a.SetRateOverride(c, rate)
	})
}

func (w *LedgerWriter) Rename(ctx context.Context, id generic.AccountID, name string) (generic.Account, error) {
	return w.update(ctx, id, func(a *generic.Account) error {
		return a.Rename(name)
	})
}

// CreateAccount opens an account with zero balances whose accrual clock starts now.
func (w *LedgerWriter) CreateAccount(ctx context.Context, name string, now time.Time) (generic.Account, error) {
	acc := generic.NewAccount(generic.NewAccountID(), "", now)
	if err := acc.Rename(name); err != nil {
		return generic.Account{}, err
	}
	if err := w.store.CreateAccount(ctx, acc); err != nil {
		return generic.Account{}, err
	}
	return w.store.GetAccount(ctx, acc.ID)
}

func (w *LedgerWriter) DeleteAccount(ctx context.Context, id generic.AccountID) error {
	return w.withAccountTx(ctx, id, func(ctx context.Context, s generic.Store) error {
		return s.DeleteAccount(ctx, id)
	})
}

func (w *LedgerWriter) update(ctx context.Context, id generic.AccountID, mutate generic.AccountMutator) (generic.Account, error) {
	var acc generic.Account
	err := w.withAccountTx(ctx, id, func(ctx context.Context, s generic.Store) error {
		var err error
		acc, err = s.UpdateAccount(ctx, id, mutate)
		return err
	})
	return acc, err
}

// withAccountTx is the choke point: per-account lock, write timeout, one
// store transaction.
func (w *LedgerWriter) withAccountTx(ctx context.Context, id generic.AccountID, fn func(context.Context, generic.Store) error) error {
	unlock := w.locks.Lock(id)
	defer unlock()

	if w.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.writeTimeout)
		defer cancel()
	}

	err := w.store.WithTx(ctx, func(s generic.Store) error {
		return fn(ctx, s)
	})
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: write to account %s timed out: %w", generic.ErrStoreUnavailable, id, err)
	}
	return err
}

// applyAccrual posts one event through s. Callers own the transaction.
func applyAccrual(ctx context.Context, s generic.Store, ev AccrualEvent, now time.Time) (generic.Account, generic.Transaction, error) {
	var tx generic.Transaction
	acc, err := s.UpdateAccount(ctx, ev.AccountID, func(a *generic.Account) error {
		var err error
		tx, err = a.ApplyAccrual(ev.Category, generic.NewAmountFromDecimal(ev.Amount), now)
		return err
	})
	if err != nil {
		return generic.Account{}, generic.Transaction{}, err
	}

	tx.IdempotencyKey = accrualKey(ev.AccountID, ev.Category, now)
	tx, err = generic.NewLedger(s).Append(ctx, tx)
	if err != nil {
		return generic.Account{}, generic.Transaction{}, err
	}
	return acc, tx, nil
}

// accrualKey makes a second posting for the same account, category and
// instant collide on the ledger's idempotency check.
func accrualKey(id generic.AccountID, c generic.Category, now time.Time) string {
	return fmt.Sprintf("accrual:%s:%s:%s", id, c, now.UTC().Format(time.RFC3339Nano))
}

// =============================================================================
// KEYED MUTEX
// =============================================================================

type keyedMutex struct {
	mu    sync.Mutex
	locks map[generic.AccountID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[generic.AccountID]*refMutex)}
}

// Lock blocks until id is free and returns the matching unlock.
func (k *keyedMutex) Lock(id generic.AccountID) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
