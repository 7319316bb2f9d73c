// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/savings-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	state
}

// state is the data behind Memory. Its methods assume the caller holds the lock.
type state struct {
	accounts     map[generic.AccountID]generic.Account
	order        []generic.AccountID
	transactions []generic.Transaction
	idempotency  map[string]bool
}

var _ generic.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

func newState() state {
	return state{
		accounts:    make(map[generic.AccountID]generic.Account),
		idempotency: make(map[string]bool),
	}
}

func (m *Memory) GetAccount(_ context.Context, id generic.AccountID) (generic.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccount(id)
}

func (m *Memory) ListAccounts(_ context.Context) ([]generic.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAccounts(), nil
}

func (m *Memory) CreateAccount(_ context.Context, account generic.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAccount(account)
}

func (m *Memory) UpdateAccount(_ context.Context, id generic.AccountID, mutate generic.AccountMutator) (generic.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A failed mutator must leave no trace, same as in a WithTx.
	snap := m.snapshot()
	acc, err := m.updateAccount(id, mutate)
	if err != nil {
		m.state = snap
	}
	return acc, err
}

func (m *Memory) DeleteAccount(_ context.Context, id generic.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAccount(id)
}

// AppendTransaction adds a single transaction. Append-only.
func (m *Memory) AppendTransaction(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendTransaction(tx)
}

func (m *Memory) QueryTransactions(_ context.Context, filter generic.TransactionFilter) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryTransactions(filter), nil
}

func (m *Memory) TransactionExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The store is locked for the whole of fn, so fn must only use the view it is given.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	view := &txView{state: &m.state}

	if err := fn(view); err != nil {
		m.state = snap
		return err
	}
	if err := ctx.Err(); err != nil {
		m.state = snap
		return err
	}
	return nil
}

// Reset drops all accounts and transactions.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newState()
	return nil
}

func (m *Memory) snapshot() state {
	s := newState()
	for id, acc := range m.accounts {
		s.accounts[id] = acc.Clone()
	}
	s.order = append([]generic.AccountID(nil), m.order...)
	s.transactions = append([]generic.Transaction(nil), m.transactions...)
	for k, v := range m.idempotency {
		s.idempotency[k] = v
	}
	return s
}

// =============================================================================
// STATE OPERATIONS - Shared by Memory and the transactional view
// =============================================================================

func (s *state) getAccount(id generic.AccountID) (generic.Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return generic.Account{}, fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}
	return acc.Clone(), nil
}

func (s *state) listAccounts() []generic.Account {
	out := make([]generic.Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.accounts[id].Clone())
	}
	return out
}

func (s *state) createAccount(account generic.Account) error {
	if account.ID == "" {
		return fmt.Errorf("%w: missing id", generic.ErrInvalidAccount)
	}
	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("%w: %s already exists", generic.ErrInvalidAccount, account.ID)
	}
	account.Version = 1
	s.accounts[account.ID] = account.Clone()
	s.order = append(s.order, account.ID)
	return nil
}

func (s *state) updateAccount(id generic.AccountID, mutate generic.AccountMutator) (generic.Account, error) {
	current, ok := s.accounts[id]
	if !ok {
		return generic.Account{}, fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}

	working := current.Clone()
	if err := mutate(&working); err != nil {
		return generic.Account{}, err
	}
	working.ID = current.ID
	working.Version = current.Version + 1
	s.accounts[id] = working
	return working.Clone(), nil
}

func (s *state) deleteAccount(id generic.AccountID) error {
	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}
	delete(s.accounts, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	kept := s.transactions[:0]
	for _, tx := range s.transactions {
		if tx.AccountID != id {
			kept = append(kept, tx)
		}
	}
	s.transactions = kept
	return nil
}

func (s *state) appendTransaction(tx generic.Transaction) error {
	if _, ok := s.accounts[tx.AccountID]; !ok {
		return fmt.Errorf("%w: %s", generic.ErrAccountNotFound, tx.AccountID)
	}
	if tx.IdempotencyKey != "" {
		if s.idempotency[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		s.idempotency[tx.IdempotencyKey] = true
	}
	s.transactions = append(s.transactions, tx)
	return nil
}

func (s *state) queryTransactions(filter generic.TransactionFilter) []generic.Transaction {
	var result []generic.Transaction
	for _, tx := range s.transactions {
		if filter.Matches(tx) {
			result = append(result, tx)
		}
	}
	generic.SortByDate(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		// Limit keeps the most recent entries.
		result = result[len(result)-filter.Limit:]
	}
	return result
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// txView writes straight into the locked state; Memory.WithTx restores the
// snapshot if anything fails.
type txView struct {
	state *state
}

func (tv *txView) GetAccount(_ context.Context, id generic.AccountID) (generic.Account, error) {
	return tv.state.getAccount(id)
}

func (tv *txView) ListAccounts(_ context.Context) ([]generic.Account, error) {
	return tv.state.listAccounts(), nil
}

func (tv *txView) CreateAccount(_ context.Context, account generic.Account) error {
	return tv.state.createAccount(account)
}

func (tv *txView) UpdateAccount(_ context.Context, id generic.AccountID, mutate generic.AccountMutator) (generic.Account, error) {
	return tv.state.updateAccount(id, mutate)
}

func (tv *txView) DeleteAccount(_ context.Context, id generic.AccountID) error {
	return tv.state.deleteAccount(id)
}

func (tv *txView) AppendTransaction(_ context.Context, tx generic.Transaction) error {
	return tv.state.appendTransaction(tx)
}

func (tv *txView) QueryTransactions(_ context.Context, filter generic.TransactionFilter) ([]generic.Transaction, error) {
	return tv.state.queryTransactions(filter), nil
}

func (tv *txView) TransactionExists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.state.idempotency[idempotencyKey], nil
}

// WithTx on a view joins the enclosing transaction.
func (tv *txView) WithTx(_ context.Context, fn func(generic.Store) error) error {
	return fn(tv)
}
