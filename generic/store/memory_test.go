package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/generic/store"
)

var t0 = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func deposit(id generic.AccountID, v string) generic.Transaction {
	return generic.Transaction{
		ID:        generic.NewTransactionID(),
		AccountID: id,
		Category:  generic.CategoryCash,
		Date:      t0,
		Amount:    generic.NewAmountFromDecimal(generic.MustParseDecimal(v)),
		Direction: generic.Credit,
		Kind:      generic.TxDeposit,
	}
}

func TestMemory_UpdateBumpsVersion(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreateAccount(ctx, generic.NewAccount("a", "Ada", t0)))

	acc, err := m.UpdateAccount(ctx, "a", func(a *generic.Account) error {
		return a.Rename("Ada L.")
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc.Version)
	assert.Equal(t, "Ada L.", acc.Name)
}

func TestMemory_FailedMutatorLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreateAccount(ctx, generic.NewAccount("a", "Ada", t0)))

	_, err := m.UpdateAccount(ctx, "a", func(a *generic.Account) error {
		a.Balances[generic.CategoryCash] = generic.MustParseDecimal("100")
		return errors.New("nope")
	})
	require.Error(t, err)

	acc, err := m.GetAccount(ctx, "a")
	require.NoError(t, err)
	assert.True(t, acc.Balance(generic.CategoryCash).IsZero())
	assert.Equal(t, int64(1), acc.Version)
}

func TestMemory_WithTxRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreateAccount(ctx, generic.NewAccount("a", "Ada", t0)))

	err := m.WithTx(ctx, func(s generic.Store) error {
		_, err := s.UpdateAccount(ctx, "a", func(a *generic.Account) error {
			a.Balances[generic.CategoryCash] = generic.MustParseDecimal("5")
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, s.AppendTransaction(ctx, deposit("a", "5")))
		return errors.New("abort")
	})
	require.Error(t, err)

	acc, err := m.GetAccount(ctx, "a")
	require.NoError(t, err)
	assert.True(t, acc.Balance(generic.CategoryCash).IsZero())

	txs, err := m.QueryTransactions(ctx, generic.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestMemory_AppendRequiresAccount(t *testing.T) {
	m := store.NewMemory()
	err := m.AppendTransaction(context.Background(), deposit("ghost", "1"))
	assert.ErrorIs(t, err, generic.ErrAccountNotFound)
}

func TestMemory_QueryFiltersAndLimits(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreateAccount(ctx, generic.NewAccount("a", "Ada", t0)))
	require.NoError(t, m.CreateAccount(ctx, generic.NewAccount("b", "Bo", t0)))

	for i, v := range []string{"1", "2", "3"} {
		tx := deposit("a", v)
		tx.Date = t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, m.AppendTransaction(ctx, tx))
	}
	require.NoError(t, m.AppendTransaction(ctx, deposit("b", "9")))

	id := generic.AccountID("a")
	txs, err := m.QueryTransactions(ctx, generic.TransactionFilter{AccountID: &id, Limit: 2})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "2.00", txs[0].Amount.String())
	assert.Equal(t, "3.00", txs[1].Amount.String())

	from := t0.Add(90 * time.Minute)
	txs, err = m.QueryTransactions(ctx, generic.TransactionFilter{AccountID: &id, From: &from})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestMemory_ListKeepsCreationOrder(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	for _, id := range []generic.AccountID{"c", "a", "b"} {
		require.NoError(t, m.CreateAccount(ctx, generic.NewAccount(id, string(id), t0)))
	}
	require.NoError(t, m.DeleteAccount(ctx, "a"))

	accs, err := m.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accs, 2)
	assert.Equal(t, generic.AccountID("c"), accs[0].ID)
	assert.Equal(t, generic.AccountID("b"), accs[1].ID)
}
