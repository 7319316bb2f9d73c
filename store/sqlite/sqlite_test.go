package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/interest"
	"github.com/warp/savings-engine/store/sqlite"
)

var t0 = time.Date(2025, time.April, 2, 18, 30, 0, 123456789, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *sqlite.Store, id generic.AccountID, savings string, lastAccrual time.Time) {
	t.Helper()
	acc := generic.NewAccount(id, "Kid "+string(id), lastAccrual)
	acc.Balances[generic.CategorySavings] = generic.MustParseDecimal(savings)
	require.NoError(t, s.CreateAccount(context.Background(), acc))
}

func TestNew_AppliesMigrations(t *testing.T) {
	s := newStore(t)
	version, dirty, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestAccount_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	acc := generic.NewAccount("maya", "Maya", t0)
	acc.Balances[generic.CategoryCash] = generic.MustParseDecimal("12.34")
	acc.Balances[generic.CategoryInvestments] = generic.MustParseDecimal("1000.000000001")
	rate := generic.MustParseDecimal("0.0725")
	require.NoError(t, acc.SetRateOverride(generic.CategorySavings, &rate))
	require.NoError(t, s.CreateAccount(ctx, acc))

	got, err := s.GetAccount(ctx, "maya")
	require.NoError(t, err)
	assert.Equal(t, "Maya", got.Name)
	assert.Equal(t, "12.34", got.Balances[generic.CategoryCash].String())
	assert.Equal(t, "1000.000000001", got.Balances[generic.CategoryInvestments].String())
	assert.True(t, got.LastAccrualAt.Equal(t0), "nanoseconds survive: %s", got.LastAccrualAt)
	assert.Equal(t, int64(1), got.Version)

	override, ok := got.RateOverride(generic.CategorySavings)
	require.True(t, ok)
	assert.Equal(t, "0.0725", override.String())
	_, ok = got.RateOverride(generic.CategoryInvestments)
	assert.False(t, ok)
}

func TestGetAccount_NotFound(t *testing.T) {
	_, err := newStore(t).GetAccount(context.Background(), "ghost")
	assert.True(t, generic.IsNotFound(err))
}

func TestCreateAccount_DuplicateID(t *testing.T) {
	s := newStore(t)
	seed(t, s, "maya", "0", t0)
	err := s.CreateAccount(context.Background(), generic.NewAccount("maya", "Again", t0))
	assert.ErrorIs(t, err, generic.ErrInvalidAccount)
}

func TestUpdateAccount_BumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seed(t, s, "maya", "10", t0)

	acc, err := s.UpdateAccount(ctx, "maya", func(a *generic.Account) error {
		a.AdvanceAccrual(t0.Add(48 * time.Hour))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc.Version)

	got, err := s.GetAccount(ctx, "maya")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.LastAccrualAt.Equal(t0.Add(48*time.Hour)))
}

func TestWithTx_RollsBackBalanceAndTransaction(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seed(t, s, "maya", "10", t0)

	err := s.WithTx(ctx, func(tx generic.Store) error {
		_, err := tx.UpdateAccount(ctx, "maya", func(a *generic.Account) error {
			_, err := a.ApplyAccrual(generic.CategorySavings, generic.NewAmount(1), t0)
			return err
		})
		require.NoError(t, err)
		require.NoError(t, tx.AppendTransaction(ctx, generic.Transaction{
			AccountID: "maya",
			Category:  generic.CategorySavings,
			Date:      t0,
			Amount:    generic.NewAmount(1),
			Direction: generic.Credit,
			Kind:      generic.TxInterest,
		}))
		return errors.New("boom")
	})
	require.Error(t, err)

	acc, err := s.GetAccount(ctx, "maya")
	require.NoError(t, err)
	assert.Equal(t, "10", acc.Balances[generic.CategorySavings].String())

	txs, err := s.QueryTransactions(ctx, generic.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestAppendTransaction_DuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seed(t, s, "maya", "0", t0)

	tx := generic.Transaction{
		AccountID:      "maya",
		Category:       generic.CategoryCash,
		Date:           t0,
		Amount:         generic.NewAmount(5),
		Direction:      generic.Credit,
		Kind:           generic.TxDeposit,
		IdempotencyKey: "k1",
	}
	require.NoError(t, s.AppendTransaction(ctx, tx))
	assert.ErrorIs(t, s.AppendTransaction(ctx, tx), generic.ErrDuplicateIdempotencyKey)

	exists, err := s.TransactionExists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAppendTransaction_UnknownAccount(t *testing.T) {
	err := newStore(t).AppendTransaction(context.Background(), generic.Transaction{
		AccountID: "ghost",
		Category:  generic.CategoryCash,
		Date:      t0,
		Amount:    generic.NewAmount(5),
		Direction: generic.Credit,
		Kind:      generic.TxDeposit,
	})
	assert.ErrorIs(t, err, generic.ErrAccountNotFound)
}

func TestQueryTransactions_Filters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seed(t, s, "maya", "0", t0)
	seed(t, s, "leo", "0", t0)

	add := func(id generic.AccountID, c generic.Category, kind generic.TransactionKind, at time.Time) {
		require.NoError(t, s.AppendTransaction(ctx, generic.Transaction{
			AccountID: id, Category: c, Date: at, Amount: generic.NewAmount(1),
			Direction: generic.Credit, Kind: kind,
		}))
	}
	add("maya", generic.CategorySavings, generic.TxInterest, t0.Add(2*generic.Day))
	add("maya", generic.CategorySavings, generic.TxDeposit, t0)
	add("maya", generic.CategoryCash, generic.TxDeposit, t0.Add(generic.Day))
	add("leo", generic.CategorySavings, generic.TxInterest, t0)

	maya, savings := generic.AccountID("maya"), generic.CategorySavings
	txs, err := s.QueryTransactions(ctx, generic.TransactionFilter{AccountID: &maya, Category: &savings})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Date.Before(txs[1].Date), "oldest first")

	txs, err = s.QueryTransactions(ctx, generic.TransactionFilter{Kinds: []generic.TransactionKind{generic.TxInterest}})
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	from, to := t0.Add(12*time.Hour), t0.Add(36*time.Hour)
	txs, err = s.QueryTransactions(ctx, generic.TransactionFilter{AccountID: &maya, From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, generic.CategoryCash, txs[0].Category)

	txs, err = s.QueryTransactions(ctx, generic.TransactionFilter{AccountID: &maya, Limit: 1})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, generic.TxInterest, txs[0].Kind, "limit keeps the most recent")
}

func TestDeleteAccount_RemovesLedger(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seed(t, s, "maya", "0", t0)
	require.NoError(t, s.AppendTransaction(ctx, generic.Transaction{
		AccountID: "maya", Category: generic.CategoryCash, Date: t0,
		Amount: generic.NewAmount(1), Direction: generic.Credit, Kind: generic.TxDeposit,
	}))

	require.NoError(t, s.DeleteAccount(ctx, "maya"))
	assert.True(t, generic.IsNotFound(s.DeleteAccount(ctx, "maya")))

	txs, err := s.QueryTransactions(ctx, generic.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seed(t, s, "maya", "5", t0)

	require.NoError(t, s.Reset(ctx))
	accs, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accs)
}

// The engine runs unchanged on SQLite.
func TestAccrualPass_OnSQLite(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := t0.Add(30 * generic.Day)
	seed(t, s, "maya", "1000.00", t0)
	seed(t, s, "leo", "1000.00", now.Add(-12*time.Hour))

	sched := interest.NewScheduler(s, interest.DefaultRates(), nil)
	result, err := sched.RunAccrualPass(ctx, now)
	require.NoError(t, err)
	require.Len(t, result.Events(), 1)
	assert.Empty(t, result.Failed())

	maya, err := s.GetAccount(ctx, "maya")
	require.NoError(t, err)
	assert.Equal(t, "1003.71", maya.Balance(generic.CategorySavings).String())
	assert.True(t, maya.LastAccrualAt.Equal(now))

	again, err := sched.RunAccrualPass(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, again.Events())

	id := generic.AccountID("maya")
	txs, err := s.QueryTransactions(ctx, generic.TransactionFilter{AccountID: &id})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].IsInterest())
	assert.Equal(t, "3.71", txs[0].Amount.String())
}
