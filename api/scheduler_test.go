package api

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/generic/store"
	"github.com/warp/savings-engine/interest"
)

func newRunner(t *testing.T, s generic.Store, schedule string) *AccrualRunner {
	t.Helper()
	log, _ := test.NewNullLogger()
	runner, err := NewAccrualRunner(interest.NewScheduler(s, nil, log), schedule, log)
	require.NoError(t, err)
	return runner
}

func TestNewAccrualRunner_InvalidSchedule(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := NewAccrualRunner(interest.NewScheduler(store.NewMemory(), nil, log), "whenever", log)
	assert.ErrorContains(t, err, "invalid accrual schedule")
}

func TestAccrualRunner_StartRunsCatchUp(t *testing.T) {
	// GIVEN: An account last accrued 30 days before the runner's clock
	s := store.NewMemory()
	acc := generic.NewAccount("maya", "Maya", testNow.AddDate(0, 0, -30))
	acc.Balances[generic.CategorySavings] = generic.MustParseDecimal("1000")
	require.NoError(t, s.CreateAccount(context.Background(), acc))

	runner := newRunner(t, s, "0 3 * * *")
	runner.now = func() time.Time { return testNow }

	// WHEN: The runner starts with a startup pass
	runner.Start(true)
	defer runner.Stop()

	// THEN: The catch-up pass posts interest and the next run is scheduled
	require.Eventually(t, func() bool { return runner.Status().Runs == 1 }, 2*time.Second, 10*time.Millisecond)

	st := runner.Status()
	assert.True(t, st.Running)
	assert.NoError(t, st.LastError)
	require.NotNil(t, st.LastResult)
	assert.Len(t, st.LastResult.Events(), 1)
	assert.False(t, st.NextRunAt.IsZero())

	got, err := s.GetAccount(context.Background(), "maya")
	require.NoError(t, err)
	assert.Equal(t, "1003.71", got.Balance(generic.CategorySavings).String())
}

func TestAccrualRunner_StopIsIdempotent(t *testing.T) {
	runner := newRunner(t, store.NewMemory(), "@hourly")

	runner.Stop()
	runner.Start(false)
	runner.Start(false)
	runner.Stop()
	runner.Stop()

	st := runner.Status()
	assert.False(t, st.Running)
	assert.True(t, st.NextRunAt.IsZero())
	assert.Zero(t, st.Runs)
}

// slowStore delays ListAccounts so a pass is still in flight when Stop runs.
type slowStore struct {
	*store.Memory
	delay time.Duration
}

func (s slowStore) ListAccounts(ctx context.Context) ([]generic.Account, error) {
	time.Sleep(s.delay)
	return s.Memory.ListAccounts(ctx)
}

func TestAccrualRunner_StopWaitsForStartupPass(t *testing.T) {
	// GIVEN: A store whose pass takes 300ms to list accounts
	mem := store.NewMemory()
	acc := generic.NewAccount("maya", "Maya", testNow.AddDate(0, 0, -30))
	acc.Balances[generic.CategorySavings] = generic.MustParseDecimal("1000")
	require.NoError(t, mem.CreateAccount(context.Background(), acc))

	runner := newRunner(t, slowStore{Memory: mem, delay: 300 * time.Millisecond}, "@daily")
	runner.now = func() time.Time { return testNow }

	// WHEN: The runner is stopped while the startup pass is running
	runner.Start(true)
	time.Sleep(20 * time.Millisecond)
	runner.Stop()

	// THEN: The pass has finished and its posting is committed
	st := runner.Status()
	assert.Equal(t, 1, st.Runs)
	assert.NoError(t, st.LastError)

	got, err := mem.GetAccount(context.Background(), "maya")
	require.NoError(t, err)
	assert.Equal(t, "1003.71", got.Balance(generic.CategorySavings).String())
}

func TestAccrualRunner_RunNowRecordsFailure(t *testing.T) {
	runner := newRunner(t, store.NewMemory(), "@daily")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.RunNow(ctx, testNow)
	require.ErrorIs(t, err, context.Canceled)

	st := runner.Status()
	assert.Equal(t, 1, st.Runs)
	assert.ErrorIs(t, st.LastError, context.Canceled)
	assert.Nil(t, st.LastResult)
	assert.Equal(t, testNow, st.LastRunAt)
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]interface{}{"entry", 1, "next", "soon", "dangling"})
	assert.Equal(t, 1, fields["entry"])
	assert.Equal(t, "soon", fields["next"])
	assert.Len(t, fields, 2)
}
