package interest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/warp/savings-engine/generic"
)

// =============================================================================
// ACCRUAL SCHEDULER
// =============================================================================
//
// For each account, on each pass:
//
//   days = floor((now - LastAccrualAt) / 24h), clamped at 0
//   days < 1  → nothing to do, LastAccrualAt untouched
//   otherwise → for savings and investments with a positive balance,
//               post AccruedInterest(balance, rate, days) if >= 0.01,
//               then move LastAccrualAt to now even if nothing was posted
//
// Posting and the timestamp move happen in one store transaction. A failed
// account keeps its old timestamp and is retried in full on the next pass;
// the other accounts in the pass are unaffected.

// AccrualEvent is one posting decision.
type AccrualEvent struct {
	AccountID generic.AccountID
	Category  generic.Category
	Amount    decimal.Decimal
	Days      int
	Rate      decimal.Decimal
	Principal decimal.Decimal
}

// AccrualPlan is what Plan decided for one account.
type AccrualPlan struct {
	AccountID  generic.AccountID
	DaysPassed int
	Events     []AccrualEvent
	Skipped    map[generic.Category]string
}

// Due reports whether the plan covers at least one whole day.
func (p AccrualPlan) Due() bool { return p.DaysPassed >= 1 }

// AccountResult is the outcome of one account in a pass.
type AccountResult struct {
	AccountID    generic.AccountID
	DaysPassed   int
	Events       []AccrualEvent
	Transactions []generic.Transaction
	Advanced     bool
	Err          error
}

// PassResult collects per-account outcomes. A pass never fails as a whole
// because one account failed.
type PassResult struct {
	At       time.Time
	Accounts []AccountResult
}

// Events flattens every posted event in account order.
func (r *PassResult) Events() []AccrualEvent {
	var out []AccrualEvent
	for _, a := range r.Accounts {
		if a.Err == nil {
			out = append(out, a.Events...)
		}
	}
	return out
}

// Failed returns the accounts whose writes were rolled back.
func (r *PassResult) Failed() []AccountResult {
	var out []AccountResult
	for _, a := range r.Accounts {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// EventPublisher is notified after an account's postings commit.
type EventPublisher interface {
	PublishAccrual(ctx context.Context, ev AccrualEvent, tx generic.Transaction) error
}

type Scheduler struct {
	store     generic.Store
	writer    *LedgerWriter
	rates     RateTable
	log       logrus.FieldLogger
	publisher EventPublisher

	// pass serializes RunAccrualPass calls.
	pass *semaphore.Weighted
}

type SchedulerOption func(*Scheduler)

func WithPublisher(p EventPublisher) SchedulerOption {
	return func(s *Scheduler) { s.publisher = p }
}

// WithWriter shares a writer, and with it the per-account locks, with other
// callers that mutate the same accounts.
func WithWriter(w *LedgerWriter) SchedulerOption {
	return func(s *Scheduler) { s.writer = w }
}

func NewScheduler(store generic.Store, rates RateTable, log logrus.FieldLogger, opts ...SchedulerOption) *Scheduler {
	if rates == nil {
		rates = DefaultRates()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Scheduler{
		store: store,
		rates: rates,
		log:   log,
		pass:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.writer == nil {
		s.writer = NewLedgerWriter(store, WithWriterLogger(log))
	}
	return s
}

func (s *Scheduler) Rates() RateTable { return s.rates }

// Plan decides what to post for account at now. Pure.
func (s *Scheduler) Plan(account generic.Account, now time.Time) AccrualPlan {
	plan := AccrualPlan{
		AccountID:  account.ID,
		DaysPassed: generic.WholeDaysBetween(account.LastAccrualAt, now),
		Skipped:    make(map[generic.Category]string),
	}
	if !plan.Due() {
		return plan
	}

	for _, c := range generic.Categories() {
		if c == generic.CategoryCash {
			plan.Skipped[c] = "cash does not accrue"
			continue
		}
		balance := account.Balances[c]
		if !balance.IsPositive() {
			plan.Skipped[c] = "no balance"
			continue
		}
		rate := s.rates.EffectiveRate(account, c)
		amount := AccruedInterest(balance, rate, plan.DaysPassed)
		if !IsMaterial(amount) {
			plan.Skipped[c] = "below materiality floor"
			continue
		}
		plan.Events = append(plan.Events, AccrualEvent{
			AccountID: account.ID,
			Category:  c,
			Amount:    amount,
			Days:      plan.DaysPassed,
			Rate:      rate,
			Principal: balance,
		})
	}
	return plan
}

// RunAccrualPass evaluates every account once. Calls are serialized; a second
// caller waits for the first to finish or for its own ctx to end.
func (s *Scheduler) RunAccrualPass(ctx context.Context, now time.Time) (*PassResult, error) {
	if err := s.pass.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for running accrual pass: %w", err)
	}
	defer s.pass.Release(1)

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	result := &PassResult{At: now}
	for _, acc := range accounts {
		res := s.accrueAccount(ctx, acc.ID, now)
		result.Accounts = append(result.Accounts, res)
	}

	s.log.WithFields(logrus.Fields{
		"accounts": len(result.Accounts),
		"events":   len(result.Events()),
		"failed":   len(result.Failed()),
	}).Info("accrual pass complete")
	return result, nil
}

// AccrueAccount runs the pass logic for a single account.
func (s *Scheduler) AccrueAccount(ctx context.Context, id generic.AccountID, now time.Time) AccountResult {
	if err := s.pass.Acquire(ctx, 1); err != nil {
		return AccountResult{AccountID: id, Err: err}
	}
	defer s.pass.Release(1)
	return s.accrueAccount(ctx, id, now)
}

func (s *Scheduler) accrueAccount(ctx context.Context, id generic.AccountID, now time.Time) AccountResult {
	res := AccountResult{AccountID: id}
	log := s.log.WithField("account_id", id)

	err := s.writer.withAccountTx(ctx, id, func(ctx context.Context, tx generic.Store) error {
		// Re-read under the lock; the listing may be stale.
		acc, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}

		plan := s.Plan(acc, now)
		res.DaysPassed = plan.DaysPassed
		if !plan.Due() {
			return nil
		}

		for _, ev := range plan.Events {
			_, posted, err := applyAccrual(ctx, tx, ev, now)
			if err != nil {
				return fmt.Errorf("posting %s interest: %w", ev.Category, err)
			}
			res.Events = append(res.Events, ev)
			res.Transactions = append(res.Transactions, posted)
		}

		_, err = tx.UpdateAccount(ctx, id, func(a *generic.Account) error {
			res.Advanced = a.AdvanceAccrual(now)
			return nil
		})
		return err
	})

	if err != nil {
		log.WithError(err).WithField("retryable", generic.IsRetryable(err)).
			Warn("accrual rolled back")
		return AccountResult{
			AccountID:  id,
			DaysPassed: res.DaysPassed,
			Err:        &generic.AccountError{AccountID: id, Op: "accrue", Err: err},
		}
	}

	for i, ev := range res.Events {
		log.WithFields(logrus.Fields{
			"category": ev.Category,
			"days":     ev.Days,
			"amount":   ev.Amount.StringFixed(generic.CentPlaces),
		}).Info("interest posted")
		s.publish(ctx, ev, res.Transactions[i])
	}
	return res
}

func (s *Scheduler) publish(ctx context.Context, ev AccrualEvent, tx generic.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAccrual(ctx, ev, tx); err != nil {
		s.log.WithError(err).WithField("account_id", ev.AccountID).Warn("publishing accrual event failed")
	}
}
