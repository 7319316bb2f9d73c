/*
scheduler.go - Cron-driven accrual runner

PURPOSE:
  Owns the wall clock for the accrual engine. interest.Scheduler computes a
  pass for whatever "now" it is handed; this runner decides when a pass
  happens and hands it time.Now().

DESIGN:
  - robfig/cron fires RunNow on the configured schedule (default @daily)
  - Optionally runs one pass at startup so a server that was down catches up
  - Manual runs (POST /api/accrual/run, `savings accrue`) go through RunNow
    too and are serialized with scheduled ones by interest.Scheduler
  - Remembers the last pass for GET /api/accrual/status

CONFIGURATION:
  - Schedule: cron spec or descriptor ("@daily", "0 3 * * *")
  - RunOnStart: run a pass immediately on Start

USAGE:
  runner, err := NewAccrualRunner(scheduler, "@daily", log)
  runner.Start(true)
  // ... later
  runner.Stop()

SEE ALSO:
  - interest/scheduler.go: the pass itself
  - handlers.go: RunAccrual, AccrualStatus
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/savings-engine/interest"
)

// RunnerStatus is a snapshot of the runner for the status endpoint.
type RunnerStatus struct {
	Schedule   string
	Running    bool
	Runs       int
	LastRunAt  time.Time
	NextRunAt  time.Time
	LastResult *interest.PassResult
	LastError  error
}

// AccrualRunner triggers accrual passes on a cron schedule.
type AccrualRunner struct {
	scheduler *interest.Scheduler
	schedule  string
	log       logrus.FieldLogger
	now       func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
	startup sync.WaitGroup

	mu      sync.Mutex
	running bool
	runs    int
	lastAt  time.Time
	last    *interest.PassResult
	lastErr error
}

// NewAccrualRunner validates schedule and registers the pass with cron. The
// runner is idle until Start.
func NewAccrualRunner(scheduler *interest.Scheduler, schedule string, log logrus.FieldLogger) (*AccrualRunner, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &AccrualRunner{
		scheduler: scheduler,
		schedule:  schedule,
		log:       log,
		now:       time.Now,
	}
	r.cron = cron.New(cron.WithLogger(cronLogger{log: log}))

	id, err := r.cron.AddFunc(schedule, r.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid accrual schedule %q: %w", schedule, err)
	}
	r.entryID = id
	return r, nil
}

// Scheduler returns the engine the runner drives.
func (r *AccrualRunner) Scheduler() *interest.Scheduler { return r.scheduler }

// Start begins scheduled passes. With runOnStart a catch-up pass runs in the
// background right away.
func (r *AccrualRunner) Start(runOnStart bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.cron.Start()

	if runOnStart {
		r.startup.Add(1)
		go func() {
			defer r.startup.Done()
			r.tick()
		}()
	}
	r.log.WithFields(logrus.Fields{
		"schedule":     r.schedule,
		"run_on_start": runOnStart,
	}).Info("accrual runner started")
}

// Stop halts scheduling and waits for any running pass to finish, the
// startup pass included.
func (r *AccrualRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	<-r.cron.Stop().Done()
	r.startup.Wait()
	r.log.Info("accrual runner stopped")
}

// RunNow runs one pass at now and records the outcome.
func (r *AccrualRunner) RunNow(ctx context.Context, now time.Time) (*interest.PassResult, error) {
	result, err := r.scheduler.RunAccrualPass(ctx, now)

	r.mu.Lock()
	r.runs++
	r.lastAt = now
	r.lastErr = err
	if err == nil {
		r.last = result
	}
	r.mu.Unlock()

	return result, err
}

// Status reports the last pass and the next scheduled one.
func (r *AccrualRunner) Status() RunnerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RunnerStatus{
		Schedule:   r.schedule,
		Running:    r.running,
		Runs:       r.runs,
		LastRunAt:  r.lastAt,
		LastResult: r.last,
		LastError:  r.lastErr,
	}
	if r.running {
		st.NextRunAt = r.cron.Entry(r.entryID).Next
	}
	return st
}

func (r *AccrualRunner) tick() {
	result, err := r.RunNow(context.Background(), r.now())
	if err != nil {
		r.log.WithError(err).Error("scheduled accrual pass failed")
		return
	}
	if failed := result.Failed(); len(failed) > 0 {
		r.log.WithField("failed", len(failed)).Warn("accrual pass left accounts for retry")
	}
}

// cronLogger routes cron's internal logging through logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

func toRunnerStatusDTO(st RunnerStatus) RunnerStatusDTO {
	dto := RunnerStatusDTO{
		Schedule: st.Schedule,
		Running:  st.Running,
		Runs:     st.Runs,
	}
	if !st.LastRunAt.IsZero() {
		s := formatTime(st.LastRunAt)
		dto.LastRunAt = &s
	}
	if !st.NextRunAt.IsZero() {
		s := formatTime(st.NextRunAt)
		dto.NextRunAt = &s
	}
	if st.LastError != nil {
		dto.LastError = st.LastError.Error()
	}
	if st.LastResult != nil {
		res := toPassResultDTO(st.LastResult)
		dto.LastResult = &res
	}
	return dto
}
