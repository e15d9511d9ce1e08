// Package scheduler is the public surface of the task scheduler: Initialize
// and (*Scheduler).Stop. It owns the polling loop and the task executor,
// built on top of the cronexpr, task, store and reconcile packages.
//
// One long-running loop goroutine polls every task each interval; eligible
// tasks launch on their own goroutines with a per-task running guard, so a
// blocked callback can never delay polling or another task.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/clock"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/cronexpr"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/errs"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/reconcile"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/store"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/task"
)

// Options configures Initialize.
type Options struct {
	// PollIntervalMs is the caller's requested poll interval. Optional on
	// first call; once set (by the first call or the persisted state it
	// loads), later calls must either omit it or repeat the same value.
	PollIntervalMs int64
}

// Scheduler is the running scheduler instance returned by Initialize.
type Scheduler struct {
	store  store.StateStore
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	callbacks map[string]task.Callback
	order     []string

	pollInterval time.Duration

	ctx        context.Context // lifetime context; callbacks run under this, not under loopCancel
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	wg         sync.WaitGroup // in-flight task executions
	stopOnce   sync.Once
}

// Initialize loads persisted state, reconciles it against regs, writes the
// reconciled state back, and starts the polling loop. ctx bounds the
// scheduler's overall lifetime and is the context callbacks run under;
// Stop does not cancel it. Returns a named *errs.Error on any validation,
// cron, or storage failure; the polling loop is never started and no
// persisted state is mutated on failure.
func Initialize(ctx context.Context, st store.StateStore, clk clock.Clock, logger *slog.Logger, regs []task.Registration, opts Options) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	names := make(map[string]bool, len(regs))
	for _, r := range regs {
		if names[r.Name] {
			return nil, errs.NewTask(errs.KindInvalidRegistration, r.Name, "duplicate task name in registration set")
		}
		names[r.Name] = true
	}

	now := clk.Now()

	// The poll interval actually in effect lives in persisted state, set by
	// reconcile.Reconcile below; read it back rather than trusting the
	// caller's opts, since an earlier initialize() call may have set it.
	var pollIntervalMs int64
	err := st.Transaction(ctx, func(state *task.SchedulerState) error {
		res, err := reconcile.Reconcile(regs, state, reconcile.Options{PollIntervalMs: opts.PollIntervalMs}, logger)
		if err != nil {
			return err
		}
		pollIntervalMs = state.PollIntervalMs
		// No execution survives the process, so a running flag loaded from
		// persisted state is a leftover from a process that died
		// mid-execution. Left set, it would block the task from ever being
		// scheduled again; clear it before the loop starts.
		for _, rec := range state.Tasks {
			rec.Running = false
		}
		// First-start suppression: a task with no prior persisted history
		// does not fire on the very first poll after it is registered.
		// Anchored on the instant this Initialize call runs rather than the
		// scheduler-wide startTime field; a task added via a later override
		// would otherwise be anchored on a stale timestamp that suppresses
		// nothing.
		for _, name := range res.Added {
			rec := state.Tasks[name]
			attempt := now
			rec.LastAttemptTime = &attempt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	callbacks := make(map[string]task.Callback, len(regs))
	order := make([]string, 0, len(regs))
	for _, r := range regs {
		callbacks[r.Name] = r.Callback
		order = append(order, r.Name)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	s := &Scheduler{
		store:        st,
		clock:        clk,
		logger:       logger,
		callbacks:    callbacks,
		order:        order,
		pollInterval: time.Duration(pollIntervalMs) * time.Millisecond,
		ctx:          ctx,
		loopCancel:   cancel,
		loopDone:     make(chan struct{}),
	}

	go s.loop(loopCtx)

	return s, nil
}

// Stop cancels the polling loop, then waits for any in-flight executions to
// finish before returning. In-flight callbacks are not cancelled.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.loopCancel()
		<-s.loopDone
	})
	s.wg.Wait()
}

// loop repeats: sleep for pollInterval, then evaluate every task exactly
// once. Never two poll cycles run concurrently.
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)
	for {
		if err := s.clock.Sleep(ctx, s.pollInterval); err != nil {
			return
		}
		s.pollOnce(ctx)
	}
}

// pollOnce evaluates every registered task's eligibility under one
// read-only pass over persisted state, then launches each eligible task as
// an independent concurrent execution. Ties break by registration order;
// only launch order is guaranteed, not completion order.
func (s *Scheduler) pollOnce(ctx context.Context) {
	now := s.clock.Now()

	var eligible []string
	err := s.store.Transaction(ctx, func(state *task.SchedulerState) error {
		for _, name := range s.order {
			rec, ok := state.Tasks[name]
			if !ok {
				continue
			}
			ce, err := cronexpr.Parse(rec.CronExpression)
			if err != nil {
				s.logger.Error("poll: task has an unparseable cron expression", "task", name, "error", err)
				continue
			}
			if isEligible(rec, ce, now) {
				eligible = append(eligible, name)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("poll cycle failed", "error", err)
		return
	}

	for _, name := range eligible {
		s.launch(name)
	}
}

// isEligible reports whether rec is due for a normal execution (a cron
// firing it has not attempted) or for a retry (a failure older than the
// retry delay with no newer success and no newer cron firing).
func isEligible(rec *task.TaskRecord, ce *cronexpr.Expression, now time.Time) bool {
	if rec.Running {
		return false
	}

	if firedSince(ce, rec.LastAttemptTime, now) {
		return true
	}

	if rec.LastFailureTime == nil {
		return false
	}
	if rec.LastSuccessTime != nil && rec.LastSuccessTime.After(*rec.LastFailureTime) {
		return false
	}
	if now.Sub(*rec.LastFailureTime) < rec.RetryDelay() {
		return false
	}
	// A firing newer than the failure would supersede the retry, but no
	// separate check is needed: the attempt is always recorded before the
	// completion that sets the failure, so any firing after the failure is
	// also after the attempt and the due check above has already caught it.
	return true
}

// firedSince reports whether ce has a firing instant strictly after since
// (or any firing at all, if since is nil) that is at or before now. A
// single forward NextFiringAtOrAfter call anchored at since answers this
// without scanning backward from now across the whole search window.
func firedSince(ce *cronexpr.Expression, since *time.Time, now time.Time) bool {
	var from time.Time
	if since != nil {
		from = since.Add(time.Minute)
	} else {
		// No prior attempt recorded: any firing at or before now makes the
		// task due. Anchor at the far edge of the bounded search window so
		// a single forward Next call covers the whole legal range.
		from = now.Add(-cronexpr.MaxForwardSearch)
	}
	next, err := ce.NextFiringAtOrAfter(from)
	if err != nil {
		return false
	}
	return !next.After(now)
}

// launch runs one eligible task's execution: a transaction-guarded attempt
// record, the callback itself (outside any transaction), and a
// transaction-guarded completion record. Runs on its own goroutine so the
// poll loop is never blocked by a callback.
func (s *Scheduler) launch(name string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		execID := uuid.NewString()
		log := s.logger.With("task", name, "execution_id", execID)

		var attemptTime time.Time
		launched := false
		err := s.store.Transaction(s.ctx, func(state *task.SchedulerState) error {
			rec, ok := state.Tasks[name]
			if !ok {
				return nil
			}
			ce, err := cronexpr.Parse(rec.CronExpression)
			if err != nil {
				return nil
			}
			now := s.clock.Now()
			if !isEligible(rec, ce, now) {
				return nil
			}
			rec.Running = true
			rec.LastAttemptTime = &now
			attemptTime = now
			launched = true
			return nil
		})
		if err != nil {
			log.Error("failed to record task attempt", "error", err)
			return
		}
		if !launched {
			return
		}

		log.Info("executing task")

		s.mu.Lock()
		cb := s.callbacks[name]
		s.mu.Unlock()

		// The attempt is committed; even a missing callback must flow through
		// the completion update or the running flag would stay set forever.
		var runErr error
		if cb == nil {
			runErr = fmt.Errorf("no callback registered for task %q", name)
		} else {
			runErr = invoke(s.ctx, cb)
		}
		completion := s.clock.Now()

		err = s.store.Transaction(s.ctx, func(state *task.SchedulerState) error {
			rec, ok := state.Tasks[name]
			if !ok {
				return nil
			}
			rec.Running = false
			if runErr != nil {
				rec.LastFailureTime = &completion
			} else {
				rec.LastSuccessTime = &completion
				if rec.LastFailureTime != nil && rec.LastFailureTime.Before(completion) {
					rec.LastFailureTime = nil
				}
			}
			return nil
		})
		if err != nil {
			log.Error("failed to persist task completion", "error", err)
			return
		}

		duration := completion.Sub(attemptTime)
		if runErr != nil {
			log.Warn("task failed", "error", runErr, "duration", duration)
		} else {
			log.Info("task completed", "duration", duration)
		}
	}()
}

// invoke runs cb with panic recovery, so one misbehaving callback can never
// take down the scheduler or any other task's execution.
func invoke(ctx context.Context, cb task.Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cb(ctx)
}
