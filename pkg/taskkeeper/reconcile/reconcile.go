// Package reconcile validates a declared set of task registrations, diffs
// it against persisted SchedulerState, and applies the add/remove/update
// override while preserving execution history for tasks that survive
// unchanged or merely modified.
package reconcile

import (
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/cronexpr"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/errs"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/task"
)

// FieldChange records one field difference for a task present both before
// and after reconciliation.
type FieldChange struct {
	Name  string
	Field string
	From  string
	To    string
}

// Result summarizes what reconciliation changed, for the override and
// first-time log events and for callers that report a dry run.
type Result struct {
	Added           []string
	Removed         []string
	Modified        []FieldChange
	FirstTime       bool
	RegisteredNames []string
}

// Changed reports whether this reconciliation altered persisted state.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Modified) > 0
}

// Options mirrors the caller-supplied Initialize options relevant to
// reconciliation.
type Options struct {
	// PollIntervalMs, if non-zero, is the caller's explicitly requested
	// poll interval.
	PollIntervalMs int64
}

// DefaultPollIntervalMs is used when neither the persisted state nor the
// caller supplies one.
const DefaultPollIntervalMs = 1000

// Validate checks a single registration's shape, returning a *errs.Error
// naming the offending task on failure.
func Validate(r task.Registration) error {
	if r.Name == "" {
		return errs.New(errs.KindInvalidRegistration, "task name must not be empty")
	}
	if r.CronExpression == "" {
		return errs.NewTask(errs.KindInvalidCronExpressionType, r.Name, "cron expression must be a non-empty string")
	}
	if _, err := cronexpr.Parse(r.CronExpression); err != nil {
		return errs.Wrap(errs.KindCronExpressionInvalid, r.Name, err)
	}
	if r.Callback == nil {
		return errs.NewTask(errs.KindCallbackType, r.Name, "callback must be provided")
	}
	if r.RetryDelay <= 0 {
		return errs.NewTask(errs.KindNegativeRetryDelay, r.Name, "retry delay must be a positive duration")
	}
	return nil
}

// Reconcile validates registrations, diffs them against state (which is
// mutated in place to reflect the reconciled task set), and returns a
// Result describing the change. Callers run it inside a single
// store.Transaction so a validation failure rolls the whole override back.
func Reconcile(regs []task.Registration, state *task.SchedulerState, opts Options, logger *slog.Logger) (Result, error) {
	seen := make(map[string]bool, len(regs))
	for _, r := range regs {
		if err := Validate(r); err != nil {
			return Result{}, err
		}
		if seen[r.Name] {
			return Result{}, errs.NewTask(errs.KindInvalidRegistration, r.Name, "duplicate task name in registration set")
		}
		seen[r.Name] = true
	}

	if opts.PollIntervalMs < 0 {
		return Result{}, errs.New(errs.KindInvalidPollInterval, "pollIntervalMs must be a positive integer")
	}

	pollIntervalMs := state.PollIntervalMs
	if pollIntervalMs == 0 {
		if opts.PollIntervalMs != 0 {
			pollIntervalMs = opts.PollIntervalMs
		} else {
			pollIntervalMs = DefaultPollIntervalMs
		}
	} else if opts.PollIntervalMs != 0 && opts.PollIntervalMs != pollIntervalMs {
		return Result{}, (&errs.Error{
			Kind:    errs.KindPollingFrequencyChange,
			Message: "pollIntervalMs cannot change once set",
		}).WithDetail("currentInterval", pollIntervalMs).WithDetail("requestedInterval", opts.PollIntervalMs)
	}

	pollInterval := time.Duration(pollIntervalMs) * time.Millisecond
	for _, r := range regs {
		ce, _ := cronexpr.Parse(r.CronExpression)
		if ce.MinimumInterval() < pollInterval {
			return Result{}, errs.NewTask(errs.KindScheduleTask, r.Name,
				"cron expression's minimum interval is shorter than the poll interval")
		}
	}

	firstTime := len(state.Tasks) == 0

	var result Result
	for name := range state.Tasks {
		if !seen[name] {
			result.Removed = append(result.Removed, name)
		}
	}
	sort.Strings(result.Removed)
	for _, name := range result.Removed {
		delete(state.Tasks, name)
	}

	for _, r := range regs {
		existing, ok := state.Tasks[r.Name]
		if !ok {
			state.Tasks[r.Name] = &task.TaskRecord{
				Name:           r.Name,
				CronExpression: r.CronExpression,
				RetryDelayMs:   r.RetryDelay.Milliseconds(),
			}
			result.Added = append(result.Added, r.Name)
			continue
		}
		if existing.CronExpression != r.CronExpression {
			result.Modified = append(result.Modified, FieldChange{
				Name: r.Name, Field: "cronExpression", From: existing.CronExpression, To: r.CronExpression,
			})
			existing.CronExpression = r.CronExpression
		}
		if existing.RetryDelayMs != r.RetryDelay.Milliseconds() {
			result.Modified = append(result.Modified, FieldChange{
				Name:  r.Name,
				Field: "retryDelayMs",
				From:  msString(existing.RetryDelayMs),
				To:    msString(r.RetryDelay.Milliseconds()),
			})
			existing.RetryDelayMs = r.RetryDelay.Milliseconds()
		}
	}
	sort.Slice(result.Added, func(i, j int) bool { return result.Added[i] < result.Added[j] })
	sort.Slice(result.Modified, func(i, j int) bool { return result.Modified[i].Name < result.Modified[j].Name })

	state.PollIntervalMs = pollIntervalMs

	names := make([]string, 0, len(regs))
	for _, r := range regs {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	result.FirstTime = firstTime
	result.RegisteredNames = names

	if logger != nil {
		if firstTime {
			logger.Info("scheduler initialized for the first time",
				"tasks", names, "pollIntervalMs", pollIntervalMs)
		} else if result.Changed() {
			logger.Info("reconciliation applied an override",
				"removedTasks", result.Removed,
				"addedTasks", result.Added,
				"modifiedTasks", formatModified(result.Modified),
			)
		}
	}

	return result, nil
}

func formatModified(changes []FieldChange) []map[string]string {
	out := make([]map[string]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, map[string]string{"name": c.Name, "field": c.Field, "from": c.From, "to": c.To})
	}
	return out
}

func msString(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
