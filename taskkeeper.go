// Package taskkeeper is the façade a host application embeds: Initialize
// starts a running scheduler from a set of task registrations, Stop drains
// it. Everything else (cron evaluation, persistence, reconciliation, the
// polling loop) lives in the pkg/taskkeeper subpackages this file wires
// together.
package taskkeeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/clock"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/scheduler"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/store"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/task"
)

// Registration describes one task: a name, a five-field cron expression, the
// callback to run, and the delay before retrying a failed attempt.
type Registration = task.Registration

// Callback is the nullary operation a task executes on each eligible poll.
type Callback = task.Callback

// Options configures Initialize.
type Options = scheduler.Options

// Scheduler is a running scheduler instance.
type Scheduler = scheduler.Scheduler

// StateStore is the persistence capability Initialize requires.
type StateStore = store.StateStore

// Initialize loads persisted state from st, reconciles it against regs, and
// starts polling. ctx bounds the scheduler's lifetime: callbacks launched
// while it runs continue to completion even after Stop is called, but
// Initialize itself returns once the reconciliation transaction completes.
// logger may be nil (defaults to slog.Default()).
func Initialize(ctx context.Context, st StateStore, regs []Registration, opts Options, logger *slog.Logger) (*Scheduler, error) {
	return scheduler.Initialize(ctx, st, clock.RealClock{}, logger, regs, opts)
}

// DefaultPollIntervalMs is the poll interval applied when neither the
// caller nor any previously persisted state specifies one.
const DefaultPollIntervalMs = 1000

// OpenSQLiteStore opens (or creates) a durable SQLite-backed StateStore at
// path.
func OpenSQLiteStore(path string) (*store.SQLiteStore, error) {
	return store.OpenSQLiteStore(path, func() time.Time { return time.Now().UTC() })
}
