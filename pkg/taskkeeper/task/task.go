// Package task defines the scheduler's persisted and in-memory data model:
// Registration (caller input), TaskRecord (persisted runtime history) and
// SchedulerState (the persisted root).
package task

import (
	"context"
	"time"
)

// Callback is the nullary asynchronous operation a task executes. It
// returns an error on failure; the failure's time is recorded in the task's
// LastFailureTime and the error is logged, never propagated further.
type Callback func(ctx context.Context) error

// Registration is the caller-supplied, immutable description of one task.
type Registration struct {
	Name           string
	CronExpression string
	Callback       Callback
	RetryDelay     time.Duration
}

// TaskRecord is the persisted, mutable per-task runtime record.
type TaskRecord struct {
	Name            string     `json:"name"`
	CronExpression  string     `json:"cronExpression"`
	RetryDelayMs    int64      `json:"retryDelayMs"`
	LastAttemptTime *time.Time `json:"lastAttemptTime"`
	LastSuccessTime *time.Time `json:"lastSuccessTime"`
	LastFailureTime *time.Time `json:"lastFailureTime"`
	Running         bool       `json:"running"`
}

// RetryDelay returns the task's retry delay as a time.Duration.
func (t *TaskRecord) RetryDelay() time.Duration {
	return time.Duration(t.RetryDelayMs) * time.Millisecond
}

// SchedulerState is the persisted root: first-ever initialization time, the
// fixed poll interval, and the set of task records keyed by name.
type SchedulerState struct {
	Version        int                    `json:"version"`
	StartTime      time.Time              `json:"startTime"`
	PollIntervalMs int64                  `json:"pollIntervalMs"`
	Tasks          map[string]*TaskRecord `json:"tasks"`
}

// CurrentVersion is the persisted-state schema version written by this
// implementation. Readers ignore unknown fields; writers always emit all
// known fields.
const CurrentVersion = 1

// NewEmptyState synthesizes the empty state a StateStore returns when no
// persisted state exists yet.
func NewEmptyState(now time.Time) *SchedulerState {
	return &SchedulerState{
		Version:   CurrentVersion,
		StartTime: now,
		Tasks:     make(map[string]*TaskRecord),
	}
}

// Clone returns a deep copy of the state so callers can hold a snapshot
// without aliasing mutable TaskRecords across transactions.
func (s *SchedulerState) Clone() *SchedulerState {
	out := &SchedulerState{
		Version:        s.Version,
		StartTime:      s.StartTime,
		PollIntervalMs: s.PollIntervalMs,
		Tasks:          make(map[string]*TaskRecord, len(s.Tasks)),
	}
	for name, rec := range s.Tasks {
		clone := *rec
		if rec.LastAttemptTime != nil {
			t := *rec.LastAttemptTime
			clone.LastAttemptTime = &t
		}
		if rec.LastSuccessTime != nil {
			t := *rec.LastSuccessTime
			clone.LastSuccessTime = &t
		}
		if rec.LastFailureTime != nil {
			t := *rec.LastFailureTime
			clone.LastFailureTime = &t
		}
		out.Tasks[name] = &clone
	}
	return out
}
