// Package store implements the scheduler's durable runtime-state container:
// a single Transaction operation that reads the whole SchedulerState
// snapshot, lets the caller mutate it, and persists the result atomically.
// Concurrent Transaction calls serialize.
//
// There is intentionally no bare save-the-whole-state operation. Two
// concurrent completions that each load the task map, mutate their own
// entry, and write the map back would lose each other's updates; routing
// every mutation through Transaction makes that race unexpressible.
package store

import (
	"context"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/task"
)

// StateStore is the durable runtime-state capability.
type StateStore interface {
	// Transaction gives f a snapshot of the current SchedulerState. If f
	// returns nil, the (possibly mutated) snapshot is persisted atomically
	// before Transaction returns. If f returns an error, no write occurs
	// and Transaction returns that error. Concurrent callers serialize.
	Transaction(ctx context.Context, f func(*task.SchedulerState) error) error
}
