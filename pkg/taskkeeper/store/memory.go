package store

import (
	"context"
	"sync"
	"time"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/task"
)

// MemoryStore is an in-process StateStore used by tests. It serializes
// Transaction calls behind a single mutex; no bare save-the-whole-state
// operation is exposed here either.
type MemoryStore struct {
	mu    sync.Mutex
	state *task.SchedulerState
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore. now supplies the timestamp
// used to synthesize the initial empty state on first Transaction.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{now: now}
}

// Transaction implements StateStore.
func (m *MemoryStore) Transaction(ctx context.Context, f func(*task.SchedulerState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		m.state = task.NewEmptyState(m.now())
	}

	snapshot := m.state.Clone()
	if err := f(snapshot); err != nil {
		return err
	}
	m.state = snapshot
	return nil
}
