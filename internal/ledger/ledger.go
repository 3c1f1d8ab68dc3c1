// Package ledger tracks background units of work and their state
// transitions. The ledger is append-only for the life of the process,
// capped at a configured number of retained entries.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codesquad-ai/codesquad/internal/event"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition indicates a caller bug: finish on a task that
	// is not running, or similar. It is never surfaced to clients.
	ErrInvalidTransition = errors.New("invalid task state transition")
)

// Ledger records tasks and enforces monotonic state transitions:
// pending -> running -> completed|failed. Transitions attempted from any
// other source state are rejected, which doubles as the single-writer
// discipline for concurrent access.
type Ledger struct {
	mu    sync.RWMutex
	tasks map[string]*types.Task
	order []string // creation order, oldest first
	max   int
	bus   *event.Bus
}

// New creates a Ledger retaining at most max entries. bus may be nil.
func New(max int, bus *event.Bus) *Ledger {
	if max <= 0 {
		max = 200
	}
	return &Ledger{
		tasks: make(map[string]*types.Task),
		max:   max,
		bus:   bus,
	}
}

// Enqueue records a new pending task and returns a snapshot of it.
func (l *Ledger) Enqueue(kind types.TaskKind, name, sessionID string) *types.Task {
	task := &types.Task{
		ID:        ulid.Make().String(),
		Name:      name,
		Kind:      kind,
		State:     types.TaskPending,
		SessionID: sessionID,
		Created:   time.Now().UnixMilli(),
	}

	l.mu.Lock()
	l.tasks[task.ID] = task
	l.order = append(l.order, task.ID)
	l.evictLocked()
	snapshot := *task
	l.mu.Unlock()

	l.publish(&snapshot)
	return &snapshot
}

// Start transitions a task from pending to running. Starting an
// already-running task is a no-op.
func (l *Ledger) Start(id string) error {
	l.mu.Lock()
	task, ok := l.tasks[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	switch task.State {
	case types.TaskRunning:
		l.mu.Unlock()
		return nil
	case types.TaskPending:
		task.State = types.TaskRunning
	default:
		state := task.State
		l.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, state)
	}
	snapshot := *task
	l.mu.Unlock()

	l.publish(&snapshot)
	return nil
}

// Finish transitions a running task to completed (ok) or failed (!ok).
// Any other source state is rejected.
func (l *Ledger) Finish(id string, result *types.TaskResult, ok bool) error {
	l.mu.Lock()
	task, found := l.tasks[id]
	if !found {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	if task.State != types.TaskRunning {
		state := task.State
		l.mu.Unlock()
		return fmt.Errorf("%w: finish from %s", ErrInvalidTransition, state)
	}

	if ok {
		task.State = types.TaskCompleted
	} else {
		task.State = types.TaskFailed
	}
	now := time.Now().UnixMilli()
	task.Completed = &now
	task.Result = result
	snapshot := *task
	l.mu.Unlock()

	l.publish(&snapshot)
	return nil
}

// Get returns a snapshot of one task.
func (l *Ledger) Get(id string) (*types.Task, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	task, ok := l.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	snapshot := *task
	return &snapshot, nil
}

// Filter narrows a Snapshot.
type Filter struct {
	// SessionID limits results to tasks owned by one session.
	// Empty matches all.
	SessionID string
}

// Snapshot returns tasks matching filter, newest first.
func (l *Ledger) Snapshot(filter Filter) []*types.Task {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*types.Task, 0, len(l.order))
	for i := len(l.order) - 1; i >= 0; i-- {
		task := l.tasks[l.order[i]]
		if filter.SessionID != "" && task.SessionID != filter.SessionID {
			continue
		}
		snapshot := *task
		result = append(result, &snapshot)
	}
	return result
}

// HasPending reports whether a session still owns unfinished tasks.
func (l *Ledger) HasPending(sessionID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, task := range l.tasks {
		if task.SessionID == sessionID && !task.State.Terminal() {
			return true
		}
	}
	return false
}

// evictLocked drops the oldest entries when the cap is exceeded.
// Unfinished tasks are skipped so an eviction never loses live state.
func (l *Ledger) evictLocked() {
	for len(l.order) > l.max {
		evicted := false
		for i, id := range l.order {
			if l.tasks[id].State.Terminal() {
				delete(l.tasks, id)
				l.order = append(l.order[:i], l.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			// Everything retained is still live; accept the overflow.
			return
		}
	}
}

func (l *Ledger) publish(task *types.Task) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(event.Event{
		Type: event.TaskUpdated,
		Data: event.TaskData{Task: task},
	})
}
