// Package tasks tracks background image-generation jobs: status, monotonic
// progress and the final result, with subscriber channels feeding the
// websocket progress stream.
package tasks

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is a point-in-time snapshot of one job.
type Task struct {
	ID        string    `json:"task_id"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update is pushed to subscribers on every change.
type Update struct {
	TaskID   string `json:"task_id"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

type taskState struct {
	task Task
	subs []chan Update
}

// Manager holds all live tasks behind one RWMutex.
type Manager struct {
	mu      sync.RWMutex
	tasks   map[string]*taskState
	entropy *ulid.MonotonicEntropy
}

// NewManager returns an empty task table.
func NewManager() *Manager {
	return &Manager{
		tasks:   make(map[string]*taskState),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Create registers a pending task and returns its id.
func (m *Manager) Create() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
	now := time.Now()
	m.tasks[id] = &taskState{task: Task{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	return id
}

// Get returns a snapshot of the task.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return st.task, true
}

// SetProgress moves the task into processing at the given progress.
// Progress never goes backwards.
func (m *Manager) SetProgress(id string, progress int) {
	m.update(id, func(t *Task) {
		t.Status = StatusProcessing
		if progress > t.Progress {
			t.Progress = progress
		}
	})
}

// Complete marks the task done at 100 with its result.
func (m *Manager) Complete(id string, result any) {
	m.update(id, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = 100
		t.Result = result
	})
}

// Fail marks the task failed, keeping its last progress.
func (m *Manager) Fail(id string, err error) {
	m.update(id, func(t *Task) {
		t.Status = StatusFailed
		t.Error = err.Error()
	})
}

func (m *Manager) update(id string, fn func(*Task)) {
	m.mu.Lock()
	st, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	fn(&st.task)
	st.task.UpdatedAt = time.Now()

	update := Update{
		TaskID:   st.task.ID,
		Status:   st.task.Status,
		Progress: st.task.Progress,
		Error:    st.task.Error,
	}
	subs := append([]chan Update(nil), st.subs...)
	terminal := st.task.Status.Terminal()
	if terminal {
		st.subs = nil
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- update:
		default:
			// Slow subscriber, drop this update.
		}
		if terminal {
			close(ch)
		}
	}
}

// Subscribe returns a channel of updates for the task. The channel closes
// when the task settles; a task already terminal (or unknown) yields a
// closed channel carrying at most its final state.
func (m *Manager) Subscribe(id string) <-chan Update {
	ch := make(chan Update, 8)

	m.mu.Lock()
	st, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		close(ch)
		return ch
	}
	if st.task.Status.Terminal() {
		update := Update{TaskID: st.task.ID, Status: st.task.Status, Progress: st.task.Progress, Error: st.task.Error}
		m.mu.Unlock()
		ch <- update
		close(ch)
		return ch
	}
	st.subs = append(st.subs, ch)
	m.mu.Unlock()
	return ch
}

// Prune removes terminal tasks older than retention. Returns how many were
// dropped.
func (m *Manager) Prune(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, st := range m.tasks {
		if st.task.Status.Terminal() && st.task.UpdatedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

// StartPruneWorker periodically drops old terminal tasks until ctx ends.
func (m *Manager) StartPruneWorker(ctx context.Context, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.Prune(retention); n > 0 {
					slog.Info("pruned finished tasks", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
