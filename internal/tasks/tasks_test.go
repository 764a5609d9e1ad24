package tasks

import (
	"fmt"
	"testing"
	"time"
)

func TestLifecycle(t *testing.T) {
	m := NewManager()

	id := m.Create()
	task, ok := m.Get(id)
	if !ok || task.Status != StatusPending || task.Progress != 0 {
		t.Fatalf("task = %+v, ok = %v", task, ok)
	}

	m.SetProgress(id, 10)
	m.SetProgress(id, 30)
	m.SetProgress(id, 90)
	m.Complete(id, map[string]string{"url": "http://x/media/a.png"})

	task, _ = m.Get(id)
	if task.Status != StatusCompleted || task.Progress != 100 || task.Result == nil {
		t.Errorf("task = %+v", task)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	m := NewManager()
	id := m.Create()

	m.SetProgress(id, 90)
	m.SetProgress(id, 30)

	task, _ := m.Get(id)
	if task.Progress != 90 {
		t.Errorf("progress = %d, want 90 (never backwards)", task.Progress)
	}
}

func TestFailKeepsProgress(t *testing.T) {
	m := NewManager()
	id := m.Create()

	m.SetProgress(id, 30)
	m.Fail(id, fmt.Errorf("provider down"))

	task, _ := m.Get(id)
	if task.Status != StatusFailed || task.Progress != 30 || task.Error != "provider down" {
		t.Errorf("task = %+v", task)
	}
}

func TestSubscribeReceivesUpdatesAndCloses(t *testing.T) {
	m := NewManager()
	id := m.Create()
	ch := m.Subscribe(id)

	m.SetProgress(id, 10)
	m.Complete(id, nil)

	var updates []Update
	timeout := time.After(time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				if len(updates) != 2 || updates[len(updates)-1].Status != StatusCompleted {
					t.Errorf("updates = %+v", updates)
				}
				return
			}
			updates = append(updates, u)
		case <-timeout:
			t.Fatal("subscriber channel never closed")
		}
	}
}

func TestSubscribeTerminalTask(t *testing.T) {
	m := NewManager()
	id := m.Create()
	m.Complete(id, nil)

	ch := m.Subscribe(id)
	u, ok := <-ch
	if !ok || u.Status != StatusCompleted {
		t.Errorf("update = %+v, ok = %v", u, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after the final state")
	}
}

func TestSubscribeUnknownTask(t *testing.T) {
	m := NewManager()
	if _, ok := <-m.Subscribe("nope"); ok {
		t.Error("unknown task should yield a closed channel")
	}
}

func TestPruneDropsOldTerminalTasks(t *testing.T) {
	m := NewManager()
	done := m.Create()
	m.Complete(done, nil)
	running := m.Create()
	m.SetProgress(running, 30)

	m.mu.Lock()
	m.tasks[done].task.UpdatedAt = time.Now().Add(-48 * time.Hour)
	m.tasks[running].task.UpdatedAt = time.Now().Add(-48 * time.Hour)
	m.mu.Unlock()

	if n := m.Prune(24 * time.Hour); n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, ok := m.Get(done); ok {
		t.Error("terminal task should be pruned")
	}
	if _, ok := m.Get(running); !ok {
		t.Error("running task must survive pruning")
	}
}

func TestIDsAreUnique(t *testing.T) {
	m := NewManager()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := m.Create()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
