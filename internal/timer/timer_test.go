// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package timer

import (
	"container/heap"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fireRecorder collects fired entry names under a mutex for assertions.
type fireRecorder struct {
	mu    sync.Mutex
	fired []string
}

func (f *fireRecorder) onFire(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, name)
}

func (f *fireRecorder) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.fired))
	copy(out, f.fired)
	return out
}

func waitForFire(t *testing.T, rec *fireRecorder, name string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, n := range rec.snapshot() {
			if n == name {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q to fire", name)
}

func TestService_FiresAfterDeadline(t *testing.T) {
	rec := &fireRecorder{}
	svc := New(rec.onFire, nil)
	go svc.Run()
	defer svc.Stop()

	svc.Schedule("tq_0", 20*time.Millisecond)
	waitForFire(t, rec, "tq_0", time.Second)
}

func TestService_CancelPreventsFire(t *testing.T) {
	rec := &fireRecorder{}
	svc := New(rec.onFire, nil)
	go svc.Run()
	defer svc.Stop()

	svc.Schedule("tq_0", 20*time.Millisecond)
	svc.Cancel("tq_0")

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestService_PauseThenResumeWithRemainder(t *testing.T) {
	rec := &fireRecorder{}
	svc := New(rec.onFire, nil)
	go svc.Run()
	defer svc.Stop()

	svc.Schedule("tq_0", 100*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	svc.Pause("tq_0")

	// Paused: should not fire even though the original deadline has passed.
	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	svc.Resume("tq_0")
	waitForFire(t, rec, "tq_0", time.Second)
}

func TestService_ResetRestoresFullBudget(t *testing.T) {
	rec := &fireRecorder{}
	svc := New(rec.onFire, nil)
	go svc.Run()
	defer svc.Stop()

	svc.Schedule("tq_0", 40*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	svc.Reset("tq_0")

	// If the reset didn't take, this would fire by t=40ms; confirm it
	// instead survives well past the original deadline.
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	waitForFire(t, rec, "tq_0", time.Second)
}

func TestService_RescheduleReplacesPreviousDeadline(t *testing.T) {
	rec := &fireRecorder{}
	svc := New(rec.onFire, nil)
	go svc.Run()
	defer svc.Stop()

	svc.Schedule("tq_0", 200*time.Millisecond)
	svc.Schedule("tq_0", 20*time.Millisecond)

	waitForFire(t, rec, "tq_0", time.Second)
	require.Len(t, rec.snapshot(), 1)
}

func TestPriorityQueue_OrdersByDeadline(t *testing.T) {
	pq := &priorityQueue{}
	heap.Init(pq)
	now := time.Now()
	heap.Push(pq, &queueItem{name: "a", deadline: now.Add(30 * time.Millisecond)})
	heap.Push(pq, &queueItem{name: "b", deadline: now.Add(10 * time.Millisecond)})
	heap.Push(pq, &queueItem{name: "c", deadline: now.Add(20 * time.Millisecond)})

	assert.Equal(t, "b", (*pq)[0].name)
}
