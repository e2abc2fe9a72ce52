// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package timer implements the Timer Service: a single worker goroutine
// that wakes on the next deadline in a priority queue of (deadline, entry
// name) pairs and posts a TimerFired message back to its caller, rather
// than invoking a callback stored on the entry itself — see the Design
// Notes this package is grounded on for why.
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/matislovas/netcontrol-go/internal/logging"
)

// FiredFunc is invoked from the worker goroutine when an entry's deadline
// elapses. It must be non-blocking: the intended use is to enqueue a
// TimerFired message on a dispatcher mailbox, never to perform the
// transition itself.
type FiredFunc func(entryName string)

// entryState tracks one scheduled entry's remaining budget. remaining is
// kept authoritative only while Paused; while Running the authoritative
// value is the heap item's deadline.
type entryState struct {
	name      string
	total     time.Duration
	remaining time.Duration // valid while paused
	running   bool
	item      *queueItem // nil while paused
}

// Service is the Timer Service. Callers schedule one deadline per entry
// name; scheduling the same name again replaces the previous deadline.
type Service struct {
	logger *logging.Logger
	onFire FiredFunc
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entryState
	queue   *priorityQueue

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New returns a Timer Service that calls onFire when an entry's deadline
// elapses. Call Run to start its worker goroutine.
func New(onFire FiredFunc, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	pq := &priorityQueue{}
	heap.Init(pq)
	return &Service{
		logger:  logger.WithComponent("timer.service"),
		onFire:  onFire,
		now:     time.Now,
		entries: make(map[string]*entryState),
		queue:   pq,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run is the worker loop; callers run it in its own goroutine. It returns
// when Stop is called.
func (s *Service) Run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		var sleep time.Duration
		hasNext := s.queue.Len() > 0
		if hasNext {
			next := (*s.queue)[0]
			sleep = next.deadline.Sub(s.now())
		}
		s.mu.Unlock()

		var timerC <-chan time.Time
		var t *time.Timer
		if hasNext {
			if sleep < 0 {
				sleep = 0
			}
			t = time.NewTimer(sleep)
			timerC = t.C
		}

		select {
		case <-s.stop:
			if t != nil {
				t.Stop()
			}
			return
		case <-s.wake:
			if t != nil {
				t.Stop()
			}
			continue
		case <-timerC:
			s.fireExpired()
		}
	}
}

// Stop halts the worker goroutine and waits for it to exit.
func (s *Service) Stop() {
	close(s.stop)
	<-s.done
}

// fireExpired pops every entry whose deadline has passed and invokes onFire
// for each, outside the lock.
func (s *Service) fireExpired() {
	var fired []string

	s.mu.Lock()
	now := s.now()
	for s.queue.Len() > 0 && !(*s.queue)[0].deadline.After(now) {
		item := heap.Pop(s.queue).(*queueItem)
		st, ok := s.entries[item.name]
		if !ok || st.item != item {
			continue // stale entry, already rescheduled/cancelled
		}
		st.running = false
		st.item = nil
		fired = append(fired, item.name)
	}
	s.mu.Unlock()

	for _, name := range fired {
		s.onFire(name)
	}
}

// Schedule arms a one-shot deadline limit after now for entryName,
// replacing any existing schedule for that name.
func (s *Service) Schedule(entryName string, limit time.Duration) {
	s.mu.Lock()
	st := &entryState{name: entryName, total: limit, remaining: limit, running: true}
	if old, ok := s.entries[entryName]; ok && old.item != nil {
		s.queue.remove(old.item)
	}
	item := &queueItem{name: entryName, deadline: s.now().Add(limit)}
	heap.Push(s.queue, item)
	st.item = item
	s.entries[entryName] = st
	s.mu.Unlock()
	s.poke()
}

// Cancel removes any pending schedule for entryName.
func (s *Service) Cancel(entryName string) {
	s.mu.Lock()
	if st, ok := s.entries[entryName]; ok {
		if st.item != nil {
			s.queue.remove(st.item)
		}
		delete(s.entries, entryName)
	}
	s.mu.Unlock()
	s.poke()
}

// Pause captures the elapsed time against entryName's remaining budget and
// removes it from the queue. A no-op if the entry isn't scheduled or is
// already paused.
func (s *Service) Pause(entryName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.entries[entryName]
	if !ok || !st.running {
		return
	}
	remaining := st.item.deadline.Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	st.remaining = remaining
	s.queue.remove(st.item)
	st.item = nil
	st.running = false
}

// Resume re-arms entryName for its remaining budget. A no-op if the entry
// isn't scheduled or is already running.
func (s *Service) Resume(entryName string) {
	s.mu.Lock()
	st, ok := s.entries[entryName]
	if !ok || st.running {
		s.mu.Unlock()
		return
	}
	item := &queueItem{name: entryName, deadline: s.now().Add(st.remaining)}
	heap.Push(s.queue, item)
	st.item = item
	st.running = true
	s.mu.Unlock()
	s.poke()
}

// Reset restores entryName's remaining budget to its original limit,
// without changing whether it's currently running.
func (s *Service) Reset(entryName string) {
	s.mu.Lock()
	st, ok := s.entries[entryName]
	if !ok {
		s.mu.Unlock()
		return
	}
	st.remaining = st.total
	if st.running && st.item != nil {
		s.queue.remove(st.item)
		item := &queueItem{name: entryName, deadline: s.now().Add(st.total)}
		heap.Push(s.queue, item)
		st.item = item
	}
	s.mu.Unlock()
	s.poke()
}

// poke wakes the worker so it recomputes its sleep duration against a
// schedule change made from outside its own goroutine.
func (s *Service) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
