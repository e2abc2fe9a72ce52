// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package quota

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/matislovas/netcontrol-go/internal/logging"
	"github.com/matislovas/netcontrol-go/internal/nflog"
	"github.com/matislovas/netcontrol-go/internal/policy"
)

// Blocker installs or removes an entry's block rules. internal/classifier's
// Programmer satisfies this.
type Blocker interface {
	Block(name string) error
	Unblock(name string) error
}

// Scheduler arms, pauses and resumes per-entry expiry timers.
// internal/timer's Service satisfies this.
type Scheduler interface {
	Schedule(entryName string, limit time.Duration)
	Pause(entryName string)
	Resume(entryName string)
	Cancel(entryName string)
}

// message is the Dispatcher's mailbox payload. The Timer Service posts
// TimerFired; the signal handler posts Shutdown. The packet-log channel is
// read directly by Run rather than through the mailbox — the Dispatcher is
// itself one of the three concurrent agents described by the concurrency
// model, blocking on whichever of its two inputs is ready.
type message interface{ isMessage() }

// TimerFired is posted by the Timer Service when an armed deadline elapses.
type TimerFired struct{ Name string }

func (TimerFired) isMessage() {}

// Shutdown is posted by the signal handler to request an orderly stop.
type Shutdown struct{}

func (Shutdown) isMessage() {}

// Dispatcher is the Event Dispatcher: the single consumer of the packet-log
// channel, and the sole mutator of the Quota State maps.
type Dispatcher struct {
	logger    *logging.Logger
	blocker   Blocker
	scheduler Scheduler

	mailbox chan message

	mu         sync.Mutex
	timeStates map[string]*TimeEntryState
	dataStates map[string]*DataEntryState
}

// NewDispatcher returns a Dispatcher driving blocker and scheduler.
func NewDispatcher(blocker Blocker, scheduler Scheduler, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Dispatcher{
		logger:     logger.WithComponent("quota.dispatcher"),
		blocker:    blocker,
		scheduler:  scheduler,
		mailbox:    make(chan message, 64),
		timeStates: make(map[string]*TimeEntryState),
		dataStates: make(map[string]*DataEntryState),
	}
}

// LoadPolicy seeds the state maps from a parsed Policy: every data entry
// starts Counting, every time entry starts Idle.
func (d *Dispatcher) LoadPolicy(pol policy.Policy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range pol.Data {
		d.dataStates[e.Name] = &DataEntryState{Name: e.Name, State: DataCounting}
	}
	for _, e := range pol.Time {
		d.timeStates[e.Name] = &TimeEntryState{Name: e.Name, LimitSeconds: e.LimitSeconds, State: TimeIdle}
	}
}

// TimeState returns a copy of the named time entry's current state, and
// whether it exists.
func (d *Dispatcher) TimeState(name string) (TimeEntryState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.timeStates[name]
	if !ok {
		return TimeEntryState{}, false
	}
	return *st, true
}

// DataState returns a copy of the named data entry's current state, and
// whether it exists.
func (d *Dispatcher) DataState(name string) (DataEntryState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.dataStates[name]
	if !ok {
		return DataEntryState{}, false
	}
	return *st, true
}

// PostTimerFired enqueues a TimerFired message. Safe to call from the Timer
// Service's worker goroutine.
func (d *Dispatcher) PostTimerFired(entryName string) {
	d.mailbox <- TimerFired{Name: entryName}
}

// PostShutdown enqueues a Shutdown message. Safe to call from a signal
// handler goroutine.
func (d *Dispatcher) PostShutdown() {
	d.mailbox <- Shutdown{}
}

// Run is the Dispatcher's run loop: it blocks on the packet-log channel and
// its own mailbox, processing whichever is ready, until a Shutdown message
// arrives or events is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan nflog.Event) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-d.mailbox:
			if !ok {
				return
			}
			switch m := msg.(type) {
			case TimerFired:
				d.handleTimerFired(m.Name)
			case Shutdown:
				return
			}

		case ev, ok := <-events:
			if !ok {
				return
			}
			d.handleLogEvent(ev)
		}
	}
}

func (d *Dispatcher) handleLogEvent(ev nflog.Event) {
	switch ev.Group {
	case dataGroup:
		d.handleDataEvent(ev.Prefix)
	case timeGroup:
		d.handleTimeEvent(ev.Prefix)
	default:
		d.logger.Warn("log event on unbound group discarded", "group", ev.Group)
	}
}

const (
	dataGroup = 0
	timeGroup = 1

	startPrefix = "start_"
	finPrefix   = "fin_"
)

// handleDataEvent processes an over-quota notification for a data entry.
// The prefix is the entry's own name.
func (d *Dispatcher) handleDataEvent(name string) {
	d.mu.Lock()
	st, ok := d.dataStates[name]
	if !ok {
		d.mu.Unlock()
		d.logger.Warn("data event for unknown entry discarded", "name", name)
		return
	}
	if st.State == DataOverLimit {
		d.mu.Unlock()
		return
	}
	st.State = DataOverLimit
	d.mu.Unlock()

	if err := d.blocker.Block(name); err != nil {
		d.logger.Error("failed to install data entry block", "name", name, "error", err)
	}
}

// handleTimeEvent processes a start_/fin_ notification for a time entry.
func (d *Dispatcher) handleTimeEvent(prefix string) {
	var name string
	var isStart bool
	switch {
	case strings.HasPrefix(prefix, startPrefix):
		name = prefix[len(startPrefix):]
		isStart = true
	case strings.HasPrefix(prefix, finPrefix):
		name = prefix[len(finPrefix):]
		isStart = false
	default:
		d.logger.Warn("time event with unrecognized prefix discarded", "prefix", prefix)
		return
	}

	d.mu.Lock()
	st, ok := d.timeStates[name]
	if !ok {
		d.mu.Unlock()
		d.logger.Warn("time event for unknown entry discarded", "name", name)
		return
	}

	switch {
	case isStart && st.State == TimeIdle:
		st.State = TimeRunning
		wasArmed := st.armed
		st.armed = true
		d.mu.Unlock()
		if wasArmed {
			d.scheduler.Resume(name)
		} else {
			d.scheduler.Schedule(name, time.Duration(st.LimitSeconds)*time.Second)
		}
		return

	case isStart && st.State == TimeRunning:
		d.mu.Unlock()
		return // connection coalescing: no-op

	case !isStart && st.State == TimeRunning:
		st.State = TimeIdle
		d.mu.Unlock()
		d.scheduler.Pause(name)
		return

	case !isStart && st.State == TimeIdle:
		d.mu.Unlock()
		return // no-op

	default: // Expired: terminal
		d.mu.Unlock()
		return
	}
}

// handleTimerFired processes a Timer Service expiry for a time entry. A
// fired callback that finds its entry already in Expired (or no longer
// Running, e.g. paused after a race with the timer firing) is a no-op.
func (d *Dispatcher) handleTimerFired(name string) {
	d.mu.Lock()
	st, ok := d.timeStates[name]
	if !ok {
		d.mu.Unlock()
		d.logger.Warn("timer fired for unknown entry discarded", "name", name)
		return
	}
	if st.State != TimeRunning {
		d.mu.Unlock()
		return
	}
	st.State = TimeExpired
	d.mu.Unlock()

	if err := d.blocker.Block(name); err != nil {
		d.logger.Error("failed to install time entry block", "name", name, "error", err)
	}
}
