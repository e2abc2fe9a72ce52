// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nflog

import "sync"

// FakeChannel is an in-memory Channel for tests and simulation, mirroring
// the teacher's simulation-mode Kernel: a test drives it by calling Emit
// instead of a real socket delivering kernel events.
type FakeChannel struct {
	events chan Event

	mu     sync.Mutex
	closed bool
}

// NewFakeChannel returns a FakeChannel with the given event buffer size.
func NewFakeChannel(buffer int) *FakeChannel {
	return &FakeChannel{events: make(chan Event, buffer)}
}

// Emit delivers an event to the channel's consumer. It is a no-op if the
// channel has already been closed.
func (f *FakeChannel) Emit(group uint16, prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events <- Event{Group: group, Prefix: prefix}
}

func (f *FakeChannel) Events() <-chan Event { return f.events }

func (f *FakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.events)
	return nil
}

var _ Channel = (*FakeChannel)(nil)
