// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simulator

import (
	"sync"

	"github.com/hxrts/aura/types"
)

// Event is one recorded simulation observation.
type Event struct {
	Kind        string
	ConsensusID types.Hash32
	FastPath    bool
	Err         error
}

// TraceRecorder passively accumulates events in order. It never
// influences the run; tests read it to assert on protocol shape.
type TraceRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewTraceRecorder returns an empty recorder.
func NewTraceRecorder() *TraceRecorder {
	return &TraceRecorder{}
}

// Record appends an event.
func (t *TraceRecorder) Record(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

// Events returns a copy of the recorded sequence.
func (t *TraceRecorder) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Len returns the number of recorded events.
func (t *TraceRecorder) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}
