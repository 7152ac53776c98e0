package audit

import (
	"context"
	"sync"
)

// MemorySink collects events in memory for tests and dev mode.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink constructs an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends the event.
func (s *MemorySink) Write(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of everything written so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
