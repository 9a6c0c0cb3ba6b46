// Package memory implements an in-process slot for tests and ephemeral runs.
package memory

import (
	"context"
	"sync"

	"treewalk/internal/slot/core"
)

// Slot implements core.Slot backed by a byte slice.
type Slot struct {
	mu       sync.RWMutex
	name     string
	payload  []byte
	written  bool
	failNext error
}

// New returns an empty memory slot.
func New(name string) *Slot { return &Slot{name: name} }

// Name returns the slot name.
func (s *Slot) Name() string { return s.name }

// Driver returns the slot driver identifier.
func (s *Slot) Driver() core.Driver { return core.DriverMemory }

// Read returns a copy of the last written payload.
func (s *Slot) Read(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.written {
		return nil, core.ErrEmpty
	}
	return append([]byte(nil), s.payload...), nil
}

// Write stores a copy of payload. A failure armed with FailNextWrite is
// returned once instead.
func (s *Slot) Write(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	s.payload = append([]byte(nil), payload...)
	s.written = true
	return nil
}

// FailNextWrite makes the next Write return err without storing anything.
func (s *Slot) FailNextWrite(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

// Close is a no-op.
func (s *Slot) Close() error { return nil }
