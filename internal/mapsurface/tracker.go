package mapsurface

import (
	"sync"
	"time"

	"treewalk/pkg/domain"
)

// DefaultSettleDelay is how long the map must stay still before a pan settles.
const DefaultSettleDelay = 300 * time.Millisecond

// Tracker debounces pans into center changes and forwards clicks as
// location selections.
type Tracker struct {
	delay    time.Duration
	onCenter func(domain.LatLng)
	onSelect func(domain.LatLng)

	mu      sync.Mutex
	timer   *time.Timer
	pending *domain.LatLng
	gen     uint64
	closed  bool
}

// NewTracker returns a tracker. Either callback may be nil.
func NewTracker(delay time.Duration, onCenter, onSelect func(domain.LatLng)) *Tracker {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	return &Tracker{delay: delay, onCenter: onCenter, onSelect: onSelect}
}

// Pan records a map movement. Only the last position of a burst is reported,
// once the map has been still for the settle delay.
func (t *Tracker) Pan(at domain.LatLng) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.pending = &at
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.delay, func() { t.settle(gen) })
}

// settle fires the pending pan if gen is still the latest burst.
func (t *Tracker) settle(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	at := t.pending
	t.pending = nil
	t.timer = nil
	closed := t.closed
	t.mu.Unlock()
	if at == nil || closed || t.onCenter == nil {
		return
	}
	t.onCenter(*at)
}

// Flush reports a pending pan immediately.
func (t *Tracker) Flush() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	gen := t.gen
	t.mu.Unlock()
	t.settle(gen)
}

// Click reports a selection synchronously.
func (t *Tracker) Click(at domain.LatLng) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed || t.onSelect == nil {
		return
	}
	t.onSelect(at)
}

// Close drops any pending pan and ignores later gestures.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
