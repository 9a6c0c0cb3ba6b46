// Package core holds the record store: the ordered observation collection and
// its persisted slot.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"

	"treewalk/internal/logging"
	"treewalk/internal/slot"
	"treewalk/pkg/domain"
)

// LoadStatus describes what Load found in the slot.
type LoadStatus string

const (
	// LoadLoaded means the slot held a valid observation list.
	LoadLoaded LoadStatus = "loaded"
	// LoadEmpty means the slot was never written.
	LoadEmpty LoadStatus = "empty"
	// LoadCorrupt means the payload could not be decoded; the store starts empty.
	LoadCorrupt LoadStatus = "corrupt"
	// LoadUnreadable means the backend failed; the store starts empty.
	LoadUnreadable LoadStatus = "unreadable"
)

// RecordStore is the single source of truth for observations. Every mutation
// overwrites the whole slot before it becomes visible in memory.
type RecordStore struct {
	mu      sync.RWMutex
	slot    slot.Slot
	records []domain.TreeObservation
	opts    options
}

// NewRecordStore returns an empty store writing to s. Call Load to hydrate it.
func NewRecordStore(s slot.Slot, opts ...Option) *RecordStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RecordStore{slot: s, records: []domain.TreeObservation{}, opts: o}
}

// Load reads the slot once and replaces the in-memory collection. Missing or
// malformed state never fails: the store starts empty and a warning is logged.
func (s *RecordStore) Load(ctx context.Context) LoadStatus {
	start := s.opts.clock.Now()
	status, records := s.read(ctx)
	s.mu.Lock()
	s.records = records
	n := len(records)
	s.mu.Unlock()
	s.opts.metrics.Observe(ctx, "load", status == LoadLoaded || status == LoadEmpty, s.opts.clock.Now().Sub(start))
	s.opts.metrics.SetRecordCount(n)
	return status
}

func (s *RecordStore) read(ctx context.Context) (LoadStatus, []domain.TreeObservation) {
	logger := s.opts.logger.WithField("slot", s.slot.Name())
	payload, err := s.slot.Read(ctx)
	if errors.Is(err, slot.ErrEmpty) {
		logger.Debug("no persisted observations")
		return LoadEmpty, []domain.TreeObservation{}
	}
	if err != nil {
		logger.WithError(err).Warn("persisted observations unreadable, starting empty")
		return LoadUnreadable, []domain.TreeObservation{}
	}
	records, err := decodeRecords(payload)
	if err != nil {
		logger.WithError(err).Warn("persisted observations corrupt, starting empty")
		return LoadCorrupt, []domain.TreeObservation{}
	}
	logger.WithField("records", len(records)).Info("loaded observations")
	return LoadLoaded, records
}

func decodeRecords(payload []byte) ([]domain.TreeObservation, error) {
	var records []domain.TreeObservation
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	if records == nil {
		// a literal null is treated like an empty list
		return []domain.TreeObservation{}, nil
	}
	for i := range records {
		if !records[i].Condition.Valid() {
			records[i].Condition, _ = domain.ParseCondition(string(records[i].Condition))
		}
	}
	return records, nil
}

// Add prepends record and persists the collection. When the write fails the
// collection is left unchanged and the error is returned.
func (s *RecordStore) Add(ctx context.Context, record domain.TreeObservation) error {
	return s.mutate(ctx, "add", func(cur []domain.TreeObservation) []domain.TreeObservation {
		next := make([]domain.TreeObservation, 0, len(cur)+1)
		next = append(next, record.Clone())
		return append(next, cur...)
	})
}

// ReplaceAll swaps the entire collection for records, preserving their order.
func (s *RecordStore) ReplaceAll(ctx context.Context, records []domain.TreeObservation) error {
	return s.mutate(ctx, "replace_all", func([]domain.TreeObservation) []domain.TreeObservation {
		next := domain.CloneObservations(records)
		if next == nil {
			next = []domain.TreeObservation{}
		}
		return next
	})
}

func (s *RecordStore) mutate(ctx context.Context, op string, fn func([]domain.TreeObservation) []domain.TreeObservation) (err error) {
	start := s.opts.clock.Now()
	s.mu.Lock()
	defer func() {
		n := len(s.records)
		s.mu.Unlock()
		s.opts.metrics.Observe(ctx, op, err == nil, s.opts.clock.Now().Sub(start))
		s.opts.metrics.SetRecordCount(n)
	}()
	next := fn(s.records)
	if err = s.persist(ctx, next); err != nil {
		s.opts.logger.WithError(err).WithField("operation", op).Error("persist observations")
		return err
	}
	s.records = next
	return nil
}

func (s *RecordStore) persist(ctx context.Context, records []domain.TreeObservation) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode observations: %w", err)
	}
	if err := s.slot.Write(ctx, payload); err != nil {
		return fmt.Errorf("write slot %s: %w", s.slot.Name(), err)
	}
	return nil
}

// Records returns a copy of the collection, newest first.
func (s *RecordStore) Records() []domain.TreeObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneObservations(s.records)
}

// Len returns the number of observations.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the observation with the given id.
func (s *RecordStore) Get(id string) (domain.TreeObservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return domain.TreeObservation{}, false
}

// Each calls fn for every observation in order without copying the
// collection. fn must not call back into the store.
func (s *RecordStore) Each(fn func(domain.TreeObservation)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		fn(r)
	}
}

// Slot exposes the backing slot.
func (s *RecordStore) Slot() slot.Slot { return s.slot }

// Close releases the backing slot.
func (s *RecordStore) Close() error { return s.slot.Close() }

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now returns the function result, or the current UTC time when nil.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f()
}

// MetricsRecorder receives store timings and the current record count.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	SetRecordCount(n int)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) SetRecordCount(int)                                   {}

type options struct {
	clock   Clock
	logger  log.Interface
	metrics MetricsRecorder
}

func defaultOptions() options {
	return options{clock: ClockFunc(nil), logger: logging.OrDefault(nil), metrics: noopMetrics{}}
}

// Option configures a RecordStore.
type Option func(*options)

// WithClock overrides the time source used for metrics timing.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Interface) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}
