// Package form implements the observation form: a closed/open state machine
// that turns a pending location plus field values into a TreeObservation.
package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"treewalk/pkg/domain"
)

var (
	// ErrSpeciesRequired rejects a submit with a blank species.
	ErrSpeciesRequired = errors.New("species is required")
	// ErrFormClosed rejects edits and submits while the form is closed.
	ErrFormClosed = errors.New("form is not open")
	// ErrNoPendingLocation is returned by callers that refuse to open without a location.
	ErrNoPendingLocation = errors.New("no pending location to label")
)

// Sink receives submitted observations. The record store is the usual sink.
type Sink interface {
	Add(ctx context.Context, record domain.TreeObservation) error
}

// Fields holds the editable values.
type Fields struct {
	Species   string           `json:"species"`
	Condition domain.Condition `json:"condition"`
	Notes     string           `json:"notes"`
}

func emptyFields() Fields { return Fields{Condition: domain.ConditionGood} }

// Snapshot is a read-only view of the form.
type Snapshot struct {
	Open    bool           `json:"open"`
	Pending *domain.LatLng `json:"pending"`
	Fields  Fields         `json:"fields"`
}

// Form is safe for concurrent use.
type Form struct {
	mu      sync.Mutex
	open    bool
	pending *domain.LatLng
	fields  Fields

	now   func() time.Time
	newID func() string
}

// Option configures a Form.
type Option func(*Form)

// WithClock sets the time source for createdAt.
func WithClock(now func() time.Time) Option {
	return func(f *Form) {
		if now != nil {
			f.now = now
		}
	}
}

// WithIDGenerator sets the record id generator.
func WithIDGenerator(gen func() string) Option {
	return func(f *Form) {
		if gen != nil {
			f.newID = gen
		}
	}
}

// New returns a closed form.
func New(opts ...Option) *Form {
	f := &Form{fields: emptyFields(), now: time.Now, newID: func() string { return uuid.New().String() }}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open shows the form for pending. A nil location is a no-op and returns
// false. Reopening an open form moves it to the new location and keeps the
// typed values.
func (f *Form) Open(pending *domain.LatLng) bool {
	if pending == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	loc := *pending
	f.pending = &loc
	f.open = true
	return true
}

// IsOpen reports whether the form is shown.
func (f *Form) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Snapshot returns the current state.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{Open: f.open, Fields: f.fields}
	if f.pending != nil {
		loc := *f.pending
		s.Pending = &loc
	}
	return s
}

// SetSpecies updates the species field.
func (f *Form) SetSpecies(species string) error {
	return f.edit(func(fl *Fields) { fl.Species = species })
}

// SetCondition parses raw; unknown values fall back to Good.
func (f *Form) SetCondition(raw string) error {
	return f.edit(func(fl *Fields) { fl.Condition, _ = domain.ParseCondition(raw) })
}

// SetNotes updates the notes field.
func (f *Form) SetNotes(notes string) error {
	return f.edit(func(fl *Fields) { fl.Notes = notes })
}

// Update replaces all fields at once.
func (f *Form) Update(fields Fields) error {
	return f.edit(func(fl *Fields) {
		fl.Species = fields.Species
		fl.Condition, _ = domain.ParseCondition(string(fields.Condition))
		fl.Notes = fields.Notes
	})
}

func (f *Form) edit(fn func(*Fields)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return ErrFormClosed
	}
	fn(&f.fields)
	return nil
}

// Submit validates the fields, builds the observation at the pending
// location tagged with imageID, and hands it to sink. On success the fields
// are cleared and the form closes. On any error the form stays open with its
// values intact.
func (f *Form) Submit(ctx context.Context, imageID *string, sink Sink) (domain.TreeObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open || f.pending == nil {
		return domain.TreeObservation{}, ErrFormClosed
	}
	species := strings.TrimSpace(f.fields.Species)
	if species == "" {
		return domain.TreeObservation{}, ErrSpeciesRequired
	}
	condition, _ := domain.ParseCondition(string(f.fields.Condition))
	record := domain.TreeObservation{
		ID:        f.newID(),
		Lat:       f.pending.Lat,
		Lng:       f.pending.Lng,
		Species:   species,
		Condition: condition,
		Notes:     f.fields.Notes,
		CreatedAt: domain.FormatTimestamp(f.now()),
	}
	if imageID != nil {
		id := *imageID
		record.ImageID = &id
	}
	if sink != nil {
		if err := sink.Add(ctx, record); err != nil {
			return domain.TreeObservation{}, fmt.Errorf("save observation: %w", err)
		}
	}
	f.reset()
	return record, nil
}

// Cancel closes the form and discards the typed values.
func (f *Form) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
}

func (f *Form) reset() {
	f.open = false
	f.pending = nil
	f.fields = emptyFields()
}
