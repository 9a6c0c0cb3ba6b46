package csvbridge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"treewalk/pkg/domain"
)

// ErrNoHeader is returned when the input has no header row.
var ErrNoHeader = errors.New("csv: missing header row")

// Report summarizes one import.
type Report struct {
	Rows     int `json:"rows"`
	Imported int `json:"imported"`
	Dropped  int `json:"dropped"`
}

// Importer normalizes CSV rows into observations.
type Importer struct {
	now   func() time.Time
	newID func() string
}

// Option configures an Importer.
type Option func(*Importer)

// WithNow sets the time used for rows without createdAt.
func WithNow(now func() time.Time) Option {
	return func(im *Importer) {
		if now != nil {
			im.now = now
		}
	}
}

// WithIDGenerator sets the generator used for rows without id.
func WithIDGenerator(gen func() string) Option {
	return func(im *Importer) {
		if gen != nil {
			im.newID = gen
		}
	}
}

// NewImporter returns an Importer using uuid v4 ids and the wall clock.
func NewImporter(opts ...Option) *Importer {
	im := &Importer{now: time.Now, newID: func() string { return uuid.New().String() }}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import parses r with a default Importer.
func Import(r io.Reader) ([]domain.TreeObservation, Report, error) {
	return NewImporter().Import(r)
}

// Import parses the whole input before normalizing so a malformed file yields
// an error and no records. Rows missing lat or lng (blank or not numeric) are
// dropped. For surviving rows blank ids and timestamps are generated, blank
// species become "Imported tree N" (N counts survivors from 1) and unknown
// conditions become Good.
func (im *Importer) Import(r io.Reader) ([]domain.TreeObservation, Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, Report{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, Report{}, ErrNoHeader
	}
	index := headerIndex(rows[0])
	body := rows[1:]

	report := Report{Rows: len(body)}
	records := make([]domain.TreeObservation, 0, len(body))
	for _, cells := range body {
		// raw keeps the cell as written; only parsing and blank checks trim.
		raw := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(cells) {
				return ""
			}
			return cells[i]
		}
		blank := func(v string) bool { return strings.TrimSpace(v) == "" }
		lat, latOK := parseCoordinate(strings.TrimSpace(raw(ColumnLat)))
		lng, lngOK := parseCoordinate(strings.TrimSpace(raw(ColumnLng)))
		if !latOK || !lngOK {
			report.Dropped++
			continue
		}
		rec := domain.TreeObservation{
			ID:        raw(ColumnID),
			Lat:       lat,
			Lng:       lng,
			Species:   raw(ColumnSpecies),
			Notes:     raw(ColumnNotes),
			CreatedAt: strings.TrimSpace(raw(ColumnCreatedAt)),
			ImageID:   domain.StringPtr(raw(ColumnImageID)),
		}
		rec.Condition, _ = domain.ParseCondition(raw(ColumnCondition))
		if blank(rec.ID) {
			rec.ID = im.newID()
		}
		if rec.CreatedAt == "" {
			rec.CreatedAt = domain.FormatTimestamp(im.now())
		}
		if blank(rec.Species) {
			rec.Species = fmt.Sprintf("Imported tree %d", len(records)+1)
		}
		records = append(records, rec)
	}
	report.Imported = len(records)
	return records, report, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	return index
}

func parseCoordinate(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
