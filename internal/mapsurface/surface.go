package mapsurface

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"treewalk/pkg/domain"
)

// Marker styling shared by every observation marker.
const (
	MarkerRadius      = 7
	MarkerWeight      = 2
	MarkerFillOpacity = 0.8
	DefaultZoom       = 17
)

const popupTimeLayout = "1/2/2006, 3:04:05 PM"

// RecordSource is the read side of the record store. Surfaces read it on
// every render and never keep their own copy.
type RecordSource interface {
	Each(fn func(domain.TreeObservation))
}

// Popup is the text shown when a marker is opened.
type Popup struct {
	Title      string `json:"title"`
	Condition  string `json:"condition"`
	BadgeClass string `json:"badgeClass"`
	Notes      string `json:"notes"`
	Added      string `json:"added"`
}

// Marker is one rendered observation.
type Marker struct {
	ID          string        `json:"id"`
	Position    domain.LatLng `json:"position"`
	Radius      int           `json:"radius"`
	Color       string        `json:"color"`
	Weight      int           `json:"weight"`
	FillOpacity float64       `json:"fillOpacity"`
	Popup       Popup         `json:"popup"`
}

// Surface is a map view over a shared record source.
type Surface struct {
	records  RecordSource
	location *time.Location
	tracker  *Tracker
}

// Option configures a Surface.
type Option func(*Surface)

// WithLocation sets the time zone used for popup timestamps.
func WithLocation(loc *time.Location) Option {
	return func(s *Surface) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithTracker attaches gesture handling to the surface.
func WithTracker(t *Tracker) Option {
	return func(s *Surface) { s.tracker = t }
}

// New returns a surface reading from records.
func New(records RecordSource, opts ...Option) *Surface {
	s := &Surface{records: records, location: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tracker returns the gesture tracker, or nil when none is attached.
func (s *Surface) Tracker() *Tracker { return s.tracker }

// Pan forwards a map movement to the tracker.
func (s *Surface) Pan(at domain.LatLng) {
	if s.tracker != nil {
		s.tracker.Pan(at)
	}
}

// Click forwards a map click to the tracker. Marker clicks open popups and
// must not be routed here.
func (s *Surface) Click(at domain.LatLng) {
	if s.tracker != nil {
		s.tracker.Click(at)
	}
}

// Flush settles a pending pan now.
func (s *Surface) Flush() {
	if s.tracker != nil {
		s.tracker.Flush()
	}
}

// Close stops gesture handling.
func (s *Surface) Close() {
	if s.tracker != nil {
		s.tracker.Close()
	}
}

// Markers renders every record currently in the source.
func (s *Surface) Markers() []Marker {
	var out []Marker
	s.records.Each(func(r domain.TreeObservation) {
		out = append(out, s.marker(r))
	})
	return out
}

func (s *Surface) marker(r domain.TreeObservation) Marker {
	return Marker{
		ID:          r.ID,
		Position:    r.Location(),
		Radius:      MarkerRadius,
		Color:       ColorFor(r.Condition),
		Weight:      MarkerWeight,
		FillOpacity: MarkerFillOpacity,
		Popup:       s.popup(r),
	}
}

func (s *Surface) popup(r domain.TreeObservation) Popup {
	p := Popup{
		Title:      r.Species,
		Condition:  string(r.Condition),
		BadgeClass: strings.ToLower(string(r.Condition)),
		Notes:      r.Notes,
		Added:      "Added " + s.formatTime(r.CreatedAt),
	}
	if p.Title == "" {
		p.Title = "Tree"
	}
	if p.Notes == "" {
		p.Notes = "No notes"
	}
	return p
}

// formatTime renders an ISO timestamp in the surface time zone. Values that
// do not parse are shown unchanged.
func (s *Surface) formatTime(raw string) string {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return raw
	}
	return t.In(s.location).Format(popupTimeLayout)
}

// GeoJSON renders the markers as a FeatureCollection of points.
func (s *Surface) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range s.Markers() {
		f := geojson.NewFeature(orb.Point{m.Position.Lng, m.Position.Lat})
		f.ID = m.ID
		f.Properties = geojson.Properties{
			"species":     m.Popup.Title,
			"condition":   m.Popup.Condition,
			"badge":       m.Popup.BadgeClass,
			"notes":       m.Popup.Notes,
			"added":       m.Popup.Added,
			"color":       m.Color,
			"radius":      m.Radius,
			"weight":      m.Weight,
			"fillOpacity": m.FillOpacity,
		}
		fc.Append(f)
	}
	return fc
}
