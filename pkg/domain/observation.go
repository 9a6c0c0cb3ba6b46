// Package domain defines the tree observation record and the small value
// types shared by the treewalk components.
package domain

import (
	"strings"
	"time"
)

// Condition classifies the health of an observed tree.
type Condition string

// Supported tree conditions. Good is the default for missing or unrecognized input.
const (
	ConditionGood     Condition = "Good"
	ConditionFair     Condition = "Fair"
	ConditionCritical Condition = "Critical"
	ConditionDead     Condition = "Dead"
)

// Conditions lists every condition in display order.
func Conditions() []Condition {
	return []Condition{ConditionGood, ConditionFair, ConditionCritical, ConditionDead}
}

// ParseCondition matches raw case-insensitively against the known conditions.
// Blank or unknown values yield ConditionGood with ok=false.
func ParseCondition(raw string) (c Condition, ok bool) {
	trimmed := strings.TrimSpace(raw)
	for _, candidate := range Conditions() {
		if strings.EqualFold(trimmed, string(candidate)) {
			return candidate, true
		}
	}
	return ConditionGood, false
}

// Valid reports whether c is one of the canonical conditions, spelled exactly.
func (c Condition) Valid() bool {
	p, ok := ParseCondition(string(c))
	return ok && p == c
}

// LatLng is a geographic coordinate pair in decimal degrees.
// Values are accepted as-is; no range validation is applied.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimestampLayout is the creation timestamp format (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// TreeObservation is the only persisted entity: one labelled tree.
type TreeObservation struct {
	ID        string    `json:"id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Species   string    `json:"species"`
	Condition Condition `json:"condition"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt string    `json:"createdAt"`
	ImageID   *string   `json:"imageId,omitempty"`
}

// Location returns the observation coordinates.
func (o TreeObservation) Location() LatLng {
	return LatLng{Lat: o.Lat, Lng: o.Lng}
}

// Clone returns a deep copy, including the optional image reference.
func (o TreeObservation) Clone() TreeObservation {
	cp := o
	if o.ImageID != nil {
		id := *o.ImageID
		cp.ImageID = &id
	}
	return cp
}

// CloneObservations deep copies a slice of observations preserving order.
func CloneObservations(in []TreeObservation) []TreeObservation {
	if in == nil {
		return nil
	}
	out := make([]TreeObservation, len(in))
	for i, o := range in {
		out[i] = o.Clone()
	}
	return out
}

// StringPtr returns a pointer to a copy of s, or nil when s is blank.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	v := s
	return &v
}
