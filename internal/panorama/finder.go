// Package panorama resolves the street-level image nearest to a coordinate
// and tracks what the viewer currently displays.
package panorama

import (
	"context"
	"errors"
	"fmt"

	"treewalk/pkg/domain"
)

// Source tells a real provider result apart from a placeholder.
type Source string

const (
	// SourceMapillary marks an image returned by the Mapillary Graph API.
	SourceMapillary Source = "mapillary"
	// SourceStub marks a placeholder returned while no provider token is configured.
	SourceStub Source = "stub"
)

// DefaultRadius is the search radius in meters used when none is given.
const DefaultRadius = 100.0

// NearestImage is the lookup result. Lat and Lng echo the requested point.
type NearestImage struct {
	ImageID  *string  `json:"image_id"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Distance *float64 `json:"distance"`
	Source   Source   `json:"source"`
}

// Finder looks up the panorama closest to a point within radius meters.
type Finder interface {
	Nearest(ctx context.Context, at domain.LatLng, radius float64) (NearestImage, error)
}

// FinderFunc adapts a function to Finder.
type FinderFunc func(ctx context.Context, at domain.LatLng, radius float64) (NearestImage, error)

// Nearest calls f.
func (f FinderFunc) Nearest(ctx context.Context, at domain.LatLng, radius float64) (NearestImage, error) {
	return f(ctx, at, radius)
}

// ErrNotFound is returned when the provider answered but had no image in range.
var ErrNotFound = errors.New("no panorama found within radius")

// TransportError wraps network, status and decoding failures. Message is the
// text shown to the user.
type TransportError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("panorama lookup failed: %v", e.Err)
	default:
		return fmt.Sprintf("panorama lookup failed with status %d", e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
