package panorama

import (
	"context"
	"fmt"

	"treewalk/pkg/domain"
)

// StubFinder answers every lookup with a placeholder so the rest of the
// workflow keeps running without provider credentials.
type StubFinder struct{}

// Nearest returns a deterministic placeholder id for the point.
func (StubFinder) Nearest(ctx context.Context, at domain.LatLng, _ float64) (NearestImage, error) {
	if err := ctx.Err(); err != nil {
		return NearestImage{}, &TransportError{Err: err}
	}
	id := fmt.Sprintf("stub-%.5f-%.5f", at.Lat, at.Lng)
	return NearestImage{ImageID: &id, Lat: at.Lat, Lng: at.Lng, Source: SourceStub}, nil
}
