package panorama

import (
	"context"
	"errors"
	"sync"

	"github.com/apex/log"

	"treewalk/internal/logging"
	"treewalk/pkg/domain"
)

// Status messages shown next to the viewer.
const (
	StatusFetching = "Fetching the closest panorama from the backend..."
	StatusLoaded   = "Loaded the closest Mapillary panorama."
	StatusStub     = "Running in stub mode because MAPILLARY_CLIENT_TOKEN is missing on the API."
	StatusNotFound = "No panorama found. Move the map and try again."
)

// Outcome classifies the last applied lookup.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeLoaded   Outcome = "loaded"
	OutcomeDegraded Outcome = "degraded"
	OutcomeNotFound Outcome = "not_found"
	OutcomeFailed   Outcome = "failed"
)

// State is what the viewer displays. ImageID keeps the last known value
// when a lookup fails.
type State struct {
	ImageID *string       `json:"imageId"`
	Source  Source        `json:"source,omitempty"`
	Status  string        `json:"status"`
	Outcome Outcome       `json:"outcome,omitempty"`
	Center  domain.LatLng `json:"center"`
	Pending bool          `json:"pending"`
	Seq     uint64        `json:"seq"`
}

func (s State) clone() State {
	if s.ImageID != nil {
		id := *s.ImageID
		s.ImageID = &id
	}
	return s
}

// LookupObserver counts applied lookup outcomes.
type LookupObserver interface {
	ObserveLookup(outcome string)
}

type noopLookupObserver struct{}

func (noopLookupObserver) ObserveLookup(string) {}

// Viewer issues lookups and applies only the response to the most recently
// issued request; older responses are dropped when they resolve late.
type Viewer struct {
	finder   Finder
	radius   float64
	logger   log.Interface
	observer LookupObserver

	mu      sync.Mutex
	issued  uint64
	state   State
	onLabel func()

	wg sync.WaitGroup
}

// ViewerOption configures a Viewer.
type ViewerOption func(*Viewer)

// WithRadius sets the search radius in meters.
func WithRadius(r float64) ViewerOption {
	return func(v *Viewer) {
		if r > 0 {
			v.radius = r
		}
	}
}

// WithViewerLogger sets the logger.
func WithViewerLogger(l log.Interface) ViewerOption {
	return func(v *Viewer) { v.logger = logging.OrDefault(l) }
}

// WithLookupObserver sets the outcome observer.
func WithLookupObserver(o LookupObserver) ViewerOption {
	return func(v *Viewer) {
		if o != nil {
			v.observer = o
		}
	}
}

// NewViewer returns a viewer with no image loaded.
func NewViewer(f Finder, opts ...ViewerOption) *Viewer {
	v := &Viewer{finder: f, radius: DefaultRadius, logger: logging.OrDefault(nil), observer: noopLookupObserver{}}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// State returns a copy of the displayed state.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.clone()
}

// ImageID returns the last known image id.
func (v *Viewer) ImageID() *string {
	return v.State().ImageID
}

// Refresh looks up the panorama nearest to center and blocks until the
// response is applied or discarded. applied is false when a newer request
// was issued while this one was in flight.
func (v *Viewer) Refresh(ctx context.Context, center domain.LatLng) (state State, applied bool) {
	seq := v.begin(center)
	img, err := v.finder.Nearest(ctx, center, v.radius)
	return v.apply(seq, img, err)
}

// RefreshAsync runs Refresh on its own goroutine. done, when set, receives
// the result. Use Wait to join outstanding lookups.
func (v *Viewer) RefreshAsync(ctx context.Context, center domain.LatLng, done func(State, bool)) {
	seq := v.begin(center)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		img, err := v.finder.Nearest(ctx, center, v.radius)
		st, ok := v.apply(seq, img, err)
		if done != nil {
			done(st, ok)
		}
	}()
}

// Wait blocks until every asynchronous lookup has finished.
func (v *Viewer) Wait() { v.wg.Wait() }

func (v *Viewer) begin(center domain.LatLng) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.issued++
	v.state.Status = StatusFetching
	v.state.Center = center
	v.state.Pending = true
	v.state.Seq = v.issued
	return v.issued
}

func (v *Viewer) apply(seq uint64, img NearestImage, err error) (State, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.issued {
		v.logger.WithFields(log.Fields{"seq": seq, "latest": v.issued}).Debug("discarding stale panorama response")
		return v.state.clone(), false
	}
	outcome := classify(img, err)
	switch outcome {
	case OutcomeLoaded:
		v.state.ImageID = img.ImageID
		v.state.Source = img.Source
		v.state.Status = StatusLoaded
	case OutcomeDegraded:
		if img.ImageID != nil {
			v.state.ImageID = img.ImageID
		}
		v.state.Source = img.Source
		v.state.Status = StatusStub
	case OutcomeNotFound:
		v.state.Status = StatusNotFound
	case OutcomeFailed:
		v.state.Status = err.Error()
		v.logger.WithError(err).Warn("panorama lookup failed")
	}
	v.state.Outcome = outcome
	v.state.Pending = false
	v.observer.ObserveLookup(string(outcome))
	return v.state.clone(), true
}

// classify maps a lookup result onto the three failure kinds. A missing
// image id from a real provider counts as not found.
func classify(img NearestImage, err error) Outcome {
	switch {
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case err != nil:
		return OutcomeFailed
	case img.Source == SourceStub:
		return OutcomeDegraded
	case img.ImageID == nil || *img.ImageID == "":
		return OutcomeNotFound
	default:
		return OutcomeLoaded
	}
}

// SetLabelHandler registers the callback run by Label.
func (v *Viewer) SetLabelHandler(fn func()) {
	v.mu.Lock()
	v.onLabel = fn
	v.mu.Unlock()
}

// Label asks the owning session to open the observation form. It reports
// whether a handler was registered.
func (v *Viewer) Label() bool {
	v.mu.Lock()
	fn := v.onLabel
	v.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}
