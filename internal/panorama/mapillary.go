package panorama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"

	"treewalk/internal/logging"
	"treewalk/pkg/domain"
)

// MapillaryConfig configures the Graph API client.
type MapillaryConfig struct {
	Token             string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	SearchLimit       int
	HTTPClient        *http.Client
	Logger            log.Interface
}

// DefaultMapillaryConfig returns production defaults without a token.
func DefaultMapillaryConfig() MapillaryConfig {
	return MapillaryConfig{
		BaseURL:           "https://graph.mapillary.com",
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
		SearchLimit:       50,
	}
}

// MapillaryFinder searches the Graph API images endpoint inside a bounding
// box around the point and picks the closest image by haversine distance.
type MapillaryFinder struct {
	cfg     MapillaryConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  log.Interface
}

// NewMapillaryFinder validates cfg and fills defaults.
func NewMapillaryFinder(cfg MapillaryConfig) (*MapillaryFinder, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("mapillary token required")
	}
	def := DefaultMapillaryConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = def.SearchLimit
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &MapillaryFinder{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logging.OrDefault(cfg.Logger).WithField("component", "mapillary"),
	}, nil
}

type imagesResponse struct {
	Data []imageEntry `json:"data"`
}

type imageEntry struct {
	ID               string            `json:"id"`
	Geometry         *geojson.Geometry `json:"geometry"`
	ComputedGeometry *geojson.Geometry `json:"computed_geometry"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Nearest implements Finder.
func (m *MapillaryFinder) Nearest(ctx context.Context, at domain.LatLng, radius float64) (NearestImage, error) {
	if radius <= 0 {
		radius = DefaultRadius
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return NearestImage{}, lookupFailed(0, err)
	}
	center := orb.Point{at.Lng, at.Lat}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.searchURL(center, radius), nil)
	if err != nil {
		return NearestImage{}, lookupFailed(0, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return NearestImage{}, lookupFailed(0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return NearestImage{}, lookupFailed(resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NearestImage{}, lookupFailed(resp.StatusCode, fmt.Errorf("%s", graphErrorMessage(resp.StatusCode, body)))
	}
	var payload imagesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return NearestImage{}, lookupFailed(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	best, dist, ok := closest(payload.Data, center, radius)
	m.logger.WithFields(log.Fields{
		"candidates": len(payload.Data),
		"found":      ok,
		"duration":   time.Since(start).String(),
	}).Debug("mapillary search")
	if !ok {
		return NearestImage{}, ErrNotFound
	}
	id := best.ID
	return NearestImage{ImageID: &id, Lat: at.Lat, Lng: at.Lng, Distance: &dist, Source: SourceMapillary}, nil
}

func (m *MapillaryFinder) searchURL(center orb.Point, radius float64) string {
	bound := geo.NewBoundAroundPoint(center, radius)
	q := url.Values{}
	q.Set("access_token", m.cfg.Token)
	q.Set("fields", "id,computed_geometry,geometry")
	q.Set("bbox", strings.Join([]string{
		formatDegrees(bound.Min.Lon()),
		formatDegrees(bound.Min.Lat()),
		formatDegrees(bound.Max.Lon()),
		formatDegrees(bound.Max.Lat()),
	}, ","))
	q.Set("limit", strconv.Itoa(m.cfg.SearchLimit))
	return strings.TrimRight(m.cfg.BaseURL, "/") + "/images?" + q.Encode()
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', 7, 64)
}

// closest returns the entry nearest to center within radius meters.
func closest(entries []imageEntry, center orb.Point, radius float64) (imageEntry, float64, bool) {
	var (
		best     imageEntry
		bestDist float64
		found    bool
	)
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		p, ok := entryPoint(e)
		if !ok {
			continue
		}
		d := geo.DistanceHaversine(center, p)
		if d > radius {
			continue
		}
		if !found || d < bestDist {
			best, bestDist, found = e, d, true
		}
	}
	return best, bestDist, found
}

// entryPoint prefers the computed (SfM corrected) geometry over the raw GPS one.
func entryPoint(e imageEntry) (orb.Point, bool) {
	for _, g := range []*geojson.Geometry{e.ComputedGeometry, e.Geometry} {
		if g == nil {
			continue
		}
		if p, ok := g.Geometry().(orb.Point); ok {
			return p, true
		}
	}
	return orb.Point{}, false
}

func graphErrorMessage(status int, body []byte) string {
	var ge graphError
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		return ge.Error.Message
	}
	return fmt.Sprintf("status %d", status)
}

func lookupFailed(status int, err error) error {
	return &TransportError{
		Message:    fmt.Sprintf("Mapillary lookup failed: %v", err),
		StatusCode: status,
		Err:        err,
	}
}
