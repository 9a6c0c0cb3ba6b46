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

	"treewalk/pkg/domain"
)

// HTTPFinder calls a remote /nearest-image endpoint, the way a browser
// client of the treewalk server does.
type HTTPFinder struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFinder returns a client for the server at baseURL.
func NewHTTPFinder(baseURL string, timeout time.Duration) *HTTPFinder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFinder{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

type detailBody struct {
	Detail string `json:"detail"`
}

// Nearest implements Finder. A 404 maps to ErrNotFound; any other non-2xx
// status becomes a TransportError carrying the server's detail text.
func (h *HTTPFinder) Nearest(ctx context.Context, at domain.LatLng, radius float64) (NearestImage, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(at.Lng, 'f', -1, 64))
	if radius > 0 {
		q.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/nearest-image?"+q.Encode(), nil)
	if err != nil {
		return NearestImage{}, &TransportError{Err: err}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return NearestImage{}, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return NearestImage{}, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return NearestImage{}, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		var d detailBody
		_ = json.Unmarshal(body, &d)
		msg := d.Detail
		if msg == "" {
			msg = fmt.Sprintf("panorama lookup failed with status %d", resp.StatusCode)
		}
		return NearestImage{}, &TransportError{Message: msg, StatusCode: resp.StatusCode}
	}
	var img NearestImage
	if err := json.Unmarshal(body, &img); err != nil {
		return NearestImage{}, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return img, nil
}
