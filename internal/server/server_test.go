package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treewalk/internal/core"
	"treewalk/internal/logging"
	"treewalk/internal/metrics"
	"treewalk/internal/panorama"
	"treewalk/internal/session"
	"treewalk/internal/slot"
	"treewalk/pkg/domain"
)

type testEnv struct {
	store   *core.RecordStore
	session *session.Controller
	handler http.Handler
}

func newTestEnv(t *testing.T, finder panorama.Finder, origins ...string) testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, finder, Config{AllowedOrigins: origins})
}

func newTestEnvWithConfig(t *testing.T, finder panorama.Finder, cfg Config) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := metrics.New(nil)
	require.NoError(t, err)
	store := core.NewRecordStore(slot.NewMemory(slot.DefaultName), core.WithLogger(logging.Discard()), core.WithMetrics(m))
	store.Load(context.Background())
	viewer := panorama.NewViewer(finder, panorama.WithViewerLogger(logging.Discard()), panorama.WithLookupObserver(m))
	sess := session.New(store, viewer, session.WithLogger(logging.Discard()), session.WithImportObserver(m), session.WithSettleDelay(time.Hour))
	t.Cleanup(sess.Close)
	srv := New(cfg, Deps{Session: sess, Finder: finder, Metrics: m.Handler(), Logger: logging.Discard()})
	return testEnv{store: store, session: sess, handler: srv.Handler()}
}

func (e testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if _, ok := body.(string); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, panorama.StubFinder{})
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestNearestImage(t *testing.T) {
	t.Run("stub", func(t *testing.T) {
		env := newTestEnv(t, panorama.StubFinder{})
		w := env.do(t, http.MethodGet, "/nearest-image?lat=38.8895&lng=-77.0353", nil)
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[map[string]any](t, w)
		assert.Equal(t, "stub", got["source"])
		assert.Equal(t, "stub-38.88950--77.03530", got["image_id"])
	})
	t.Run("invalid coordinates", func(t *testing.T) {
		env := newTestEnv(t, panorama.StubFinder{})
		assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodGet, "/nearest-image?lat=abc&lng=1", nil).Code)
		assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodGet, "/nearest-image?lat=1", nil).Code)
		assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodGet, "/nearest-image?lat=1&lng=1&radius=-4", nil).Code)
	})
	t.Run("not found", func(t *testing.T) {
		var gotRadius float64
		env := newTestEnv(t, panorama.FinderFunc(func(_ context.Context, _ domain.LatLng, r float64) (panorama.NearestImage, error) {
			gotRadius = r
			return panorama.NearestImage{}, panorama.ErrNotFound
		}))
		w := env.do(t, http.MethodGet, "/nearest-image?lat=1&lng=2", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"detail":"No panorama found within radius"}`, w.Body.String())
		assert.Equal(t, panorama.DefaultRadius, gotRadius)
	})
	t.Run("upstream failure", func(t *testing.T) {
		env := newTestEnv(t, panorama.FinderFunc(func(context.Context, domain.LatLng, float64) (panorama.NearestImage, error) {
			return panorama.NearestImage{}, &panorama.TransportError{Message: "Mapillary lookup failed: boom"}
		}))
		w := env.do(t, http.MethodGet, "/nearest-image?lat=1&lng=2&radius=50", nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.JSONEq(t, `{"detail":"Mapillary lookup failed: boom"}`, w.Body.String())
	})
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t, panorama.StubFinder{})

	w := env.do(t, http.MethodPost, "/api/v1/session/explore", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[session.Snapshot](t, w)
	assert.Equal(t, session.ModeStreet, snap.Mode)
	assert.Equal(t, panorama.StatusStub, snap.Viewer.Status)

	w = env.do(t, http.MethodPost, "/api/v1/session/select", map[string]float64{"lat": 38.89, "lng": -77.03})
	require.Equal(t, http.StatusOK, w.Code)
	snap = decode[session.Snapshot](t, w)
	require.NotNil(t, snap.Pending)

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPut, "/api/v1/session/form", map[string]string{"species": "Oak"}).Code)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/session/label", nil).Code)
	w = env.do(t, http.MethodPost, "/api/v1/session/form/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"species is required"}`, w.Body.String())

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/v1/session/form", map[string]string{"species": "Oak", "condition": "Fair"}).Code)
	w = env.do(t, http.MethodPost, "/api/v1/session/form/submit", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	rec := decode[domain.TreeObservation](t, w)
	assert.Equal(t, "Oak", rec.Species)
	assert.Equal(t, domain.ConditionFair, rec.Condition)
	require.NotNil(t, rec.ImageID)
	assert.Equal(t, "stub-38.88950--77.03530", *rec.ImageID)

	w = env.do(t, http.MethodGet, "/api/v1/observations", nil)
	records := decode[[]domain.TreeObservation](t, w)
	require.Len(t, records, 1)

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/v1/session/form/submit", nil).Code)

	w = env.do(t, http.MethodPost, "/api/v1/session/mode", map[string]string{"mode": "map"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.ModeMap, decode[session.Snapshot](t, w).Mode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/session/mode", map[string]string{"mode": "globe"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/session/center", map[string]float64{"lat": 1}).Code)
}

func TestPanIsDebounced(t *testing.T) {
	env := newTestEnv(t, panorama.StubFinder{})
	w := env.do(t, http.MethodPost, "/api/v1/session/center", map[string]float64{"lat": 10, "lng": 20})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, session.DefaultCenter, decode[session.Snapshot](t, w).Center)

	env.session.FlushPan()
	w = env.do(t, http.MethodGet, "/api/v1/session", nil)
	assert.Equal(t, domain.LatLng{Lat: 10, Lng: 20}, decode[session.Snapshot](t, w).Center)
}

func TestImportExport(t *testing.T) {
	env := newTestEnv(t, panorama.StubFinder{})
	csv := "id,species,condition,notes,lat,lng,createdAt,imageId\n" +
		"a,Oak,Dead,hollow,38.9,-77,2024-01-01T00:00:00.000Z,img\n" +
		"b,Elm,,,,-77,,\n"

	w := env.do(t, http.MethodPost, "/api/v1/observations/import", csv)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"rows":2,"imported":1,"dropped":1}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/observations/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="treewalk.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "id,species,condition,notes,lat,lng,createdAt,imageId\na,Oak,Dead,hollow,38.9,-77,2024-01-01T00:00:00.000Z,img\n", w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/observations/import", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, env.store.Len())
}

func TestImportRejectsOversizedBody(t *testing.T) {
	env := newTestEnvWithConfig(t, panorama.StubFinder{}, Config{MaxImportBytes: 16})
	require.NoError(t, env.store.Add(context.Background(), domain.TreeObservation{ID: "keep", Species: "Oak", Condition: domain.ConditionGood}))

	w := env.do(t, http.MethodPost, "/api/v1/observations/import", "lat,lng\n1,2\n3,4\n5,6\n7,8\n")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	require.Equal(t, 1, env.store.Len())
	assert.Equal(t, "keep", env.store.Records()[0].ID)
}

func TestGetObservation(t *testing.T) {
	env := newTestEnv(t, panorama.StubFinder{})
	require.NoError(t, env.store.Add(context.Background(), domain.TreeObservation{ID: "oak-1", Species: "Oak", Condition: domain.ConditionFair}))

	w := env.do(t, http.MethodGet, "/api/v1/observations/oak-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[domain.TreeObservation](t, w)
	assert.Equal(t, "Oak", got.Species)
	assert.Equal(t, domain.ConditionFair, got.Condition)

	w = env.do(t, http.MethodGet, "/api/v1/observations/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"observation not found"}`, w.Body.String())
}

func TestRefreshWithoutWaiting(t *testing.T) {
	env := newTestEnv(t, panorama.StubFinder{})

	w := env.do(t, http.MethodPost, "/api/v1/session/refresh?wait=false", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	env.session.Viewer().Wait()
	assert.Equal(t, panorama.StatusStub, env.session.Snapshot().Viewer.Status)
}

func TestImportMultipart(t *testing.T) {
	env := newTestEnv(t, panorama.StubFinder{})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "trees.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("lat,lng\n1,2\n3,4\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/observations/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, env.store.Len())
}

func TestMarkersLegendMetrics(t *testing.T) {
	env := newTestEnv(t, panorama.StubFinder{})
	require.NoError(t, env.store.Add(context.Background(), domain.TreeObservation{ID: "a", Lat: 1, Lng: 2, Condition: domain.ConditionGood}))

	w := env.do(t, http.MethodGet, "/api/v1/markers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"FeatureCollection"`)
	assert.Contains(t, w.Body.String(), `"#16a34a"`)

	w = env.do(t, http.MethodGet, "/api/v1/legend", nil)
	assert.Contains(t, w.Body.String(), `{"label":"Dead","color":"#0ea5e9"}`)

	w = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "treewalk_store_records 1")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, panorama.StubFinder{}, "http://localhost:5173")
	req := httptest.NewRequest(http.MethodOptions, "/nearest-image", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	open := newTestEnv(t, panorama.StubFinder{})
	w = open.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk")))
	assert.Equal(t, http.StatusBadRequest, statusFor(session.ErrInvalidCSV))
	oversized := fmt.Errorf("import csv: %w: %w", session.ErrInvalidCSV, &http.MaxBytesError{Limit: 16})
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(oversized))
	assert.Equal(t, "boom", errorMessage(errors.New("boom")))
}
