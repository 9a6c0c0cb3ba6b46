package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"treewalk/internal/config"
	"treewalk/internal/logging"
	"treewalk/internal/panorama"
	"treewalk/internal/slot"
	"treewalk/pkg/domain"
)

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	v := config.New()
	v.Set("storage.driver", "fs")
	v.Set("storage.fs_root", t.TempDir())
	s, err := config.Load(v, "")
	require.NoError(t, err)
	return s
}

func TestNew_FilesystemRoundTrip(t *testing.T) {
	ctx := context.Background()
	settings := testSettings(t)

	a, err := New(ctx, settings, logging.Discard(), Options{})
	require.NoError(t, err)
	require.NoError(t, a.Store.Add(ctx, domain.TreeObservation{ID: "a", Species: "Oak", Condition: domain.ConditionGood}))
	require.NoError(t, a.Close())

	b, err := New(ctx, settings, logging.Discard(), Options{})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	assert.Equal(t, 1, b.Store.Len())
	assert.FileExists(t, filepath.Join(settings.Storage.FSRoot, "treewalk_trees.json"))
}

func TestNew_ServesStubLookups(t *testing.T) {
	a, err := New(context.Background(), testSettings(t), logging.Discard(), Options{Slot: slot.NewMemory(slot.DefaultName)})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	w := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nearest-image?lat=1&lng=2", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"stub"`)

	w = httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "treewalk_panorama_cache_misses_total 1")
}

func TestNew_UnknownTimezone(t *testing.T) {
	settings := testSettings(t)
	settings.Display.Timezone = "Nowhere/Void"
	_, err := New(context.Background(), settings, logging.Discard(), Options{Slot: slot.NewMemory(slot.DefaultName)})
	assert.Error(t, err)
}

func TestClose_LeavesNoBackgroundGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)
	a, err := New(context.Background(), testSettings(t), logging.Discard(), Options{Slot: slot.NewMemory(slot.DefaultName)})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/session/refresh?wait=false", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.NoError(t, a.Close())
	assert.Equal(t, panorama.StatusStub, a.Session.Snapshot().Viewer.Status)
}
