package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsValues(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	ctx := context.Background()
	m.Observe(ctx, "add", true, 3*time.Millisecond)
	m.Observe(ctx, "add", false, time.Millisecond)
	m.SetRecordCount(4)
	m.ObserveLookup("loaded")
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.ObserveImport(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("add", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("add", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.StoreRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Imports.WithLabelValues("error")))
}

func TestMetrics_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.SetRecordCount(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "treewalk_store_records 2"), "exposition missing gauge")
}
