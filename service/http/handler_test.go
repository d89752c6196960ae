package http

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acctforge/config"
	"acctforge/monitor"
	"acctforge/storage/cursor"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := log.New(os.Stderr, "[TEST] ", log.LstdFlags)

	cur, err := cursor.New(filepath.Join(t.TempDir(), "cursor.json"), 77, logger)
	require.NoError(t, err)

	// Only the cursor and the run flag are touched by the handlers; the
	// pump loop itself is never started in these tests.
	mon := monitor.New(config.PumpConfig{PollInterval: "3s", RetryInterval: "5s", SaveInterval: 20},
		nil, cur, nil, nil, nil, nil, nil, logger)

	mux := http.NewServeMux()
	NewMonitorHandler(mon, logger).Register(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealth(t *testing.T) {
	mux := newTestMux(t)

	rec, body := doRequest(t, mux, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["running"])
	assert.Equal(t, float64(77), body["last_processed_height"])
}

func TestStatus(t *testing.T) {
	mux := newTestMux(t)

	rec, body := doRequest(t, mux, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "uptime_seconds")
	assert.Contains(t, body, "heap_alloc_bytes")
	assert.Equal(t, float64(77), body["last_processed_height"])
}

func TestStartStopEndpoints(t *testing.T) {
	mux := newTestMux(t)

	rec, body := doRequest(t, mux, http.MethodPost, "/monitor/stop")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["running"])

	_, health := doRequest(t, mux, http.MethodGet, "/health")
	assert.Equal(t, false, health["running"])

	rec, body = doRequest(t, mux, http.MethodPost, "/monitor/start")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["running"])
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newTestMux(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/health"},
		{http.MethodPost, "/status"},
		{http.MethodGet, "/monitor/start"},
		{http.MethodGet, "/monitor/stop"},
	}
	for _, tt := range tests {
		rec, _ := doRequest(t, mux, tt.method, tt.path)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tt.method, tt.path)
	}
}
