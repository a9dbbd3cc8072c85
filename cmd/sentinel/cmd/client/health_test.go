package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"
)

func testSupervisor(t *testing.T) *supervisor {
	t.Helper()
	sup, err := newSupervisor(&Env{
		ServerURL:  "http://server.invalid:5000",
		APIPath:    "/api/v1",
		GeoService: "auto",
	}, "test-client")
	require.NoError(t, err)
	return sup
}

func testMonitor(t *testing.T, probeStatus int, probeHits *atomic.Int32) *healthMonitor {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if probeHits != nil {
			probeHits.Add(1)
		}
		w.WriteHeader(probeStatus)
	}))
	t.Cleanup(ts.Close)

	h := newHealthMonitor(8082, testSupervisor(t))
	h.networkURL = ts.URL
	return h
}

func TestHealthReportHealthy(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	h := testMonitor(t, http.StatusOK, nil)

	rep := h.report(ctx)
	assert.Equal(t, "healthy", rep.Status)
	assert.Equal(t, "healthy", rep.Checks.ClientProcess)
	assert.Equal(t, "healthy", rep.Checks.NetworkConnectivity)
	assert.Empty(t, rep.Issues)
	assert.Greater(t, rep.System.MemoryPercent, 0.0)
}

func TestHealthReportCaching(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	var hits atomic.Int32
	h := testMonitor(t, http.StatusOK, &hits)

	first := h.report(ctx)
	second := h.report(ctx)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load(), "checks must not recompute inside the cache window")

	h.cacheFor = time.Nanosecond
	time.Sleep(time.Millisecond)
	h.report(ctx)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHealthReportNetworkDown(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	h := testMonitor(t, http.StatusBadGateway, nil)

	rep := h.report(ctx)
	assert.Equal(t, "unhealthy", rep.Status)
	assert.Equal(t, "unhealthy", rep.Checks.NetworkConnectivity)
	assert.Equal(t, "healthy", rep.Checks.ClientProcess)
	assert.NotEmpty(t, rep.Issues)
}

func TestHealthReportStalledSupervisor(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	h := testMonitor(t, http.StatusOK, nil)
	h.sup.mu.Lock()
	h.sup.lastBeat = time.Now().Add(-h.sup.env.Interval() * 4)
	h.sup.mu.Unlock()

	rep := h.report(ctx)
	assert.Equal(t, "unhealthy", rep.Status)
	assert.Equal(t, "unhealthy", rep.Checks.ClientProcess)
}

func TestHealthEndpoints(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	h := testMonitor(t, http.StatusBadGateway, nil)

	w := httptest.NewRecorder()
	h.handleHealth(w, httptest.NewRequest(http.MethodGet, "/client/health", nil).WithContext(ctx))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var rep healthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "unhealthy", rep.Status)

	w = httptest.NewRecorder()
	h.handleReady(w, httptest.NewRequest(http.MethodGet, "/client/health/ready", nil).WithContext(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var ready map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, "unhealthy", ready["status"])
	assert.NotEmpty(t, ready["timestamp"])
	assert.NotContains(t, w.Body.String(), "checks")

	// The startup probe succeeds no matter what.
	w = httptest.NewRecorder()
	h.handleStartup(w, httptest.NewRequest(http.MethodGet, "/client/health/startup", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var started map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, "started", started["status"])
}
