package client

import (
	"context"
	"fmt"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/datawire/dlib/dhttp"
	"github.com/datawire/dlib/dlog"
)

const (
	healthCacheFor  = 5 * time.Second
	networkProbeURL = "https://1.1.1.1/cdn-cgi/trace"
)

type healthChecks struct {
	ClientProcess       string `json:"client_process"`
	NetworkConnectivity string `json:"network_connectivity"`
}

type healthSystem struct {
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

type healthReport struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Checks    healthChecks `json:"checks"`
	System    healthSystem `json:"system"`
	Issues    []string     `json:"issues"`
}

// healthMonitor serves the local health endpoints. Checks are recomputed at
// most once per cache window so probe scraping stays cheap.
type healthMonitor struct {
	port       uint16
	sup        *supervisor
	networkURL string
	cacheFor   time.Duration
	probeCl    *http.Client

	mu       sync.Mutex // held across the recompute so scrapers queue, not stampede
	cached   healthReport
	cachedAt time.Time
}

func newHealthMonitor(port uint16, sup *supervisor) *healthMonitor {
	return &healthMonitor{
		port:       port,
		sup:        sup,
		networkURL: networkProbeURL,
		cacheFor:   healthCacheFor,
		probeCl:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *healthMonitor) serve(ctx context.Context) error {
	r := chi.NewRouter()
	r.Get("/client/health", h.handleHealth)
	r.Get("/client/health/ready", h.handleReady)
	r.Get("/client/health/startup", h.handleStartup)

	addr := fmt.Sprintf(":%d", h.port)
	dlog.Infof(ctx, "health endpoint listening on %s", addr)
	return (&dhttp.ServerConfig{Handler: r}).ListenAndServe(ctx, addr)
}

func (h *healthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := h.report(r.Context())
	writeJSON(w, healthCode(rep), rep)
}

func (h *healthMonitor) handleReady(w http.ResponseWriter, r *http.Request) {
	rep := h.report(r.Context())
	writeJSON(w, healthCode(rep), map[string]string{
		"status":    rep.Status,
		"timestamp": rep.Timestamp,
	})
}

func (h *healthMonitor) handleStartup(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "started",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func healthCode(rep healthReport) int {
	if rep.Status == "healthy" {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

func (h *healthMonitor) report(ctx context.Context) healthReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.cachedAt.IsZero() && time.Since(h.cachedAt) < h.cacheFor {
		return h.cached
	}
	h.cached = h.compute(ctx)
	h.cachedAt = time.Now()
	return h.cached
}

func (h *healthMonitor) compute(ctx context.Context) healthReport {
	rep := healthReport{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Issues:    []string{},
	}

	rep.Checks.ClientProcess = "healthy"
	if !h.supervisorAlive(ctx) {
		rep.Checks.ClientProcess = "unhealthy"
		rep.Issues = append(rep.Issues, "reporting loop is not making progress")
	}

	rep.Checks.NetworkConnectivity = "healthy"
	if !h.networkReachable(ctx) {
		rep.Checks.NetworkConnectivity = "unhealthy"
		rep.Issues = append(rep.Issues, "network probe failed")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		rep.System.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		rep.System.DiskPercent = du.UsedPercent
	}

	if len(rep.Issues) > 0 {
		rep.Status = "unhealthy"
	}
	return rep
}

// supervisorAlive checks that the reporting loop has beaten within three
// intervals and that our own process is visible to the process table.
func (h *healthMonitor) supervisorAlive(ctx context.Context) bool {
	if time.Since(h.sup.lastBeatTime()) > 3*h.sup.env.Interval() {
		return false
	}
	exists, err := process.PidExistsWithContext(ctx, int32(os.Getpid()))
	return err == nil && exists
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *healthMonitor) networkReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.networkURL, nil)
	if err != nil {
		return false
	}
	resp, err := h.probeCl.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
