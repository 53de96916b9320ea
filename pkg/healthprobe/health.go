package healthprobe

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// CheckFunc reports a component's health. A nil return means healthy.
type CheckFunc func() error

// HealthChecker provides health and readiness checks.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// New creates a new HealthChecker.
func New() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		checks:    make(map[string]CheckFunc),
	}
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the ready flag without running component checks.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// Register adds a named readiness check. Registering the same name twice replaces
// the previous check.
func (h *HealthChecker) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime,omitempty"`
	Message string            `json:"message,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK when the ready flag is set and every registered check passes,
// 503 Service Unavailable otherwise.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Message: "application is starting",
			})
			return
		}

		results, failed := h.runChecks()
		if failed {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "degraded",
				Message: "one or more checks failed",
				Checks:  results,
			})
			return
		}

		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "ready",
			Uptime: time.Since(h.startTime).String(),
			Checks: results,
		})
	}
}

func (h *HealthChecker) runChecks() (map[string]string, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()

	if len(names) == 0 {
		return nil, false
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	failed := false
	for _, name := range names {
		if err := checks[name](); err != nil {
			results[name] = err.Error()
			failed = true
			continue
		}
		results[name] = "ok"
	}

	return results, failed
}

func writeJSON(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
