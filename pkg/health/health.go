// Package health implements Kubernetes-style liveness and readiness probes.
// Registered checks run periodically in the background with consecutive
// failure/success thresholds so a single blip does not flip the probe.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes one component; nil means healthy.
type CheckFunc func(ctx context.Context) error

const (
	failureThreshold = 3
	successThreshold = 1
)

// check is one registered probe plus its runtime state. The fail/ok counters
// are touched only by the single loop goroutine; healthy and lastErr are also
// read by HTTP handlers, so all state shares the one mutex.
type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	mu      sync.Mutex
	healthy bool
	lastErr error
	fails   int
	oks     int
}

func newCheck(name string, timeout time.Duration, fn CheckFunc) *check {
	// Healthy until proven otherwise, so probes pass during startup.
	return &check{name: name, timeout: timeout, fn: fn, healthy: true}
}

func (c *check) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.fn(checkCtx)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	if err != nil {
		c.oks = 0
		if c.fails++; c.fails >= failureThreshold {
			c.healthy = false
		}
		return
	}
	c.fails = 0
	if c.oks++; c.oks >= successThreshold {
		c.healthy = true
	}
}

func (c *check) status() (healthy bool, lastErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy, c.lastErr
}

// Health tracks liveness and readiness checks for one service.
type Health struct {
	mu        sync.Mutex
	liveness  []*check
	readiness []*check
	ready     bool
	cancel    context.CancelFunc
}

// New creates a Health in the not-ready state; call SetReady(true) once
// initialization finishes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check answering "is the process functional".
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newCheck(name, timeout, fn))
}

// AddReadinessCheck registers a check answering "can we serve traffic", such
// as database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newCheck(name, timeout, fn))
}

// Start runs every registered check on its own goroutine at the interval,
// beginning with an immediate run. Stop or ctx cancellation ends them.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append(append([]*check{}, h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, c := range checks {
		go func(c *check) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}(c)
	}
}

// Stop cancels the background check goroutines. Safe to call repeatedly.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate: true after startup, false at the
// beginning of graceful shutdown to drain traffic.
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady reports whether the service was marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	h.mu.Lock()
	ready := h.ready
	checks := h.readiness
	h.mu.Unlock()

	if !ready {
		return false
	}
	for _, c := range checks {
		if healthy, _ := c.status(); !healthy {
			return false
		}
	}
	return true
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves the /livez probe.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	checks := h.liveness
	h.mu.Unlock()
	writeProbe(w, failures(checks))
}

// ReadyEndpoint serves the /readyz probe.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	ready := h.ready
	checks := h.readiness
	h.mu.Unlock()

	fs := failures(checks)
	if !ready {
		fs["_readiness"] = "service is not ready"
	}
	writeProbe(w, fs)
}

func failures(checks []*check) map[string]string {
	fs := make(map[string]string)
	for _, c := range checks {
		healthy, lastErr := c.status()
		if healthy {
			continue
		}
		if lastErr != nil {
			fs[c.name] = lastErr.Error()
		} else {
			fs[c.name] = "check is unhealthy"
		}
	}
	return fs
}

func writeProbe(w http.ResponseWriter, fs map[string]string) {
	resp := probeResponse{Status: "ok"}
	status := http.StatusOK
	if len(fs) > 0 {
		resp = probeResponse{Status: "unhealthy", Checks: fs}
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
