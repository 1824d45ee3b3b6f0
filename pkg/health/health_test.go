package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyGate(t *testing.T) {
	h := New()
	assert.False(t, h.IsReady(), "starts not ready")

	h.SetReady(true)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady(), "drains on shutdown")
}

func TestFailureThreshold(t *testing.T) {
	c := newCheck("db", time.Second, func(context.Context) error {
		return errors.New("down")
	})

	ctx := context.Background()
	c.run(ctx)
	c.run(ctx)
	healthy, _ := c.status()
	assert.True(t, healthy, "stays healthy below the failure threshold")

	c.run(ctx)
	healthy, lastErr := c.status()
	assert.False(t, healthy)
	assert.EqualError(t, lastErr, "down")
}

func TestRecoveryAfterSuccess(t *testing.T) {
	fail := true
	c := newCheck("db", time.Second, func(context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	})

	ctx := context.Background()
	for range failureThreshold {
		c.run(ctx)
	}
	healthy, _ := c.status()
	require.False(t, healthy)

	fail = false
	c.run(ctx)
	healthy, _ = c.status()
	assert.True(t, healthy, "recovers after one success")
}

func TestReadyEndpointReportsFailures(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("db", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})

	h.mu.Lock()
	c := h.readiness[0]
	h.mu.Unlock()
	for range failureThreshold {
		c.run(context.Background())
	}

	rec := httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp probeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Contains(t, resp.Checks["db"], "connection refused")
	assert.False(t, h.IsReady())
}

func TestLiveEndpointOK(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(100_000))

	rec := httptest.NewRecorder()
	h.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartRunsChecks(t *testing.T) {
	ran := make(chan struct{}, 1)
	h := New()
	h.AddReadinessCheck("once", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), time.Hour)
	defer h.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check never ran")
	}
}
