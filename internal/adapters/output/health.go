package output

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// PoolProbe is the worker pool surface the health check reads.
type PoolProbe interface {
	IsRunning() bool
	QueueLength() int
	QueueCapacity() int
	QueueUtilization() float64
	Spilled() int64
}

// PersistProbe reports whether state is reaching the document store.
type PersistProbe interface {
	Dirty() bool
	Failures() int64
}

type HealthStatus struct {
	Healthy       bool    `json:"healthy"`
	Status        string  `json:"status"`
	QueueLength   int     `json:"queue_length"`
	QueueCapacity int     `json:"queue_capacity"`
	Utilization   float64 `json:"utilization_percent"`
	SpilledItems  int64   `json:"spilled_items"`
	TotalRequests int64   `json:"total_requests"`
	GlobalBans    int64   `json:"global_bans"`
	StoreFailures int64   `json:"store_failures"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Reason        string  `json:"reason,omitempty"`
}

type HealthChecker struct {
	pool      PoolProbe
	persist   PersistProbe
	view      GatewayView
	clk       clock.Clock
	startTime time.Time

	lastCheck     HealthStatus
	lastCheckTime time.Time
	lastCheckMu   sync.RWMutex
	checkInterval time.Duration
	lastFailures  int64
}

type HealthCheckerConfig struct {
	CheckInterval time.Duration
	Clock         clock.Clock
}

func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		CheckInterval: 5 * time.Second,
	}
}

// NewHealthChecker builds a checker. pool and persist may be nil when the
// process runs without replay or without a store.
func NewHealthChecker(pool PoolProbe, persist PersistProbe, view GatewayView, config HealthCheckerConfig) *HealthChecker {
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &HealthChecker{
		pool:          pool,
		persist:       persist,
		view:          view,
		clk:           config.Clock,
		checkInterval: config.CheckInterval,
		startTime:     config.Clock.Now(),
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	now := h.clk.Now()

	h.lastCheckMu.RLock()
	if !h.lastCheckTime.IsZero() && now.Sub(h.lastCheckTime) < h.checkInterval {
		cached := h.lastCheck
		h.lastCheckMu.RUnlock()
		return cached
	}
	h.lastCheckMu.RUnlock()

	h.lastCheckMu.Lock()
	defer h.lastCheckMu.Unlock()
	status := h.performCheck(now)
	h.lastCheck = status
	h.lastCheckTime = now
	return status
}

func (h *HealthChecker) performCheck(now time.Time) HealthStatus {
	status := HealthStatus{
		UptimeSeconds: now.Sub(h.startTime).Seconds(),
	}
	if h.view != nil {
		stats := h.view.Stats()
		status.TotalRequests = stats.TotalRequests
		status.GlobalBans = stats.GlobalBans
	}

	if h.pool != nil {
		if !h.pool.IsRunning() {
			status.Status = "OFFLINE"
			status.Reason = "worker pool not running"
			return status
		}
		status.QueueLength = h.pool.QueueLength()
		status.QueueCapacity = h.pool.QueueCapacity()
		status.Utilization = h.pool.QueueUtilization()
		status.SpilledItems = h.pool.Spilled()

		if status.Utilization >= 95 {
			status.Status = "SATURATED"
			status.Reason = fmt.Sprintf("queue utilization at %.1f%%", status.Utilization)
			return status
		}
	}

	// A store that failed since the previous check and still holds unsaved
	// state degrades the gateway without failing it.
	degradedStore := false
	if h.persist != nil {
		status.StoreFailures = h.persist.Failures()
		degradedStore = status.StoreFailures > h.lastFailures && h.persist.Dirty()
		h.lastFailures = status.StoreFailures
	}

	status.Healthy = true
	switch {
	case status.Utilization >= 80:
		status.Status = "DEGRADED"
		status.Reason = fmt.Sprintf("queue utilization elevated at %.1f%%", status.Utilization)
	case degradedStore:
		status.Status = "DEGRADED"
		status.Reason = "state store writes failing"
	default:
		status.Status = "HEALTHY"
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
