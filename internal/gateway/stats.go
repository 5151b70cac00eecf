package gateway

import (
	"math"
	"sync"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

type StatsAggregator struct {
	mu    sync.Mutex
	stats domain.GatewayStats
}

func NewStatsAggregator(initial domain.GatewayStats) *StatsAggregator {
	return &StatsAggregator{stats: initial}
}

// Record counts one full evaluation. The latency average is the rounded
// mean of the previous average and the new sample, not a true mean.
// globalBans is read outside the lock by the caller, so a stale smaller
// count never replaces a newer one.
func (a *StatsAggregator) Record(blocked bool, latencyMs int64, globalBans int) domain.GatewayStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalRequests++
	if blocked {
		a.stats.BlockedRequests++
		a.stats.ActiveThreats++
	}
	a.stats.AvgLatency = int64(math.Round(float64(a.stats.AvgLatency+latencyMs) / 2))
	a.stats.GlobalBans = max(a.stats.GlobalBans, int64(globalBans))
	return a.stats
}

func (a *StatsAggregator) Snapshot() domain.GatewayStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *StatsAggregator) Restore(stats domain.GatewayStats) {
	a.mu.Lock()
	a.stats = stats
	a.mu.Unlock()
}
