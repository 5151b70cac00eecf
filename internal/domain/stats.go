package domain

import (
	"fmt"
	"time"
)

const (
	DefaultAvgLatency = 45
	TrafficSeriesSize = 20
)

type GatewayStats struct {
	TotalRequests   int64 `json:"totalRequests"`
	BlockedRequests int64 `json:"blockedRequests"`
	AvgLatency      int64 `json:"avgLatency"`
	ActiveThreats   int64 `json:"activeThreats"`
	GlobalBans      int64 `json:"globalBans"`
}

func DefaultStats() GatewayStats {
	return GatewayStats{AvgLatency: DefaultAvgLatency}
}

// BlockRate returns the blocked share of all evaluated requests in percent.
func (s GatewayStats) BlockRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.BlockedRequests) / float64(s.TotalRequests) * 100
}

// TrafficBucket counts allowed and blocked requests for one wall-clock second.
type TrafficBucket struct {
	Time    string `json:"time"`
	Second  int64  `json:"second"`
	Valid   int    `json:"valid"`
	Blocked int    `json:"blocked"`
}

func NewTrafficBucket(t time.Time) TrafficBucket {
	return TrafficBucket{Time: SecondLabel(t), Second: t.Unix()}
}

// SecondLabel formats H:M:S without zero padding, the label the dashboard
// chart keys on.
func SecondLabel(t time.Time) string {
	return fmt.Sprintf("%d:%d:%d", t.Hour(), t.Minute(), t.Second())
}
