package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

func TestStatsAggregator_Record(t *testing.T) {
	agg := NewStatsAggregator(domain.DefaultStats())

	s := agg.Record(false, 10, 0)
	assert.Equal(t, int64(1), s.TotalRequests)
	assert.Equal(t, int64(0), s.BlockedRequests)
	assert.Equal(t, int64(28), s.AvgLatency) // round((45+10)/2)

	s = agg.Record(true, 3, 2)
	assert.Equal(t, int64(2), s.TotalRequests)
	assert.Equal(t, int64(1), s.BlockedRequests)
	assert.Equal(t, int64(1), s.ActiveThreats)
	assert.Equal(t, int64(16), s.AvgLatency) // round(15.5)
	assert.Equal(t, int64(2), s.GlobalBans)
	assert.InDelta(t, 50.0, s.BlockRate(), 0.001)
}

func TestStatsAggregator_GlobalBansMonotonic(t *testing.T) {
	agg := NewStatsAggregator(domain.DefaultStats())

	agg.Record(true, 1, 3)
	s := agg.Record(true, 1, 2)
	assert.Equal(t, int64(3), s.GlobalBans)
}

func TestTrafficSeries_Prefilled(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 5, 7, 0, time.UTC)
	series := NewTrafficSeries(domain.TrafficSeriesSize, now)

	buckets := series.Buckets()
	require.Len(t, buckets, domain.TrafficSeriesSize)
	assert.Equal(t, "9:5:7", buckets[len(buckets)-1].Time)
	assert.Equal(t, "9:4:48", buckets[0].Time)
}

func TestTrafficSeries_RecordAndRoll(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 5, 7, 0, time.UTC)
	series := NewTrafficSeries(4, now)

	series.Record(now, domain.ActionAllowed)
	series.Record(now.Add(300*time.Millisecond), domain.ActionBlocked)
	series.Record(now.Add(600*time.Millisecond), domain.ActionRedirected)

	buckets := series.Buckets()
	last := buckets[len(buckets)-1]
	assert.Equal(t, 1, last.Valid)
	assert.Equal(t, 1, last.Blocked)

	series.Record(now.Add(time.Second), domain.ActionAllowed)
	buckets = series.Buckets()
	require.Len(t, buckets, 4)
	assert.Equal(t, "9:5:8", buckets[3].Time)
	assert.Equal(t, 1, buckets[3].Valid)
	assert.Equal(t, "9:5:7", buckets[2].Time)
}

func TestTrafficSeries_Tick(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 5, 7, 0, time.UTC)
	series := NewTrafficSeries(4, now)

	assert.False(t, series.Tick(now.Add(500*time.Millisecond)))
	assert.True(t, series.Tick(now.Add(time.Second)))

	buckets := series.Buckets()
	assert.Equal(t, "9:5:8", buckets[3].Time)
	assert.Zero(t, buckets[3].Valid+buckets[3].Blocked)
}

func TestTrafficSeries_LateRecordNeverRollsBack(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	series := NewTrafficSeries(domain.TrafficSeriesSize, now)

	series.Record(now.Add(time.Second), domain.ActionAllowed)
	series.Record(now.Add(999*time.Millisecond), domain.ActionBlocked)
	series.Record(now.Add(-time.Hour), domain.ActionBlocked)
	assert.False(t, series.Tick(now.Add(500*time.Millisecond)))

	buckets := series.Buckets()
	require.Len(t, buckets, domain.TrafficSeriesSize)
	for i := 1; i < len(buckets); i++ {
		require.Less(t, buckets[i-1].Second, buckets[i].Second, "series out of order at %d", i)
	}
	assert.Equal(t, "10:0:1", buckets[len(buckets)-1].Time)
	assert.Equal(t, 1, buckets[len(buckets)-1].Valid)
	assert.Equal(t, 1, buckets[len(buckets)-1].Blocked)
	assert.Equal(t, "10:0:0", buckets[len(buckets)-2].Time)
	assert.Equal(t, 1, buckets[len(buckets)-2].Blocked)
}

func TestLogBuffer_PrependNewestFirst(t *testing.T) {
	buf := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Prepend(&domain.LogEntry{ID: fmt.Sprint(i), Username: []string{"a", "b"}[i%2]})
	}

	entries := buf.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "4", entries[0].ID)
	assert.Equal(t, "2", entries[2].ID)

	own := buf.ForIdentity("a")
	require.Len(t, own, 2)
	assert.Equal(t, "4", own[0].ID)
	assert.Equal(t, "2", own[1].ID)
}

func TestLogBuffer_Restore(t *testing.T) {
	buf := NewLogBuffer(2)
	buf.Restore([]*domain.LogEntry{{ID: "c"}, nil, {ID: "b"}, {ID: "a"}})

	entries := buf.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
}
