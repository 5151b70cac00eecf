package gateway

import (
	"sync"
	"time"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// TrafficSeries is a fixed-length series of per-second buckets, oldest first.
type TrafficSeries struct {
	mu      sync.Mutex
	buckets []domain.TrafficBucket
	size    int
}

// NewTrafficSeries pre-fills size empty buckets ending at now.
func NewTrafficSeries(size int, now time.Time) *TrafficSeries {
	if size <= 0 {
		size = domain.TrafficSeriesSize
	}
	buckets := make([]domain.TrafficBucket, size)
	for i := range buckets {
		buckets[i] = domain.NewTrafficBucket(now.Add(-time.Duration(size-1-i) * time.Second))
	}
	return &TrafficSeries{buckets: buckets, size: size}
}

// Record counts an outcome in the bucket for now's second. Redirected
// outcomes still open a new bucket but count in neither column. A time
// older than the newest bucket counts into its own bucket when still held,
// else into the newest; the series never rolls backwards.
func (t *TrafficSeries) Record(now time.Time, action domain.Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bucket := t.bucketLocked(now)
	switch action {
	case domain.ActionAllowed:
		bucket.Valid++
	case domain.ActionBlocked:
		bucket.Blocked++
	}
}

func (t *TrafficSeries) bucketLocked(now time.Time) *domain.TrafficBucket {
	sec := now.Unix()
	newest := &t.buckets[len(t.buckets)-1]
	if sec > newest.Second {
		t.rollLocked(now)
		return &t.buckets[len(t.buckets)-1]
	}
	for i := len(t.buckets) - 1; i >= 0; i-- {
		if t.buckets[i].Second == sec {
			return &t.buckets[i]
		}
	}
	return newest
}

// Tick appends an empty bucket when the wall-clock second has moved past the
// newest bucket, so the series keeps scrolling through idle periods.
func (t *TrafficSeries) Tick(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Unix() <= t.buckets[len(t.buckets)-1].Second {
		return false
	}
	t.rollLocked(now)
	return true
}

func (t *TrafficSeries) rollLocked(now time.Time) {
	copy(t.buckets, t.buckets[1:])
	t.buckets[len(t.buckets)-1] = domain.NewTrafficBucket(now)
}

func (t *TrafficSeries) Buckets() []domain.TrafficBucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.TrafficBucket, len(t.buckets))
	copy(out, t.buckets)
	return out
}
