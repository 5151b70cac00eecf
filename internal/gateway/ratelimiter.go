package gateway

import (
	"hash/maphash"
	"sync"
)

// hashSeed is the process-wide seed for source address sharding.
var hashSeed = maphash.MakeSeed()

func shardIndex(key string, n int) int {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.WriteString(key)
	return int(h.Sum64() % uint64(n))
}

// DefaultRateWindowMs is the sliding window length in milliseconds.
const DefaultRateWindowMs int64 = 60_000

// RateDecision is the result of one rate limit check.
type RateDecision struct {
	Allowed     bool
	ActiveCount int // in-window requests before this one
}

// RateLimiter keeps a per-source list of request timestamps and evaluates a
// sliding window over it. There is no global limit.
//
// Thread Safety: Safe for concurrent access. Sources are spread over
// independently locked shards.
type RateLimiter struct {
	shards []*historyShard
}

type historyShard struct {
	mu      sync.Mutex
	history map[string][]int64 // source -> ascending timestamps (ms)
}

func NewRateLimiter(shardCount int) *RateLimiter {
	if shardCount <= 0 {
		shardCount = 16
	}
	shards := make([]*historyShard, shardCount)
	for i := range shards {
		shards[i] = &historyShard{history: make(map[string][]int64)}
	}
	return &RateLimiter{shards: shards}
}

func (r *RateLimiter) shard(source string) *historyShard {
	return r.shards[shardIndex(source, len(r.shards))]
}

// Check prunes timestamps at or before now-window, records now whatever the
// outcome, and reports the source over limit when at least max requests
// were already inside the window.
//
// Parameters:
//   - source: Client source address
//   - nowMs: Current time in Unix milliseconds
//   - windowMs: Window length in milliseconds
//   - max: Requests allowed per window
//
// Returns:
//   - RateDecision with the pre-append in-window count
func (r *RateLimiter) Check(source string, nowMs, windowMs int64, max int) RateDecision {
	s := r.shard(source)
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := nowMs - windowMs
	kept := s.history[source][:0]
	for _, ts := range s.history[source] {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	active := len(kept)
	s.history[source] = append(kept, nowMs)

	return RateDecision{Allowed: active < max, ActiveCount: active}
}

// ActiveCount returns the in-window count for source without recording a
// request.
func (r *RateLimiter) ActiveCount(source string, nowMs, windowMs int64) int {
	s := r.shard(source)
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := nowMs - windowMs
	count := 0
	for _, ts := range s.history[source] {
		if ts > cutoff {
			count++
		}
	}
	return count
}

// Prune drops sources whose entire history has left the window. Lookups
// already prune lazily; this only bounds memory for idle sources.
//
// Returns:
//   - Number of sources removed
func (r *RateLimiter) Prune(nowMs, windowMs int64) int {
	cutoff := nowMs - windowMs
	removed := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for source, hist := range s.history {
			if len(hist) == 0 || hist[len(hist)-1] <= cutoff {
				delete(s.history, source)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Sources returns the number of tracked source addresses.
func (r *RateLimiter) Sources() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.history)
		s.mu.Unlock()
	}
	return n
}
