package gateway

import "sync"

// stripedLock serializes work per source address. Distinct sources usually
// land on distinct stripes; collisions only cost throughput.
type stripedLock struct {
	stripes []sync.Mutex
}

func newStripedLock(n int) *stripedLock {
	if n <= 0 {
		n = 64
	}
	return &stripedLock{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its release func.
func (l *stripedLock) Lock(key string) func() {
	m := &l.stripes[shardIndex(key, len(l.stripes))]
	m.Lock()
	return m.Unlock
}
