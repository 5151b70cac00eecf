package gateway

import (
	"sort"
	"sync"
)

// BanThreshold is the violation count at which a source is banned for good.
const BanThreshold = 5

type ViolationResult struct {
	Count      int
	JustBanned bool
}

// ViolationLedger counts blocked outcomes per source and owns the permanent
// ban set. Counts never decrease and bans are never lifted.
type ViolationLedger struct {
	mu        sync.RWMutex
	counts    map[string]int
	banned    map[string]struct{}
	banOrder  []string
	threshold int
}

func NewViolationLedger() *ViolationLedger {
	return &ViolationLedger{
		counts:    make(map[string]int),
		banned:    make(map[string]struct{}),
		threshold: BanThreshold,
	}
}

// RecordViolation increments the source's counter and bans it the first time
// the counter reaches the threshold. It is the only way into the ban set.
func (l *ViolationLedger) RecordViolation(source string) ViolationResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[source]++
	count := l.counts[source]

	justBanned := false
	if count >= l.threshold {
		if _, ok := l.banned[source]; !ok {
			l.banned[source] = struct{}{}
			l.banOrder = append(l.banOrder, source)
			justBanned = true
		}
	}
	return ViolationResult{Count: count, JustBanned: justBanned}
}

func (l *ViolationLedger) IsBanned(source string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.banned[source]
	return ok
}

func (l *ViolationLedger) Count(source string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[source]
}

func (l *ViolationLedger) BanCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.banned)
}

// Banned returns the ban set in insertion order.
func (l *ViolationLedger) Banned() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.banOrder))
	copy(out, l.banOrder)
	return out
}

func (l *ViolationLedger) Violations() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Restore seeds the ledger from persisted state. Existing entries are kept;
// counts only move upward and bans are only added.
func (l *ViolationLedger) Restore(violations map[string]int, bans []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sources := make([]string, 0, len(violations))
	for source := range violations {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		if n := violations[source]; n > l.counts[source] {
			l.counts[source] = n
		}
	}
	for _, source := range bans {
		if _, ok := l.banned[source]; ok || source == "" {
			continue
		}
		l.banned[source] = struct{}{}
		l.banOrder = append(l.banOrder, source)
	}
}
