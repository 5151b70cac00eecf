package gateway

import (
	"sync"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// LogBuffer keeps the newest evaluation log entries, newest first.
type LogBuffer struct {
	mu       sync.RWMutex
	entries  []*domain.LogEntry
	capacity int
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = domain.MaxVisibleLogEntries
	}
	return &LogBuffer{entries: make([]*domain.LogEntry, 0, capacity), capacity: capacity}
}

// Prepend inserts entry at the head and drops the oldest beyond capacity.
func (b *LogBuffer) Prepend(entry *domain.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, nil)
	}
	copy(b.entries[1:], b.entries[:len(b.entries)-1])
	b.entries[0] = entry
}

func (b *LogBuffer) Entries() []*domain.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.LogEntry, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Clone()
	}
	return out
}

// ForIdentity returns the entries attributed to one identity, newest first.
func (b *LogBuffer) ForIdentity(identity string) []*domain.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*domain.LogEntry
	for _, e := range b.entries {
		if e.Username == identity {
			out = append(out, e.Clone())
		}
	}
	return out
}

func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Restore replaces the buffer with persisted entries, given newest first.
func (b *LogBuffer) Restore(entries []*domain.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = b.entries[:0]
	for _, e := range entries {
		if e == nil {
			continue
		}
		if len(b.entries) == b.capacity {
			break
		}
		b.entries = append(b.entries, e.Clone())
	}
}
