package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

// StateSource produces the snapshot the persister writes.
type StateSource interface {
	Snapshot() domain.State
}

// Persister writes engine state asynchronously. Evaluations only flip the
// dirty flag; the flush runs on the scheduler and at shutdown.
type Persister struct {
	store  ports.DocumentStore
	source StateSource

	dirty  atomic.Bool
	saves  atomic.Int64
	failed atomic.Int64
	mu     sync.Mutex
}

func NewPersister(store ports.DocumentStore, source StateSource) *Persister {
	return &Persister{store: store, source: source}
}

// MarkDirty is safe to call from any goroutine and never blocks.
func (p *Persister) MarkDirty() {
	p.dirty.Store(true)
}

func (p *Persister) Dirty() bool {
	return p.dirty.Load()
}

// Flush saves a fresh snapshot when state changed since the last save. A
// failed save leaves the flag set so the next flush retries.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.dirty.Swap(false) {
		return nil
	}
	if err := SaveState(ctx, p.store, p.source.Snapshot()); err != nil {
		p.dirty.Store(true)
		p.failed.Add(1)
		log.Error().Err(err).Msg("Failed to persist gateway state")
		return err
	}
	p.saves.Add(1)
	return nil
}

func (p *Persister) Saves() int64 {
	return p.saves.Load()
}

func (p *Persister) Failures() int64 {
	return p.failed.Load()
}
