package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

// Engine is the gateway surface the runner drives.
type Engine interface {
	ports.Gateway
	StateSource
	TickTraffic() bool
	PruneHistory() int
	OnMutate(fn func())
}

type RunnerConfig struct {
	Workers       WorkerPoolConfig
	Clock         clock.Clock
	TrafficTick   time.Duration // default 1s
	PruneInterval time.Duration // default 30s
	FlushInterval time.Duration // default 2s
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.TrafficTick <= 0 {
		c.TrafficTick = time.Second
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = 30 * time.Second
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	return c
}

// Runner owns the process lifecycle: readers feed the worker pool, drivers
// talk to the engine directly, and the scheduler keeps the periodic tasks
// running until Stop.
type Runner struct {
	engine    Engine
	readers   []ports.RequestReader
	drivers   []ports.TrafficDriver
	pool      *WorkerPool
	persister *Persister
	metrics   *domain.RuntimeMetrics
	config    RunnerConfig

	scheduler *Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	readersWg sync.WaitGroup
	running   bool
	mu        sync.RWMutex

	lastEvaluated int64
	lastRateCheck time.Time
}

// NewRunner wires an engine to its traffic sources. persister may be nil
// for ephemeral runs.
func NewRunner(engine Engine, readers []ports.RequestReader, drivers []ports.TrafficDriver, persister *Persister, config RunnerConfig) *Runner {
	config = config.withDefaults()
	metrics := domain.NewRuntimeMetrics(config.Clock.Now())

	r := &Runner{
		engine:        engine,
		readers:       readers,
		drivers:       drivers,
		pool:          NewWorkerPool(config.Workers, engine, metrics),
		persister:     persister,
		metrics:       metrics,
		config:        config,
		lastRateCheck: config.Clock.Now(),
	}
	if persister != nil {
		engine.OnMutate(persister.MarkDirty)
	}
	return r
}

func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)
	// The pool outlives r.ctx so Stop can drain what readers already queued.
	r.pool.Start(ctx)

	r.scheduler = NewScheduler(r.ctx, r.config.Clock)
	r.scheduler.Every("traffic-tick", r.config.TrafficTick, func(context.Context) {
		r.engine.TickTraffic()
	})
	r.scheduler.Every("rate-history-prune", r.config.PruneInterval, func(context.Context) {
		if n := r.engine.PruneHistory(); n > 0 {
			log.Debug().Int("sources", n).Msg("Pruned idle rate-limit history")
		}
	})
	r.scheduler.Every("runtime-metrics", time.Second, func(context.Context) {
		r.updateRate()
	})
	r.scheduler.Every("memory-metrics", 5*time.Second, func(context.Context) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		r.metrics.SetMemoryUsage(float64(m.Alloc) / 1024 / 1024)
	})
	if r.persister != nil {
		r.scheduler.Every("state-flush", r.config.FlushInterval, func(ctx context.Context) {
			_ = r.persister.Flush(ctx)
		})
	}

	for _, reader := range r.readers {
		entries, errs := reader.Start(r.ctx)
		r.readersWg.Add(1)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer r.readersWg.Done()
			r.processRequests(entries, errs)
		}()
	}

	for _, driver := range r.drivers {
		r.wg.Add(1)
		go func(d ports.TrafficDriver) {
			defer r.wg.Done()
			if err := d.Run(r.ctx); err != nil && r.ctx.Err() == nil {
				log.Error().Err(err).Msg("Traffic driver stopped")
			}
		}(driver)
	}

	log.Info().
		Int("readers", len(r.readers)).
		Int("drivers", len(r.drivers)).
		Msg("Runner started")
	return nil
}

func (r *Runner) processRequests(entries <-chan *domain.RequestPayload, errs <-chan error) {
	for {
		select {
		case <-r.ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Error().Err(err).Msg("Error reading requests")
		case req, ok := <-entries:
			if !ok {
				log.Debug().Msg("Request source exhausted")
				return
			}
			if !r.pool.SubmitBlocking(r.ctx, req) {
				log.Warn().Str("request_id", req.ID).Msg("Failed to submit request to worker pool")
			}
		}
	}
}

func (r *Runner) updateRate() {
	now := r.config.Clock.Now()
	elapsed := now.Sub(r.lastRateCheck).Seconds()
	if elapsed < 1.0 {
		return
	}
	current := r.metrics.Evaluated()
	r.metrics.SetRPS(float64(current-r.lastEvaluated) / elapsed)
	r.lastEvaluated = current
	r.lastRateCheck = now
}

// WaitReaders blocks until every reader's channel has closed, which for a
// non-following replay means the file was fully read.
func (r *Runner) WaitReaders() {
	r.readersWg.Wait()
}

// Stop shuts down sources first, then drains the pool, then flushes state
// one last time.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	log.Info().Msg("Stopping runner gracefully...")

	for _, reader := range r.readers {
		if err := reader.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping reader")
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	r.pool.Stop()
	r.scheduler.Stop()

	if r.persister != nil {
		r.persister.MarkDirty()
		if err := r.persister.Flush(context.Background()); err != nil {
			log.Error().Err(err).Msg("Final state flush failed")
		}
	}

	log.Info().Msg("Runner stopped")
}

func (r *Runner) Metrics() domain.RuntimeSnapshot {
	return r.metrics.Snapshot(r.config.Clock.Now())
}

func (r *Runner) Pool() *WorkerPool {
	return r.pool
}

func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// WaitForSignal blocks until SIGINT/SIGTERM or ctx is done, then stops.
func (r *Runner) WaitForSignal(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
	}

	r.Stop()
}

func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	r.WaitForSignal(ctx)
	return nil
}

// RuntimeMetrics exposes the live counters for exporters that sample them.
func (r *Runner) RuntimeMetrics() *domain.RuntimeMetrics {
	return r.metrics
}
