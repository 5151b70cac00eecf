// Package app wires the gateway engine into a running process: request
// sources feed a worker pool, periodic tasks keep the traffic series and
// rate history moving, and a persister writes engine state back to the
// document store.
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

// WorkerPool evaluates request payloads concurrently against the gateway.
//
// Features:
//   - Fixed worker count for predictable resource usage
//   - Backpressure with configurable submit timeout
//   - Spill file for payloads that could not be queued in time
//   - Quarantine for payloads that made a worker panic
//   - Automatic worker restart on panic
//
// Thread Safety: All public methods are safe for concurrent access.
type WorkerPool struct {
	workerCount int
	inputChan   chan *domain.RequestPayload
	gateway     ports.Gateway
	metrics     *domain.RuntimeMetrics
	bufferSize  int

	submitTimeout time.Duration

	spill      *SpillWriter
	quarantine *QuarantineWriter
	spilled    atomic.Int64
	evaluated  atomic.Int64

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
	running  bool
	mu       sync.RWMutex
}

type WorkerPoolConfig struct {
	WorkerCount    int           // Number of worker goroutines (default: 8)
	BufferSize     int           // Input channel buffer (default: 1024)
	SubmitTimeout  time.Duration // Backpressure timeout (default: 100ms)
	SpillPath      string        // JSONL spill file (empty disables)
	QuarantinePath string        // Quarantine file (empty disables)
}

func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:   8,
		BufferSize:    1024,
		SubmitTimeout: 100 * time.Millisecond,
	}
}

// NewWorkerPool creates a configured worker pool.
//
// Parameters:
//   - config: Pool configuration options
//   - gateway: Engine every payload is evaluated against
//   - metrics: Runtime metrics collector (may be nil)
func NewWorkerPool(config WorkerPoolConfig, gateway ports.Gateway, metrics *domain.RuntimeMetrics) *WorkerPool {
	defaults := DefaultWorkerPoolConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = defaults.SubmitTimeout
	}

	wp := &WorkerPool{
		workerCount:   config.WorkerCount,
		inputChan:     make(chan *domain.RequestPayload, config.BufferSize),
		gateway:       gateway,
		metrics:       metrics,
		bufferSize:    config.BufferSize,
		submitTimeout: config.SubmitTimeout,
		stopChan:      make(chan struct{}),
	}

	if config.SpillPath != "" {
		spill, err := NewSpillWriter(config.SpillPath)
		if err != nil {
			log.Error().Err(err).Str("path", config.SpillPath).Msg("Failed to create spill writer")
		} else {
			wp.spill = spill
		}
	}
	if config.QuarantinePath != "" {
		quarantine, err := NewQuarantineWriter(config.QuarantinePath)
		if err != nil {
			log.Error().Err(err).Str("path", config.QuarantinePath).Msg("Failed to create quarantine writer")
		} else {
			wp.quarantine = quarantine
		}
	}

	return wp
}

// Start launches the workers. Idempotent.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.mu.Lock()
	if wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = true
	wp.mu.Unlock()

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	if wp.metrics != nil {
		wp.metrics.SetActiveWorkers(wp.workerCount)
	}

	log.Info().
		Int("workers", wp.workerCount).
		Int("buffer", wp.bufferSize).
		Bool("spill", wp.spill != nil).
		Msg("Worker pool started")
}

// worker evaluates payloads until the input closes or the pool stops. A
// panicking evaluation is quarantined and the worker restarts.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	var current *domain.RequestPayload

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Int("worker_id", id).
				Msg("Worker panic recovered")

			if wp.quarantine != nil {
				if err := wp.quarantine.WriteToxicPayload(id, r, current); err != nil {
					log.Error().Err(err).Int("worker_id", id).Msg("Failed to quarantine payload")
				}
			}

			wp.wg.Add(1)
			go wp.worker(ctx, id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wp.stopChan:
			wp.drain(ctx)
			return
		case req, ok := <-wp.inputChan:
			if !ok {
				return
			}
			current = req
			wp.evaluate(ctx, req)
			current = nil
		}
	}
}

// drain evaluates whatever is still buffered once Stop was requested, so
// accepted payloads are never silently dropped.
func (wp *WorkerPool) drain(ctx context.Context) {
	for req := range wp.inputChan {
		wp.evaluate(ctx, req)
	}
}

func (wp *WorkerPool) evaluate(ctx context.Context, req *domain.RequestPayload) {
	status := wp.gateway.Evaluate(ctx, req)
	wp.evaluated.Add(1)
	if wp.metrics != nil {
		wp.metrics.IncrementEvaluated()
	}
	log.Debug().
		Str("request_id", req.ID).
		Str("identity", req.Username).
		Int("status", status).
		Msg("Request evaluated")
}

// Submit queues a payload without blocking past the submit timeout. Payloads
// that still do not fit go to the spill file when one is configured.
//
// Returns:
//   - true if queued or spilled
//   - false if the pool is not running or every fallback failed
func (wp *WorkerPool) Submit(req *domain.RequestPayload) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if !wp.running {
		return false
	}

	select {
	case wp.inputChan <- req:
		wp.dispatched()
		return true
	default:
	}

	timer := time.NewTimer(wp.submitTimeout)
	defer timer.Stop()
	select {
	case wp.inputChan <- req:
		wp.dispatched()
		return true
	case <-timer.C:
	}

	if wp.spill == nil {
		return false
	}
	if err := wp.spill.WritePayload(req); err != nil {
		log.Error().Err(err).Msg("Failed to spill payload")
		return false
	}
	wp.spilled.Add(1)
	return true
}

// SubmitBlocking blocks until the payload is queued or ctx is cancelled.
func (wp *WorkerPool) SubmitBlocking(ctx context.Context, req *domain.RequestPayload) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if !wp.running {
		return false
	}

	select {
	case wp.inputChan <- req:
		wp.dispatched()
		return true
	case <-ctx.Done():
		return false
	}
}

func (wp *WorkerPool) dispatched() {
	if wp.metrics != nil {
		wp.metrics.IncrementDispatched()
	}
}

// Stop closes the input, lets workers drain it and releases the writers.
// Idempotent.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.mu.Lock()
		wp.running = false
		close(wp.inputChan)
		wp.mu.Unlock()

		close(wp.stopChan)
		wp.wg.Wait()

		if wp.spill != nil {
			if err := wp.spill.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close spill writer")
			}
		}
		if wp.quarantine != nil {
			if err := wp.quarantine.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close quarantine writer")
			}
		}
		if wp.metrics != nil {
			wp.metrics.SetActiveWorkers(0)
		}

		if n := wp.spilled.Load(); n > 0 {
			log.Warn().Int64("spilled", n).Msg("Worker pool stopped with spilled payloads")
		} else {
			log.Info().Int64("evaluated", wp.evaluated.Load()).Msg("Worker pool stopped")
		}
	})
}

func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

func (wp *WorkerPool) Evaluated() int64 {
	return wp.evaluated.Load()
}

func (wp *WorkerPool) Spilled() int64 {
	return wp.spilled.Load()
}

func (wp *WorkerPool) QueueLength() int {
	return len(wp.inputChan)
}

// QueueUtilization returns percentage of input channel capacity in use.
func (wp *WorkerPool) QueueUtilization() float64 {
	if wp.bufferSize == 0 {
		return 0
	}
	return float64(len(wp.inputChan)) / float64(wp.bufferSize) * 100
}

func (wp *WorkerPool) QueueCapacity() int {
	return wp.bufferSize
}
