package app

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

type mockGateway struct {
	evaluated atomic.Int64
	panicOn   string
	block     chan struct{}
}

func (m *mockGateway) Evaluate(ctx context.Context, req *domain.RequestPayload) int {
	if m.block != nil {
		<-m.block
	}
	if m.panicOn != "" && req.Endpoint == m.panicOn {
		panic("intentional panic for testing")
	}
	m.evaluated.Add(1)
	return 200
}

func (m *mockGateway) IssueToken(string) string { return "sk_test" }

func (m *mockGateway) Config() domain.GatewayConfig { return domain.DefaultConfig() }

func payload(endpoint string) *domain.RequestPayload {
	return domain.NewRequestPayload("GET", endpoint, time.Now())
}

func TestWorkerPool_Basic(t *testing.T) {
	metrics := domain.NewRuntimeMetrics(time.Now())
	gw := &mockGateway{}

	pool := NewWorkerPool(WorkerPoolConfig{WorkerCount: 4, BufferSize: 100}, gw, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	for i := 0; i < 10; i++ {
		if !pool.SubmitBlocking(ctx, payload("/test")) {
			t.Error("Failed to submit payload")
		}
	}
	pool.Stop()

	if gw.evaluated.Load() != 10 {
		t.Errorf("Expected 10 evaluations, got %d", gw.evaluated.Load())
	}
	snap := metrics.Snapshot(time.Now())
	assert.Equal(t, int64(10), snap.Dispatched)
	assert.Equal(t, int64(10), snap.Evaluated)
	assert.Zero(t, snap.ActiveWorkers)
}

func TestWorkerPool_StopDrainsQueue(t *testing.T) {
	gw := &mockGateway{}
	pool := NewWorkerPool(WorkerPoolConfig{WorkerCount: 1, BufferSize: 500}, gw, nil)

	ctx := context.Background()
	pool.Start(ctx)
	for i := 0; i < 300; i++ {
		require.True(t, pool.Submit(payload("/queued")))
	}
	pool.Stop()

	assert.Equal(t, int64(300), gw.evaluated.Load())
	assert.False(t, pool.IsRunning())
	assert.False(t, pool.Submit(payload("/late")))
}

func TestWorkerPool_PanicRecovery(t *testing.T) {
	gw := &mockGateway{panicOn: "/panic"}
	quarantinePath := filepath.Join(t.TempDir(), "quarantine.jsonl")

	pool := NewWorkerPool(WorkerPoolConfig{
		WorkerCount:    2,
		BufferSize:     100,
		QuarantinePath: quarantinePath,
	}, gw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	pool.SubmitBlocking(ctx, payload("/panic"))
	for i := 0; i < 5; i++ {
		pool.SubmitBlocking(ctx, payload("/ok"))
	}

	assert.Eventually(t, func() bool { return gw.evaluated.Load() == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, pool.IsRunning(), "pool should survive a panicking evaluation")
	pool.Stop()

	data, err := os.ReadFile(quarantinePath)
	require.NoError(t, err)

	var entry QuarantineEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "intentional panic for testing", entry.PanicError)
	require.NotNil(t, entry.Payload)
	assert.Equal(t, "/panic", entry.Payload.Endpoint)
}

func TestWorkerPool_SpillWhenSaturated(t *testing.T) {
	gw := &mockGateway{block: make(chan struct{})}
	spillPath := filepath.Join(t.TempDir(), "spill.jsonl")

	pool := NewWorkerPool(WorkerPoolConfig{
		WorkerCount:   1,
		BufferSize:    1,
		SubmitTimeout: 5 * time.Millisecond,
		SpillPath:     spillPath,
	}, gw, nil)
	pool.Start(context.Background())

	for i := 0; i < 10; i++ {
		require.True(t, pool.Submit(payload("/burst")))
	}
	assert.Positive(t, pool.Spilled())

	close(gw.block)
	pool.Stop()

	assert.Equal(t, int64(10), gw.evaluated.Load()+pool.Spilled())

	f, err := os.Open(spillPath)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var req domain.RequestPayload
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &req))
		assert.Equal(t, "/burst", req.Endpoint)
		lines++
	}
	assert.Equal(t, int(pool.Spilled()), lines)
}

func TestWorkerPool_ConcurrentSubmit(t *testing.T) {
	gw := &mockGateway{}
	pool := NewWorkerPool(WorkerPoolConfig{WorkerCount: 8, BufferSize: 1000}, gw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var wg sync.WaitGroup
	submitCount := 100
	goroutines := 10
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < submitCount; i++ {
				pool.SubmitBlocking(ctx, payload("/concurrent"))
			}
		}()
	}
	wg.Wait()
	pool.Stop()

	expected := int64(submitCount * goroutines)
	if gw.evaluated.Load() != expected {
		t.Errorf("Expected %d evaluations, got %d", expected, gw.evaluated.Load())
	}
}
