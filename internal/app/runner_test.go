package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/gateway"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

type sliceReader struct {
	payloads []*domain.RequestPayload
}

func (r *sliceReader) Start(ctx context.Context) (<-chan *domain.RequestPayload, <-chan error) {
	out := make(chan *domain.RequestPayload)
	errs := make(chan error)
	go func() {
		defer close(out)
		defer close(errs)
		for _, p := range r.payloads {
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errs
}

func (r *sliceReader) Stop() error { return nil }

type countingDriver struct {
	gw    *gateway.Evaluator
	sends int
}

func (d *countingDriver) Run(ctx context.Context) error {
	for i := 0; i < d.sends; i++ {
		req := domain.NewRequestPayload("GET", "/driver", time.Now())
		req.Username = "blue"
		d.gw.Evaluate(ctx, req)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunner_ReplayPersistsState(t *testing.T) {
	mock := clock.NewMock()
	state := domain.DefaultState()
	state.Config.JWTRequired = false
	gw := gateway.NewEvaluator(gateway.Options{Clock: mock}, state)

	reader := &sliceReader{}
	for i := 0; i < 40; i++ {
		req := domain.NewRequestPayload("GET", fmt.Sprintf("/replay/%d", i), time.Now())
		req.Username = []string{"zap", "ness"}[i%2]
		reader.payloads = append(reader.payloads, req)
	}
	driver := &countingDriver{gw: gw, sends: 3}

	store := newFakeStore()
	persister := NewPersister(store, gw)
	runner := NewRunner(gw, []ports.RequestReader{reader}, []ports.TrafficDriver{driver}, persister, RunnerConfig{
		Workers: WorkerPoolConfig{WorkerCount: 4, BufferSize: 16},
		Clock:   mock,
	})

	require.NoError(t, runner.Start(context.Background()))
	runner.WaitReaders()
	runner.Stop()

	assert.Equal(t, int64(40), runner.Pool().Evaluated())
	assert.Equal(t, int64(43), gw.Stats().TotalRequests)
	assert.False(t, runner.IsRunning())

	loaded := LoadState(context.Background(), store)
	assert.Equal(t, int64(43), loaded.Stats.TotalRequests)
	assert.Len(t, loaded.Logs, 43)
	assert.False(t, loaded.Config.JWTRequired)
}

func TestRunner_TrafficTickScheduled(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	gw := gateway.NewEvaluator(gateway.Options{Clock: mock}, domain.DefaultState())

	runner := NewRunner(gw, nil, nil, nil, RunnerConfig{Clock: mock})
	require.NoError(t, runner.Start(context.Background()))
	defer runner.Stop()

	mock.Add(time.Second)
	assert.Eventually(t, func() bool {
		buckets := gw.Traffic()
		return buckets[len(buckets)-1].Time == "9:0:1"
	}, time.Second, time.Millisecond)
}
