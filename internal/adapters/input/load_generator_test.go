package input

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

type scriptedGateway struct {
	mu       sync.Mutex
	cfg      domain.GatewayConfig
	statuses []int
	requests []*domain.RequestPayload
	issued   int
}

func (g *scriptedGateway) Evaluate(_ context.Context, req *domain.RequestPayload) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.statuses) == 0 {
		return 200
	}
	status := g.statuses[0]
	g.statuses = g.statuses[1:]
	return status
}

func (g *scriptedGateway) IssueToken(string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	return "sk_test"
}

func (g *scriptedGateway) Config() domain.GatewayConfig { return g.cfg }

func newGenerator(t *testing.T, gw *scriptedGateway, cfg LoadConfig) (*LoadGenerator, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	cfg.Clock = mock
	if cfg.RPS == 0 {
		cfg.RPS = 5
	}
	g, err := NewLoadGenerator(gw, cfg)
	require.NoError(t, err)
	return g, mock
}

func TestNewLoadGenerator_RPSRange(t *testing.T) {
	gw := &scriptedGateway{cfg: domain.DefaultConfig()}
	for _, rps := range []int{0, 11, -1} {
		_, err := NewLoadGenerator(gw, LoadConfig{RPS: rps})
		assert.ErrorIs(t, err, ErrLoadRPS)
	}
	_, err := NewLoadGenerator(gw, LoadConfig{RPS: 10})
	assert.NoError(t, err)
}

func TestLoadGenerator_PayloadShape(t *testing.T) {
	gw := &scriptedGateway{cfg: domain.DefaultConfig()}
	g, _ := newGenerator(t, gw, LoadConfig{Identity: "shark", Malicious: true, UseToken: true})

	res := g.Fire(context.Background())
	require.True(t, res.Sent)

	req := gw.requests[0]
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/api/v1/users/data", req.Endpoint)
	assert.Equal(t, MaliciousBody, req.Body)
	assert.Equal(t, "shark", req.Username)
	assert.Equal(t, LoadUserAgent, req.Headers["User-Agent"])
	assert.Equal(t, "sk_test", req.PresentedToken())
	assert.Equal(t, 1, gw.issued)
}

func TestLoadGenerator_GetHasNoBodyOrToken(t *testing.T) {
	gw := &scriptedGateway{cfg: domain.DefaultConfig()}
	g, _ := newGenerator(t, gw, LoadConfig{})

	g.Fire(context.Background())
	assert.Empty(t, gw.requests[0].Body)
	assert.Nil(t, gw.requests[0].AuthToken)
}

func TestLoadGenerator_ClientWindowBudget(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.RateLimitMax = 3
	gw := &scriptedGateway{cfg: cfg}
	g, mock := newGenerator(t, gw, LoadConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, g.Fire(ctx).Sent)
	}
	res := g.Fire(ctx)
	assert.True(t, res.Throttled)
	assert.False(t, res.Sent)

	mock.Add(59 * time.Second)
	assert.True(t, g.Fire(ctx).Throttled)

	mock.Add(time.Second)
	assert.True(t, g.Fire(ctx).Sent)
	assert.Equal(t, int64(4), g.Sent())
	assert.Equal(t, int64(2), g.Skipped())
}

func TestLoadGenerator_SelfLimitBackoff(t *testing.T) {
	gw := &scriptedGateway{cfg: domain.DefaultConfig(), statuses: []int{429, 429, 429, 200}}
	g, _ := newGenerator(t, gw, LoadConfig{SelfLimit: true})
	ctx := context.Background()

	roll := 0.5
	g.rng = func() float64 { return roll }

	for i := 0; i < 3; i++ {
		assert.Equal(t, 429, g.Fire(ctx).Status)
	}
	assert.True(t, g.BackingOff())
	assert.True(t, g.Fire(ctx).BackedOff)

	roll = 0.05
	res := g.Fire(ctx)
	assert.True(t, res.Sent)
	assert.Equal(t, 200, res.Status)
	assert.False(t, g.BackingOff())
	assert.Equal(t, int64(3), g.Rejected())
}

func TestLoadGenerator_NoBackoffWhenDisabled(t *testing.T) {
	gw := &scriptedGateway{cfg: domain.DefaultConfig(), statuses: []int{429, 429, 429, 429}}
	g, _ := newGenerator(t, gw, LoadConfig{})
	g.rng = func() float64 { return 0.99 }

	for i := 0; i < 4; i++ {
		assert.True(t, g.Fire(context.Background()).Sent)
	}
	assert.False(t, g.BackingOff())
	assert.Equal(t, 429, g.LastStatus())
}

func TestLoadGenerator_RunStopsOnCancel(t *testing.T) {
	gw := &scriptedGateway{cfg: domain.DefaultConfig()}
	g, err := NewLoadGenerator(gw, LoadConfig{RPS: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	assert.Eventually(t, func() bool { return g.Sent() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("generator did not stop")
	}
}
