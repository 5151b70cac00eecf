package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

func newTestEvaluator(t *testing.T, mutate func(*domain.GatewayConfig)) (*Evaluator, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 14, 9, 5, 7, 0, time.UTC))

	state := domain.DefaultState()
	if mutate != nil {
		mutate(&state.Config)
	}
	return NewEvaluator(Options{Clock: mock}, state), mock
}

func request(identity, endpoint string) *domain.RequestPayload {
	req := domain.NewRequestPayload("GET", endpoint, time.Unix(0, 0))
	req.Username = identity
	return req
}

func noAuth(cfg *domain.GatewayConfig) { cfg.JWTRequired = false }

func noLimits(cfg *domain.GatewayConfig) {
	cfg.JWTRequired = false
	cfg.RateLimitEnabled = false
}

func TestEvaluator_RateLimitEscalatesToBan(t *testing.T) {
	gw, _ := newTestEvaluator(t, noAuth)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.Equal(t, http.StatusOK, gw.Evaluate(ctx, request("zap", "/api/data")), "request %d", i+1)
	}

	status := gw.Evaluate(ctx, request("zap", "/api/data"))
	assert.Equal(t, http.StatusTooManyRequests, status)
	entry := gw.Logs()[0]
	assert.Equal(t, domain.ThreatRateLimitViolation, entry.ThreatDetected)
	assert.Equal(t, "Rate limit exceeded. Max 60 RPM.", entry.Details)
	assert.Equal(t, "192.168.1.101", entry.ClientIP)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusTooManyRequests, gw.Evaluate(ctx, request("zap", "/api/data")))
	}
	assert.False(t, gw.IsBanned("192.168.1.101"))

	assert.Equal(t, http.StatusTooManyRequests, gw.Evaluate(ctx, request("zap", "/api/data")))
	assert.True(t, gw.IsBanned("192.168.1.101"))
	assert.Equal(t, "Rate limit exceeded. Max 60 RPM. [CLIENT BANNED]", gw.Logs()[0].Details)

	assert.Equal(t, http.StatusForbidden, gw.Evaluate(ctx, request("zap", "/api/data")))
	banned := gw.Logs()[0]
	assert.Equal(t, domain.ThreatBannedIP, banned.ThreatDetected)
	assert.Equal(t, "Connection refused: Client banned.", banned.Details)
	assert.Equal(t, int64(1), banned.Duration)

	stats := gw.Stats()
	assert.Equal(t, int64(65), stats.TotalRequests, "banned requests are not counted")
	assert.Equal(t, int64(5), stats.BlockedRequests)
	assert.Equal(t, int64(1), stats.GlobalBans)

	p, _ := gw.Profile("zap")
	assert.Equal(t, 100, p.RiskScore)
	assert.Equal(t, domain.StatusBanned, p.Status)
}

func TestEvaluator_RateWindowSlides(t *testing.T) {
	gw, mock := newTestEvaluator(t, func(cfg *domain.GatewayConfig) {
		cfg.JWTRequired = false
		cfg.RateLimitMax = 2
	})
	ctx := context.Background()

	assert.Equal(t, http.StatusOK, gw.Evaluate(ctx, request("ness", "/")))
	assert.Equal(t, http.StatusOK, gw.Evaluate(ctx, request("ness", "/")))

	mock.Add(59_999 * time.Millisecond)
	assert.Equal(t, http.StatusTooManyRequests, gw.Evaluate(ctx, request("ness", "/")))

	mock.Add(time.Millisecond)
	assert.Equal(t, http.StatusOK, gw.Evaluate(ctx, request("ness", "/")))
	assert.Equal(t, 2, gw.ActiveRequests("192.168.1.102"))
}

func TestEvaluator_DisabledRateLimitRecordsNothing(t *testing.T) {
	gw, _ := newTestEvaluator(t, noLimits)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.Equal(t, http.StatusOK, gw.Evaluate(ctx, request("shark", "/")))
	}
	assert.Zero(t, gw.ActiveRequests("192.168.1.103"))
}

func TestEvaluator_TokenFlow(t *testing.T) {
	gw, _ := newTestEvaluator(t, func(cfg *domain.GatewayConfig) { cfg.RateLimitEnabled = false })
	ctx := context.Background()

	assert.Equal(t, http.StatusUnauthorized, gw.Evaluate(ctx, request("ness", "/secure")))
	missing := gw.Logs()[0]
	assert.Empty(t, missing.ThreatDetected)
	assert.Equal(t, "Missing authentication token.", missing.Details)

	assert.Equal(t, http.StatusUnauthorized, gw.Evaluate(ctx, request("ness", "/secure").WithToken("")))

	token := gw.IssueToken("ness")
	assert.Equal(t, http.StatusOK, gw.Evaluate(ctx, request("ness", "/secure").WithToken(token)))
	assert.Empty(t, gw.CurrentToken())
	assert.Equal(t, token, gw.LastInvalidatedToken())

	assert.Equal(t, http.StatusForbidden, gw.Evaluate(ctx, request("ness", "/secure").WithToken(token)))
	replayed := gw.Logs()[0]
	assert.Equal(t, domain.ThreatUnauthorized, replayed.ThreatDetected)
	assert.Equal(t, "Invalid or expired token.", replayed.Details)

	p, _ := gw.Profile("ness")
	assert.Equal(t, 60, p.RiskScore)
	assert.Equal(t, domain.StatusFlagged, p.Status)
	assert.Equal(t, 3, gw.Violations("192.168.1.102"))
}

func TestEvaluator_RateLimitPrecedesTokenCheck(t *testing.T) {
	gw, _ := newTestEvaluator(t, func(cfg *domain.GatewayConfig) { cfg.RateLimitMax = 1 })
	ctx := context.Background()

	token := gw.IssueToken("")
	require.Equal(t, http.StatusOK, gw.Evaluate(ctx, request("blue", "/").WithToken(token)))

	token = gw.IssueToken("")
	assert.Equal(t, http.StatusTooManyRequests, gw.Evaluate(ctx, request("blue", "/").WithToken(token)))
	assert.Equal(t, token, gw.CurrentToken(), "rate-limited request must not consume the token")
}

func TestEvaluator_AutoBanOnFifthViolation(t *testing.T) {
	gw, _ := newTestEvaluator(t, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		assert.Equal(t, http.StatusUnauthorized, gw.Evaluate(ctx, request("shark", "/admin")))
	}
	assert.Equal(t, http.StatusUnauthorized, gw.Evaluate(ctx, request("shark", "/admin")))
	assert.Equal(t, "Missing authentication token. [CLIENT BANNED]", gw.Logs()[0].Details)
	assert.True(t, gw.IsBanned("192.168.1.103"))

	token := gw.IssueToken("shark")
	assert.Equal(t, http.StatusForbidden, gw.Evaluate(ctx, request("shark", "/admin").WithToken(token)))
	assert.Equal(t, token, gw.CurrentToken(), "banned requests never reach the token check")

	logs := gw.Logs()
	require.Len(t, logs, 6)
	assert.Equal(t, domain.ThreatBannedIP, logs[0].ThreatDetected)

	p, _ := gw.Profile("shark")
	assert.Equal(t, domain.StatusBanned, p.Status)
	assert.Equal(t, 100, p.RiskScore)
	assert.Len(t, p.ActivityLog, 6) // 5 evaluations + GENERATED_TOKEN
	assert.Equal(t, int64(5), gw.Stats().TotalRequests)
}

func TestEvaluator_BannedStatusWithoutBanSet(t *testing.T) {
	mock := clock.NewMock()
	state := domain.DefaultState()
	state.Config.JWTRequired = false
	state.Clients[0].RiskScore = 100

	gw := NewEvaluator(Options{Clock: mock}, state)
	require.False(t, gw.IsBanned("192.168.1.101"))

	assert.Equal(t, http.StatusForbidden, gw.Evaluate(context.Background(), request("zap", "/")))
	assert.Equal(t, domain.ThreatBannedIP, gw.Logs()[0].ThreatDetected)
	assert.Zero(t, gw.Stats().TotalRequests)
}

func TestEvaluator_UnknownIdentityUsesLoopback(t *testing.T) {
	gw, _ := newTestEvaluator(t, noAuth)

	req := request("ghost", "/")
	assert.Equal(t, http.StatusOK, gw.Evaluate(context.Background(), req))
	assert.Equal(t, domain.LoopbackIP, req.ClientIP)

	entry := gw.Logs()[0]
	assert.Equal(t, "ghost", entry.Username)
	assert.Equal(t, domain.LoopbackIP, entry.ClientIP)
	assert.Len(t, gw.Profiles(), 5)
}

func TestEvaluator_LogBoundAndOrder(t *testing.T) {
	gw, mock := newTestEvaluator(t, noLimits)
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		gw.Evaluate(ctx, request("hat", fmt.Sprintf("/r/%d", i)))
		mock.Add(10 * time.Millisecond)
	}

	logs := gw.Logs()
	require.Len(t, logs, domain.MaxVisibleLogEntries)
	assert.Equal(t, "/r/149", logs[0].Endpoint)
	assert.Equal(t, "/r/50", logs[len(logs)-1].Endpoint)
	for i := 1; i < len(logs); i++ {
		assert.GreaterOrEqual(t, logs[i-1].Timestamp, logs[i].Timestamp)
	}

	p, _ := gw.Profile("hat")
	assert.Len(t, p.ActivityLog, domain.MaxActivityRecords)
}

func TestEvaluator_LatencyAverage(t *testing.T) {
	gw, _ := newTestEvaluator(t, noLimits)
	ctx := context.Background()

	gw.Evaluate(ctx, request("zap", "/"))
	assert.Equal(t, int64(23), gw.Stats().AvgLatency)

	gw.Evaluate(ctx, request("zap", "/"))
	assert.Equal(t, int64(12), gw.Stats().AvgLatency)
}

func TestEvaluator_TrafficSeries(t *testing.T) {
	gw, mock := newTestEvaluator(t, noLimits)
	ctx := context.Background()

	gw.Evaluate(ctx, request("zap", "/"))
	gw.Evaluate(ctx, request("zap", "/"))

	buckets := gw.Traffic()
	require.Len(t, buckets, domain.TrafficSeriesSize)
	assert.Equal(t, "9:5:7", buckets[len(buckets)-1].Time)
	assert.Equal(t, 2, buckets[len(buckets)-1].Valid)

	mock.Add(time.Second)
	assert.True(t, gw.TickTraffic())
	assert.False(t, gw.TickTraffic())
	buckets = gw.Traffic()
	assert.Equal(t, "9:5:8", buckets[len(buckets)-1].Time)
	assert.Equal(t, 2, buckets[len(buckets)-2].Valid)
}

type recordingSubscriber struct {
	mu      sync.Mutex
	entries []*domain.LogEntry
}

func (r *recordingSubscriber) OnLogEntry(e *domain.LogEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

type recordingObserver struct {
	evaluations atomic.Int64
	bans        atomic.Int64
}

func (r *recordingObserver) ObserveEvaluation(domain.Outcome, int64) { r.evaluations.Add(1) }
func (r *recordingObserver) ObserveBan(string)                       { r.bans.Add(1) }

func TestEvaluator_Hooks(t *testing.T) {
	gw, _ := newTestEvaluator(t, nil)
	sub := &recordingSubscriber{}
	obs := &recordingObserver{}
	var mutations atomic.Int64

	gw.Subscribe(sub)
	gw.AddObserver(obs)
	gw.OnMutate(func() { mutations.Add(1) })

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		gw.Evaluate(ctx, request("blue", "/"))
	}
	gw.IssueToken("blue")

	assert.Len(t, sub.entries, 6)
	assert.Equal(t, int64(6), obs.evaluations.Load())
	assert.Equal(t, int64(1), obs.bans.Load())
	assert.Equal(t, int64(7), mutations.Load())
}

func TestEvaluator_SetConfig(t *testing.T) {
	gw, _ := newTestEvaluator(t, nil)

	err := gw.SetConfig(domain.GatewayConfig{RateLimitMax: 0, SecurityLevel: domain.SecurityLevelHigh})
	assert.Error(t, err)
	assert.Equal(t, domain.DefaultConfig(), gw.Config())

	cfg := domain.DefaultConfig()
	cfg.JWTRequired = false
	require.NoError(t, gw.SetConfig(cfg))
	assert.Equal(t, http.StatusOK, gw.Evaluate(context.Background(), request("zap", "/")))
}

func TestEvaluator_SnapshotRestore(t *testing.T) {
	gw, mock := newTestEvaluator(t, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		gw.Evaluate(ctx, request("zap", "/"))
	}
	gw.Evaluate(ctx, request("ness", "/"))

	snap := gw.Snapshot()
	assert.Equal(t, []string{"192.168.1.101"}, snap.BlockedIPs)
	assert.Equal(t, 5, snap.Violations["192.168.1.101"])

	restored := NewEvaluator(Options{Clock: mock}, snap)
	assert.True(t, restored.IsBanned("192.168.1.101"))
	assert.Equal(t, gw.Stats(), restored.Stats())
	assert.Len(t, restored.Logs(), 6)
	assert.Empty(t, restored.CurrentToken(), "token slot is not persisted")

	p, _ := restored.Profile("ness")
	assert.Equal(t, 20, p.RiskScore)
	assert.Equal(t, http.StatusForbidden, restored.Evaluate(ctx, request("zap", "/")))
}

func TestEvaluator_ConcurrentSources(t *testing.T) {
	gw, _ := newTestEvaluator(t, noAuth)
	identities := []string{"zap", "ness", "shark", "hat", "blue"}

	var wg sync.WaitGroup
	var allowed atomic.Int64
	for _, id := range identities {
		wg.Add(1)
		go func(identity string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if gw.Evaluate(context.Background(), request(identity, "/")) == http.StatusOK {
					allowed.Add(1)
				}
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int64(250), allowed.Load())
	assert.Equal(t, int64(250), gw.Stats().TotalRequests)
	assert.Len(t, gw.Logs(), domain.MaxVisibleLogEntries)
}

func TestEvaluator_ConcurrentSameSourceBansOnce(t *testing.T) {
	gw, _ := newTestEvaluator(t, nil)
	obs := &recordingObserver{}
	gw.AddObserver(obs)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gw.Evaluate(context.Background(), request("hat", "/"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), obs.bans.Load())
	assert.Equal(t, 5, gw.Violations("192.168.1.104"))
	assert.Equal(t, int64(5), gw.Stats().TotalRequests)
}

type banCountWatcher struct {
	gw        *Evaluator
	mu        sync.Mutex
	last      int64
	decreases int
}

func (w *banCountWatcher) OnLogEntry(*domain.LogEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	bans := w.gw.Stats().GlobalBans
	if bans < w.last {
		w.decreases++
	}
	w.last = bans
}

func TestEvaluator_GlobalBansNeverDecrease(t *testing.T) {
	const sources = 200

	mock := clock.NewMock()
	state := domain.DefaultState()
	for i := 0; i < sources; i++ {
		state.Clients = append(state.Clients, domain.ClientProfile{
			Username:    fmt.Sprintf("bot-%d", i),
			IP:          fmt.Sprintf("10.1.%d.%d", i/250, i%250+1),
			Status:      domain.StatusActive,
			ActivityLog: []domain.ActivityRecord{},
		})
	}
	gw := NewEvaluator(Options{Clock: mock}, state)
	watcher := &banCountWatcher{gw: gw}
	gw.Subscribe(watcher)

	var wg sync.WaitGroup
	for i := 0; i < sources; i++ {
		wg.Add(1)
		go func(identity string) {
			defer wg.Done()
			for j := 0; j < BanThreshold; j++ {
				gw.Evaluate(context.Background(), request(identity, "/"))
			}
		}(fmt.Sprintf("bot-%d", i))
	}
	wg.Wait()

	assert.Zero(t, watcher.decreases)
	assert.Equal(t, int64(sources), gw.Stats().GlobalBans)
}
