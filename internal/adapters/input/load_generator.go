package input

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

const (
	LoadUserAgent = "LoadTester/2.0"

	MinLoadRPS = 1
	MaxLoadRPS = 10

	// ClientWindow is the span of the generator's own request budget.
	ClientWindow = 60 * time.Second

	// MaliciousBody is the preset payload for injection testing.
	MaliciousBody = "{\n  \"userId\": \"1 OR 1=1; DROP TABLE users\",\n  \"comment\": \"<script>alert(1)</script>\"\n}"

	defaultLoadBody = "{\n  \"userId\": 12345\n}"
	backoffStreak   = 2
	backoffFireRate = 0.1
)

var ErrLoadRPS = errors.New("load rps must be between 1 and 10")

type LoadConfig struct {
	RPS      int
	Identity string
	Method   string
	Endpoint string
	Body     string
	// UseToken issues a fresh token before every request. Presenting the
	// already-consumed current token instead would draw 403s and end in a
	// ban, since tokens are single use.
	UseToken bool
	// SelfLimit backs off after repeated 429 responses.
	SelfLimit bool
	Malicious bool
	Clock     clock.Clock
}

// FireResult reports what one generator tick did.
type FireResult struct {
	Sent      bool
	Throttled bool
	BackedOff bool
	Status    int
}

// LoadGenerator drives the gateway at a fixed request rate while keeping
// within the configured rate limit on the client side.
type LoadGenerator struct {
	gw     ports.Gateway
	config LoadConfig
	clk    clock.Clock
	rng    func() float64

	mu          sync.Mutex
	windowStart time.Time
	sentInWin   int
	errStreak   int

	sent      atomic.Int64
	skipped   atomic.Int64
	rejected  atomic.Int64
	lastState atomic.Int32
}

func NewLoadGenerator(gw ports.Gateway, config LoadConfig) (*LoadGenerator, error) {
	if config.RPS < MinLoadRPS || config.RPS > MaxLoadRPS {
		return nil, ErrLoadRPS
	}
	if config.Method == "" {
		config.Method = "GET"
	}
	if config.Endpoint == "" {
		config.Endpoint = "/api/v1/users/data"
	}
	if config.Malicious {
		config.Method = "POST"
		config.Body = MaliciousBody
	} else if config.Body == "" {
		config.Body = defaultLoadBody
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &LoadGenerator{
		gw:          gw,
		config:      config,
		clk:         config.Clock,
		rng:         rand.Float64,
		windowStart: config.Clock.Now(),
	}, nil
}

// Run fires requests at the configured rate until ctx is cancelled.
func (g *LoadGenerator) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Limit(g.config.RPS), 1)

	log.Info().
		Int("rps", g.config.RPS).
		Str("identity", g.config.Identity).
		Str("endpoint", g.config.Endpoint).
		Bool("self_limit", g.config.SelfLimit).
		Msg("Load generator started")

	for {
		if err := limiter.Wait(ctx); err != nil {
			log.Info().Int64("sent", g.sent.Load()).Int64("skipped", g.skipped.Load()).Msg("Load generator stopped")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		g.Fire(ctx)
	}
}

// Fire runs one tick: reset the client window when it elapsed, hold off
// once the window budget is spent, apply backoff, then send.
func (g *LoadGenerator) Fire(ctx context.Context) FireResult {
	now := g.clk.Now()
	budget := g.gw.Config().RateLimitMax

	g.mu.Lock()
	if now.Sub(g.windowStart) >= ClientWindow {
		g.windowStart = now
		g.sentInWin = 0
	}
	if g.sentInWin >= budget {
		g.mu.Unlock()
		g.skipped.Add(1)
		return FireResult{Throttled: true}
	}
	if g.config.SelfLimit && g.errStreak > backoffStreak && g.rng() > backoffFireRate {
		g.mu.Unlock()
		g.skipped.Add(1)
		return FireResult{BackedOff: true}
	}
	g.sentInWin++
	g.mu.Unlock()

	status := g.gw.Evaluate(ctx, g.payload(now))
	g.sent.Add(1)
	g.lastState.Store(int32(status))
	if status != 200 {
		g.rejected.Add(1)
	}

	g.mu.Lock()
	switch {
	case status == 429 && g.config.SelfLimit:
		g.errStreak++
	case status == 200:
		g.errStreak = 0
	}
	g.mu.Unlock()

	return FireResult{Sent: true, Status: status}
}

func (g *LoadGenerator) payload(now time.Time) *domain.RequestPayload {
	req := domain.NewRequestPayload(g.config.Method, g.config.Endpoint, now)
	req.Username = g.config.Identity
	req.SetHeader("User-Agent", LoadUserAgent)
	if g.config.Method != "GET" && g.config.Method != "DELETE" {
		req.WithBody(g.config.Body)
	}
	if g.config.UseToken {
		req.WithToken(g.gw.IssueToken(g.config.Identity))
	}
	return req
}

func (g *LoadGenerator) Sent() int64 { return g.sent.Load() }

func (g *LoadGenerator) Skipped() int64 { return g.skipped.Load() }

func (g *LoadGenerator) Rejected() int64 { return g.rejected.Load() }

func (g *LoadGenerator) LastStatus() int { return int(g.lastState.Load()) }

// BackingOff reports whether the 429 streak currently suppresses ticks.
func (g *LoadGenerator) BackingOff() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.config.SelfLimit && g.errStreak > backoffStreak
}

var _ ports.TrafficDriver = (*LoadGenerator)(nil)
