// Package gateway implements the request evaluation engine: ban screening,
// sliding-window rate limiting, single-use token authentication, violation
// escalation and the dashboard aggregates that every evaluation feeds.
//
// Evaluation Pipeline:
//
//  1. Resolve identity and source address from the client directory
//  2. Short-circuit banned sources with 403 (log entry only)
//  3. Rate limit check (when enabled)
//  4. Token check (when required and the request is still allowed)
//  5. Violation escalation and auto-ban for blocked outcomes
//  6. Risk scoring, stats, traffic series and log emission
//
// Thread Safety:
//
// All evaluations for one source address are serialized on a striped lock.
// Shared aggregates (token slot, stats, traffic, log buffer, directory) each
// carry their own mutex and are never locked while another is held, so
// evaluations for different sources run concurrently. No evaluation performs
// I/O; persistence observes mutations through OnMutate.
package gateway

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

// bannedRequestDuration is the fixed duration reported for refused banned
// sources.
const bannedRequestDuration = 1

// Options configures an Evaluator. Zero values fall back to defaults.
type Options struct {
	Clock           clock.Clock
	RateWindow      time.Duration
	ShardCount      int
	LogCapacity     int
	TrafficBuckets  int
	DefaultIdentity string
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.RateWindow <= 0 {
		o.RateWindow = time.Duration(DefaultRateWindowMs) * time.Millisecond
	}
	if o.ShardCount <= 0 {
		o.ShardCount = 64
	}
	if o.LogCapacity <= 0 {
		o.LogCapacity = domain.MaxVisibleLogEntries
	}
	if o.TrafficBuckets <= 0 {
		o.TrafficBuckets = domain.TrafficSeriesSize
	}
	return o
}

// Evaluator is the gateway. It owns every piece of mutable engine state and
// is the only writer of it.
type Evaluator struct {
	clock           clock.Clock
	windowMs        int64
	defaultIdentity string

	config   atomic.Pointer[domain.GatewayConfig]
	limiter  *RateLimiter
	tokens   *TokenAuthenticator
	ledger   *ViolationLedger
	profiles *ProfileStore
	stats    *StatsAggregator
	traffic  *TrafficSeries
	logs     *LogBuffer
	sources  *stripedLock

	hooksMu     sync.RWMutex
	subscribers []ports.LogSubscriber
	observers   []ports.EvaluationObserver
	onMutate    []func()
}

// NewEvaluator builds an evaluator seeded from state. An invalid persisted
// config falls back to the defaults.
func NewEvaluator(opts Options, state domain.State) *Evaluator {
	opts = opts.withDefaults()

	e := &Evaluator{
		clock:           opts.Clock,
		windowMs:        opts.RateWindow.Milliseconds(),
		defaultIdentity: opts.DefaultIdentity,
		limiter:         NewRateLimiter(opts.ShardCount),
		tokens:          NewTokenAuthenticator(),
		ledger:          NewViolationLedger(),
		profiles:        NewProfileStore(nil),
		stats:           NewStatsAggregator(domain.DefaultStats()),
		traffic:         NewTrafficSeries(opts.TrafficBuckets, opts.Clock.Now()),
		logs:            NewLogBuffer(opts.LogCapacity),
		sources:         newStripedLock(opts.ShardCount),
	}
	cfg := domain.DefaultConfig()
	e.config.Store(&cfg)
	e.restore(state)
	return e
}

// Evaluate runs one request through the pipeline and returns its status
// code. Payload ClientIP and Username are overwritten with the resolved
// source and identity.
func (e *Evaluator) Evaluate(ctx context.Context, req *domain.RequestPayload) int {
	cfg := e.Config()

	identity := req.Username
	if identity == "" {
		identity = e.defaultIdentity
	}
	source := e.profiles.SourceOf(identity)
	req.Username = identity
	req.ClientIP = source

	unlock := e.sources.Lock(source)
	defer unlock()

	profile, known := e.profiles.Lookup(identity)
	if e.ledger.IsBanned(source) || (known && profile.Status == domain.StatusBanned) {
		return e.refuseBanned(ctx, req, cfg)
	}

	start := e.clock.Now()
	nowMs := start.UnixMilli()

	outcome := domain.Allow()
	if cfg.RateLimitEnabled {
		if d := e.limiter.Check(source, nowMs, e.windowMs, cfg.RateLimitMax); !d.Allowed {
			outcome = domain.Block(domain.ReasonRateLimited)
		}
	}
	if outcome.Allowed() && cfg.JWTRequired {
		if res := e.tokens.Consume(req.PresentedToken()); !res.OK {
			if res.Reason == TokenMissing {
				outcome = domain.Block(domain.ReasonMissingToken)
			} else {
				outcome = domain.Block(domain.ReasonInvalidToken)
			}
		}
	}

	var violation ViolationResult
	if outcome.Blocked() {
		violation = e.ledger.RecordViolation(source)
	}

	activity := domain.EvaluationActivity(req.Method, req.Endpoint, outcome.Action())
	e.profiles.ApplyEvaluation(identity, activity, outcome.Blocked(), e.ledger.IsBanned(source), nowMs)

	end := e.clock.Now()
	latency := elapsedMillis(start, end)
	e.stats.Record(outcome.Blocked(), latency, e.ledger.BanCount())
	e.traffic.Record(end, outcome.Action())

	entry := domain.NewLogEntry(req, outcome, cfg, end, latency)
	if violation.JustBanned {
		entry.AppendDetail("[CLIENT BANNED]")
		log.Warn().
			Str("source", source).
			Str("identity", identity).
			Int("violations", violation.Count).
			Msg("Source banned")
	}
	e.logs.Prepend(entry)

	e.notify(ctx, entry, outcome, latency, violation.JustBanned, source)
	return entry.Status
}

func (e *Evaluator) refuseBanned(ctx context.Context, req *domain.RequestPayload, cfg domain.GatewayConfig) int {
	outcome := domain.Block(domain.ReasonBannedIP)
	entry := domain.NewLogEntry(req, outcome, cfg, e.clock.Now(), bannedRequestDuration)
	e.logs.Prepend(entry)
	e.notify(ctx, entry, outcome, bannedRequestDuration, false, req.ClientIP)
	return entry.Status
}

func elapsedMillis(start, end time.Time) int64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(math.Round(float64(d) / float64(time.Millisecond)))
}

func (e *Evaluator) notify(ctx context.Context, entry *domain.LogEntry, outcome domain.Outcome, latency int64, banned bool, source string) {
	e.hooksMu.RLock()
	subscribers := e.subscribers
	observers := e.observers
	e.hooksMu.RUnlock()

	for _, o := range observers {
		o.ObserveEvaluation(outcome, latency)
		if banned {
			o.ObserveBan(source)
		}
	}
	for _, s := range subscribers {
		if ctx.Err() != nil {
			break
		}
		s.OnLogEntry(entry.Clone())
	}
	e.mutated()
}

// IssueToken replaces the active token. A non-empty identity that names a
// known client gets a GENERATED_TOKEN activity record.
func (e *Evaluator) IssueToken(identity string) string {
	token := e.tokens.Issue()
	if identity != "" {
		e.profiles.RecordTokenIssued(identity, e.clock.Now().UnixMilli())
	}
	e.mutated()
	return token
}

// Login records a login for a known client.
func (e *Evaluator) Login(identity string) bool {
	if !e.profiles.RecordLogin(identity, e.clock.Now().UnixMilli()) {
		return false
	}
	e.mutated()
	return true
}

func (e *Evaluator) Config() domain.GatewayConfig {
	return *e.config.Load()
}

// SetConfig validates and swaps the configuration. In-flight evaluations
// finish with the copy they started with.
func (e *Evaluator) SetConfig(cfg domain.GatewayConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.config.Store(&cfg)
	e.mutated()
	return nil
}

// TickTraffic advances the traffic series to the current second.
func (e *Evaluator) TickTraffic() bool {
	return e.traffic.Tick(e.clock.Now())
}

// PruneHistory drops rate-limit history for sources idle for a full window.
func (e *Evaluator) PruneHistory() int {
	return e.limiter.Prune(e.clock.Now().UnixMilli(), e.windowMs)
}

func (e *Evaluator) Stats() domain.GatewayStats { return e.stats.Snapshot() }

func (e *Evaluator) Traffic() []domain.TrafficBucket { return e.traffic.Buckets() }

func (e *Evaluator) Logs() []*domain.LogEntry { return e.logs.Entries() }

// LogsFor returns the log entries attributed to identity, newest first.
func (e *Evaluator) LogsFor(identity string) []*domain.LogEntry {
	return e.logs.ForIdentity(identity)
}

func (e *Evaluator) Profiles() []domain.ClientProfile { return e.profiles.List() }

func (e *Evaluator) CurrentToken() string { return e.tokens.Current() }

func (e *Evaluator) LastInvalidatedToken() string { return e.tokens.LastInvalidated() }

func (e *Evaluator) IsBanned(source string) bool { return e.ledger.IsBanned(source) }

func (e *Evaluator) Violations(source string) int { return e.ledger.Count(source) }

func (e *Evaluator) Profile(identity string) (domain.ClientProfile, bool) {
	return e.profiles.Lookup(identity)
}

// ActiveRequests reports the in-window request count for a source.
func (e *Evaluator) ActiveRequests(source string) int {
	return e.limiter.ActiveCount(source, e.clock.Now().UnixMilli(), e.windowMs)
}

// Snapshot captures the persisted part of the engine state.
func (e *Evaluator) Snapshot() domain.State {
	return domain.State{
		Clients:    e.profiles.List(),
		Logs:       e.logs.Entries(),
		Stats:      e.stats.Snapshot(),
		Config:     e.Config(),
		BlockedIPs: e.ledger.Banned(),
		Violations: e.ledger.Violations(),
	}
}

func (e *Evaluator) restore(state domain.State) {
	if err := state.Config.Validate(); err == nil {
		cfg := state.Config
		e.config.Store(&cfg)
	} else {
		log.Warn().Err(err).Msg("Persisted config invalid, using defaults")
	}
	e.ledger.Restore(state.Violations, state.BlockedIPs)
	clients := state.Clients
	if clients == nil {
		clients = domain.SeedProfiles()
	}
	e.profiles.Restore(clients, e.ledger.IsBanned)
	e.logs.Restore(state.Logs)
	e.stats.Restore(state.Stats)
}

// Subscribe registers a log subscriber. Subscribers run on the evaluating
// goroutine and must not block.
func (e *Evaluator) Subscribe(s ports.LogSubscriber) {
	e.hooksMu.Lock()
	e.subscribers = append(e.subscribers[:len(e.subscribers):len(e.subscribers)], s)
	e.hooksMu.Unlock()
}

func (e *Evaluator) AddObserver(o ports.EvaluationObserver) {
	e.hooksMu.Lock()
	e.observers = append(e.observers[:len(e.observers):len(e.observers)], o)
	e.hooksMu.Unlock()
}

// OnMutate registers fn to run after every state change. It runs inline, so
// fn should only flag work for another goroutine.
func (e *Evaluator) OnMutate(fn func()) {
	e.hooksMu.Lock()
	e.onMutate = append(e.onMutate[:len(e.onMutate):len(e.onMutate)], fn)
	e.hooksMu.Unlock()
}

func (e *Evaluator) mutated() {
	e.hooksMu.RLock()
	hooks := e.onMutate
	e.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

var _ ports.Gateway = (*Evaluator)(nil)
