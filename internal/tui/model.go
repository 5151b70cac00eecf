// Package tui implements the live gateway dashboard on bubbletea.
//
// The dashboard polls the engine on every UI tick but only rebuilds its
// views when a log entry arrived since the previous refresh or a second
// passed (so the traffic series keeps scrolling while idle).
package tui

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// Source is the read side of the engine the dashboard renders.
type Source interface {
	Stats() domain.GatewayStats
	Traffic() []domain.TrafficBucket
	Logs() []*domain.LogEntry
	Profiles() []domain.ClientProfile
	CurrentToken() string
	Config() domain.GatewayConfig
}

// Controls are the operator actions bound to keys.
type Controls interface {
	IssueToken(identity string) string
	SetConfig(cfg domain.GatewayConfig) error
}

const (
	ViewLogs = iota
	ViewClients
	viewCount
)

type Model struct {
	Width  int
	Height int

	ActiveView int

	Stats    domain.GatewayStats
	Traffic  []domain.TrafficBucket
	Logs     []*domain.LogEntry
	Profiles []domain.ClientProfile
	Token    string
	Config   domain.GatewayConfig

	mu          sync.RWMutex
	pending     atomic.Int64
	received    atomic.Int64
	lastRefresh time.Time
}

func NewModel() *Model {
	return &Model{
		Width:  120,
		Height: 40,
		Stats:  domain.DefaultStats(),
		Config: domain.DefaultConfig(),
	}
}

// OnLogEntry marks the model stale. It runs on the evaluation path so it
// only bumps counters.
func (m *Model) OnLogEntry(*domain.LogEntry) {
	m.pending.Add(1)
	m.received.Add(1)
}

// NeedsRefresh reports whether new entries arrived or the traffic series
// moved on since the last refresh.
func (m *Model) NeedsRefresh(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending.Load() > 0 || now.Sub(m.lastRefresh) >= time.Second
}

// Refresh copies the current engine state into the model.
func (m *Model) Refresh(src Source, now time.Time) {
	stats := src.Stats()
	traffic := src.Traffic()
	logs := src.Logs()
	profiles := src.Profiles()
	token := src.CurrentToken()
	cfg := src.Config()

	slices.SortStableFunc(profiles, func(a, b domain.ClientProfile) int {
		if c := cmp.Compare(b.RiskScore, a.RiskScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stats = stats
	m.Traffic = traffic
	m.Logs = logs
	m.Profiles = profiles
	m.Token = token
	m.Config = cfg
	m.lastRefresh = now
	m.pending.Store(0)
}

func (m *Model) GetLogs() []*domain.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Logs
}

func (m *Model) GetProfiles() []domain.ClientProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Profiles
}

// Profile returns the profile for identity from the last refresh.
func (m *Model) Profile(identity string) (domain.ClientProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.Profiles {
		if p.Username == identity {
			return p, true
		}
	}
	return domain.ClientProfile{}, false
}

func (m *Model) GetStats() domain.GatewayStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Stats
}

func (m *Model) GetTraffic() []domain.TrafficBucket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Traffic
}

func (m *Model) GetConfig() (domain.GatewayConfig, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Config, m.Token
}

// Received counts log entries seen since the dashboard started.
func (m *Model) Received() int64 {
	return m.received.Load()
}

func (m *Model) SetDimensions(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Width = width
	m.Height = height
}

func (m *Model) NextView() {
	m.ActiveView = (m.ActiveView + 1) % viewCount
}
