package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

// LoadState reads the six persisted documents. A missing, unreadable or
// invalid document falls back to its default; loading never fails.
func LoadState(ctx context.Context, store ports.DocumentStore) domain.State {
	return LoadStateWithConfig(ctx, store, domain.DefaultConfig())
}

// LoadStateWithConfig is LoadState with fallback standing in for a
// missing, unreadable or invalid config document.
func LoadStateWithConfig(ctx context.Context, store ports.DocumentStore, fallback domain.GatewayConfig) domain.State {
	state := domain.DefaultState()
	state.Config = fallback

	var clients []domain.ClientProfile
	if loadDocument(ctx, store, domain.KeyClients, &clients) && clients != nil {
		state.Clients = clients
	}

	var logs []*domain.LogEntry
	if loadDocument(ctx, store, domain.KeyLogs, &logs) && logs != nil {
		state.Logs = logs
	}

	var stats domain.GatewayStats
	if loadDocument(ctx, store, domain.KeyStats, &stats) {
		state.Stats = stats
	}

	var cfg domain.GatewayConfig
	if loadDocument(ctx, store, domain.KeyConfig, &cfg) {
		if err := cfg.Validate(); err != nil {
			log.Warn().Err(err).Str("key", domain.KeyConfig).Msg("Persisted config invalid, using configured defaults")
		} else {
			state.Config = cfg
		}
	}

	var bans []string
	if loadDocument(ctx, store, domain.KeyBlockedIPs, &bans) && bans != nil {
		state.BlockedIPs = bans
	}

	var violations map[string]int
	if loadDocument(ctx, store, domain.KeyViolations, &violations) && violations != nil {
		state.Violations = violations
	}

	log.Info().
		Int("clients", len(state.Clients)).
		Int("logs", len(state.Logs)).
		Int("bans", len(state.BlockedIPs)).
		Msg("Gateway state loaded")
	return state
}

func loadDocument(ctx context.Context, store ports.DocumentStore, key string, v any) bool {
	found, err := store.Load(ctx, key, v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to load document, using default")
		return false
	}
	return found
}

// SaveState writes every document in one batch.
func SaveState(ctx context.Context, store ports.DocumentStore, state domain.State) error {
	docs := map[string]any{
		domain.KeyClients:    state.Clients,
		domain.KeyLogs:       state.Logs,
		domain.KeyStats:      state.Stats,
		domain.KeyConfig:     state.Config,
		domain.KeyBlockedIPs: nonNilStrings(state.BlockedIPs),
		domain.KeyViolations: nonNilCounts(state.Violations),
	}
	if err := store.SaveAll(ctx, docs); err != nil {
		return fmt.Errorf("save gateway state: %w", err)
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
