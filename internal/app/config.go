package app

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// Viper keys of the gateway section.
const (
	KeyRateLimitEnabled     = "gateway.rate_limit_enabled"
	KeyRateLimitMax         = "gateway.rate_limit_max"
	KeyJWTRequired          = "gateway.jwt_required"
	KeyReverseAttackEnabled = "gateway.reverse_attack_enabled"
	KeySecurityLevel        = "gateway.security_level"
)

// ConfigTarget receives validated gateway configuration.
type ConfigTarget interface {
	SetConfig(cfg domain.GatewayConfig) error
	Config() domain.GatewayConfig
}

// ConfigWatcher re-reads the config file on change and swaps the gateway
// configuration when the new file validates. A bad edit keeps the running
// configuration.
type ConfigWatcher struct {
	v       *viper.Viper
	target  ConfigTarget
	mu      sync.Mutex
	reloads int
}

// NewConfigWatcher watches v, or the global viper instance when v is nil.
func NewConfigWatcher(v *viper.Viper, target ConfigTarget) *ConfigWatcher {
	if v == nil {
		v = viper.GetViper()
	}
	return &ConfigWatcher{v: v, target: target}
}

func (w *ConfigWatcher) StartWatching() {
	w.v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().
			Str("file", e.Name).
			Str("op", e.Op.String()).
			Msg("Config file changed, reloading...")

		if err := w.Reload(); err != nil {
			log.Error().Err(err).Msg("Config reload rejected, keeping current configuration")
		}
	})
	w.v.WatchConfig()
	log.Info().Str("config", w.v.ConfigFileUsed()).Msg("Hot-reload config watching started")
}

// Reload re-reads the file, validates it and applies the gateway section.
func (w *ConfigWatcher) Reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.v.ConfigFileUsed() != "" {
		if err := w.v.ReadInConfig(); err != nil {
			return fmt.Errorf("re-read config: %w", err)
		}
	}
	if err := ValidateSettings(w.v); err != nil {
		return err
	}

	cfg := GatewayConfigFrom(w.v)
	if cfg == w.target.Config() {
		return nil
	}
	if err := w.target.SetConfig(cfg); err != nil {
		return fmt.Errorf("apply gateway config: %w", err)
	}
	w.reloads++

	log.Info().
		Bool("rate_limit", cfg.RateLimitEnabled).
		Int("rate_limit_max", cfg.RateLimitMax).
		Bool("jwt_required", cfg.JWTRequired).
		Str("security_level", string(cfg.SecurityLevel)).
		Msg("Gateway configuration hot-reloaded")
	return nil
}

func (w *ConfigWatcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// GatewayConfigFrom reads the gateway section, normalizing the security
// level to upper case.
func GatewayConfigFrom(v *viper.Viper) domain.GatewayConfig {
	return domain.GatewayConfig{
		RateLimitEnabled:     v.GetBool(KeyRateLimitEnabled),
		RateLimitMax:         v.GetInt(KeyRateLimitMax),
		JWTRequired:          v.GetBool(KeyJWTRequired),
		ReverseAttackEnabled: v.GetBool(KeyReverseAttackEnabled),
		SecurityLevel:        domain.SecurityLevel(strings.ToUpper(v.GetString(KeySecurityLevel))),
	}
}

// SetGatewayDefaults registers the gateway defaults on v.
func SetGatewayDefaults(v *viper.Viper) {
	def := domain.DefaultConfig()
	v.SetDefault(KeyRateLimitEnabled, def.RateLimitEnabled)
	v.SetDefault(KeyRateLimitMax, def.RateLimitMax)
	v.SetDefault(KeyJWTRequired, def.JWTRequired)
	v.SetDefault(KeyReverseAttackEnabled, def.ReverseAttackEnabled)
	v.SetDefault(KeySecurityLevel, string(def.SecurityLevel))
}

// ValidateSettings checks the keys whose bad values would break the
// process rather than a single evaluation.
func ValidateSettings(v *viper.Viper) error {
	if max := v.GetInt(KeyRateLimitMax); max < 1 {
		return &ConfigValidationError{Field: KeyRateLimitMax, Value: max, Reason: "must be positive"}
	}
	level := domain.SecurityLevel(strings.ToUpper(v.GetString(KeySecurityLevel)))
	if !level.Valid() {
		return &ConfigValidationError{Field: KeySecurityLevel, Value: v.GetString(KeySecurityLevel), Reason: "must be STANDARD, HIGH or PARANOID"}
	}
	if v.IsSet("workers.count") {
		if n := v.GetInt("workers.count"); n < 1 || n > 1000 {
			return &ConfigValidationError{Field: "workers.count", Value: n, Reason: "must be between 1 and 1000"}
		}
	}
	if v.IsSet("load.rps") {
		if rps := v.GetInt("load.rps"); rps < 1 || rps > 10 {
			return &ConfigValidationError{Field: "load.rps", Value: rps, Reason: "must be between 1 and 10"}
		}
	}
	return nil
}

type ConfigValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s = %v - %s", e.Field, e.Value, e.Reason)
}
