package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

type configHolder struct {
	cfg domain.GatewayConfig
}

func (h *configHolder) SetConfig(cfg domain.GatewayConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.cfg = cfg
	return nil
}

func (h *configHolder) Config() domain.GatewayConfig { return h.cfg }

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newWatchedViper(t *testing.T, body string) (*viper.Viper, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	writeConfig(t, path, body)

	v := viper.New()
	SetGatewayDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v, path
}

func TestGatewayConfigFrom_Defaults(t *testing.T) {
	v := viper.New()
	SetGatewayDefaults(v)
	assert.Equal(t, domain.DefaultConfig(), GatewayConfigFrom(v))
}

func TestConfigWatcher_ReloadApplies(t *testing.T) {
	v, path := newWatchedViper(t, "gateway:\n  rate_limit_max: 60\n")
	holder := &configHolder{cfg: domain.DefaultConfig()}
	w := NewConfigWatcher(v, holder)

	writeConfig(t, path, "gateway:\n  rate_limit_max: 10\n  jwt_required: false\n  security_level: paranoid\n")
	require.NoError(t, w.Reload())

	assert.Equal(t, 10, holder.cfg.RateLimitMax)
	assert.False(t, holder.cfg.JWTRequired)
	assert.Equal(t, domain.SecurityLevelParanoid, holder.cfg.SecurityLevel)
	assert.Equal(t, 1, w.Reloads())
}

func TestConfigWatcher_RejectsInvalid(t *testing.T) {
	v, path := newWatchedViper(t, "gateway:\n  rate_limit_max: 60\n")
	holder := &configHolder{cfg: domain.DefaultConfig()}
	w := NewConfigWatcher(v, holder)

	writeConfig(t, path, "gateway:\n  rate_limit_max: 0\n")
	err := w.Reload()

	var verr *ConfigValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KeyRateLimitMax, verr.Field)
	assert.Equal(t, "config validation error: gateway.rate_limit_max = 0 - must be positive", verr.Error())
	assert.Equal(t, domain.DefaultConfig(), holder.cfg)
	assert.Zero(t, w.Reloads())
}

func TestValidateSettings_Ranges(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"workers too low", "workers.count", 0},
		{"workers too high", "workers.count", 5000},
		{"load rps too high", "load.rps", 11},
		{"unknown level", KeySecurityLevel, "lax"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetGatewayDefaults(v)
			v.Set(tt.key, tt.value)
			assert.Error(t, ValidateSettings(v))
		})
	}
}
