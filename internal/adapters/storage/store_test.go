package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

func exerciseStore(t *testing.T, store ports.DocumentStore) {
	t.Helper()
	ctx := context.Background()

	var missing []string
	found, err := store.Load(ctx, domain.KeyBlockedIPs, &missing)
	require.NoError(t, err)
	assert.False(t, found)

	stats := domain.GatewayStats{TotalRequests: 9, BlockedRequests: 4, AvgLatency: 12, GlobalBans: 1}
	require.NoError(t, store.SaveAll(ctx, map[string]any{
		domain.KeyStats:      stats,
		domain.KeyBlockedIPs: []string{"192.168.1.101"},
		domain.KeyViolations: map[string]int{"192.168.1.101": 5},
	}))

	var gotStats domain.GatewayStats
	found, err = store.Load(ctx, domain.KeyStats, &gotStats)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, stats, gotStats)

	var bans []string
	_, err = store.Load(ctx, domain.KeyBlockedIPs, &bans)
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.101"}, bans)

	require.NoError(t, store.Save(ctx, domain.KeyBlockedIPs, []string{}))
	_, err = store.Load(ctx, domain.KeyBlockedIPs, &bans)
	require.NoError(t, err)
	assert.Empty(t, bans)

	var wrongShape []string
	_, err = store.Load(ctx, domain.KeyStats, &wrongShape)
	assert.Error(t, err, "decoding an object into a list must fail")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_CorruptDocument(t *testing.T) {
	store := NewMemoryStore()
	store.Put(domain.KeyLogs, []byte("{broken"))

	var logs []*domain.LogEntry
	found, err := store.Load(context.Background(), domain.KeyLogs, &logs)
	assert.False(t, found)
	assert.Error(t, err)
}

func TestBoltStore(t *testing.T) {
	store, err := NewBoltStore(BoltConfig{Path: filepath.Join(t.TempDir(), "nested", "sentinel.db")})
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{domain.KeyStats, domain.KeyBlockedIPs, domain.KeyViolations}, keys)
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.db")
	ctx := context.Background()

	store, err := NewBoltStore(BoltConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, domain.KeyConfig, domain.DefaultConfig()))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(BoltConfig{Path: path})
	require.NoError(t, err)
	defer store.Close()

	var cfg domain.GatewayConfig
	found, err := store.Load(ctx, domain.KeyConfig, &cfg)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.DefaultConfig(), cfg)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("SENTINEL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SENTINEL_TEST_REDIS_URL not set")
	}

	store, err := NewRedisStore(context.Background(), RedisConfig{URL: url, Prefix: "sentinel-test-" + uuid.NewString()})
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{URL: "not-a-url"})
	assert.Error(t, err)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(ctx, Config{Driver: DriverBolt, Bolt: BoltConfig{Path: filepath.Join(t.TempDir(), "s.db")}})
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, Config{Driver: "etcd"})
	assert.Error(t, err)
}
