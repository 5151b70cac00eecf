package storage

import (
	"context"
	"fmt"

	"github.com/xoelrdgz/sentinel/internal/ports"
)

const (
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	Driver string
	Bolt   BoltConfig
	Redis  RedisConfig
}

// Open builds the store selected by config.Driver.
func Open(ctx context.Context, config Config) (ports.DocumentStore, error) {
	switch config.Driver {
	case DriverBolt, "":
		return NewBoltStore(config.Bolt)
	case DriverRedis:
		return NewRedisStore(ctx, config.Redis)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", config.Driver)
	}
}
