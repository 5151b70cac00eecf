// Package storage provides DocumentStore implementations for the gateway
// state: an embedded bbolt file, a shared Redis instance and an in-memory
// map.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/xoelrdgz/sentinel/internal/ports"
)

// DocumentBucket holds every gateway document keyed by document name.
var DocumentBucket = []byte("documents")

type BoltConfig struct {
	Path    string
	Timeout time.Duration // file lock wait (default: 1s)
}

func DefaultBoltConfig() BoltConfig {
	return BoltConfig{
		Path:    "./data/sentinel.db",
		Timeout: time.Second,
	}
}

// BoltStore keeps documents in a single bbolt bucket. SaveAll writes every
// document in one transaction, so a crash never leaves half a snapshot.
type BoltStore struct {
	db   *bolt.DB
	path string
}

func NewBoltStore(config BoltConfig) (*BoltStore, error) {
	if config.Timeout <= 0 {
		config.Timeout = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := bolt.Open(config.Path, 0600, &bolt.Options{
		Timeout:    config.Timeout,
		NoGrowSync: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(DocumentBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	var count int
	_ = db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(DocumentBucket).Stats().KeyN
		return nil
	})

	log.Info().
		Str("db_path", config.Path).
		Int("documents", count).
		Msg("Bolt document store initialized")

	return &BoltStore{db: db, path: config.Path}, nil
}

func (s *BoltStore) Load(_ context.Context, key string, v any) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(DocumentBucket).Get([]byte(key)); raw != nil {
			data = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *BoltStore) Save(ctx context.Context, key string, v any) error {
	return s.SaveAll(ctx, map[string]any{key: v})
}

func (s *BoltStore) SaveAll(_ context.Context, docs map[string]any) error {
	encoded, err := encodeAll(docs)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(DocumentBucket)
		for key, data := range encoded {
			if err := b.Put([]byte(key), data); err != nil {
				return fmt.Errorf("write %s: %w", key, err)
			}
		}
		return nil
	})
}

// Keys lists stored document names in key order.
func (s *BoltStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(DocumentBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func encodeAll(docs map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(docs))
	for key, v := range docs {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		out[key] = data
	}
	return out, nil
}

var _ ports.DocumentStore = (*BoltStore)(nil)
