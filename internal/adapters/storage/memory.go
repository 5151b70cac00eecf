package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xoelrdgz/sentinel/internal/ports"
)

// MemoryStore keeps encoded documents in a map. Values still go through
// JSON so behavior matches the durable stores.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, key string, v any) (bool, error) {
	s.mu.RLock()
	data, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, v any) error {
	return s.SaveAll(ctx, map[string]any{key: v})
}

func (s *MemoryStore) SaveAll(_ context.Context, docs map[string]any) error {
	encoded, err := encodeAll(docs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for key, data := range encoded {
		s.docs[key] = data
	}
	s.mu.Unlock()
	return nil
}

// Put stores raw bytes under key, bypassing encoding.
func (s *MemoryStore) Put(key string, raw []byte) {
	s.mu.Lock()
	s.docs[key] = raw
	s.mu.Unlock()
}

func (s *MemoryStore) Close() error { return nil }

var _ ports.DocumentStore = (*MemoryStore)(nil)
