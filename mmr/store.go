package mmr

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by stores when a key has never been written.
var ErrNotFound = errors.New("mmr: key not found")

// Store is the persistence layer backing an accumulator. Keys are scoped by
// the accumulator identifier so several accumulators can share one store.
//
// PutBatch must be atomic: either every entry is applied or none is. The
// accumulator relies on this to advance node writes and both counters
// together.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	PutBatch(ctx context.Context, entries map[string]string) error
}

func hashKey(mmrID string, index uint64) string {
	return fmt.Sprintf("%s:hashes:%d", mmrID, index)
}

func elementsCountKey(mmrID string) string {
	return mmrID + ":elements_count"
}

func leavesCountKey(mmrID string) string {
	return mmrID + ":leaves_count"
}

// MemStore is an in-memory Store. It behaves identically to the durable
// variant and is intended for tests and ephemeral accumulators.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string)}
}

func (s *MemStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

func (s *MemStore) Put(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemStore) PutBatch(_ context.Context, entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.data[k] = v
	}
	return nil
}
