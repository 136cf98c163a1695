package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultMaxCost     int64 = 64 << 20
	assumedEntryBytes  int64 = 1 << 10
	minCounters        int64 = 1000
	recommendedBuffers int64 = 64
)

// MemoryStore is a process-local Store backed by ristretto. Cost is the value size in bytes.
type MemoryStore struct {
	cache  *ristretto.Cache[string, []byte]
	closed atomic.Bool
}

// NewMemoryStore creates an in-memory store bounded by maxCost bytes.
func NewMemoryStore(maxCost int64) (*MemoryStore, error) {
	if maxCost <= 0 {
		maxCost = defaultMaxCost
	}
	// ristretto wants roughly 10x the expected number of entries
	counters := max(minCounters, maxCost/assumedEntryBytes*10)
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        counters,
		MaxCost:            maxCost,
		BufferItems:        recommendedBuffers,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryStore{cache: c}, nil
}

func (s *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	v, ok := s.cache.Get(key.String())
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Set stores value and waits for the write buffer to drain so the entry is
// visible to the next Get. Entries dropped by the buffer or refused by
// admission yield ErrRejected.
func (s *MemoryStore) Set(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	cost := max(int64(len(value)), 1)
	if !s.cache.SetWithTTL(key.String(), value, cost, ttl) {
		return ErrRejected
	}
	s.cache.Wait()
	if _, ok := s.cache.Get(key.String()); !ok {
		return ErrRejected
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.cache.Del(key.String())
	return nil
}

func (s *MemoryStore) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.cache.Close()
	}
}
