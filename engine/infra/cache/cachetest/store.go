// Package cachetest provides an in-memory cache.Store with a controllable clock.
package cachetest

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/remotequery/engine/infra/cache"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is a map-backed cache.Store. Expiry is evaluated against Now.
type Store struct {
	mu      sync.Mutex
	now     time.Time
	entries map[cache.Key]entry
	gets    int
	sets    int
	GetErr  error
	SetErr  error
}

func NewStore() *Store {
	return &Store{now: time.Unix(1_700_000_000, 0), entries: make(map[cache.Key]entry)}
}

// Advance moves the clock forward.
func (s *Store) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *Store) Get(_ context.Context, key cache.Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	e, ok := s.entries[key]
	if !ok || (!e.expiresAt.IsZero() && !s.now.Before(e.expiresAt)) {
		return nil, cache.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Set(_ context.Context, key cache.Key, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.SetErr != nil {
		return s.SetErr
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now.Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *Store) Delete(_ context.Context, key cache.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// TTL reports the ttl an entry was stored with, relative to the current clock.
func (s *Store) TTL(key cache.Key) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return 0, false
	}
	if e.expiresAt.IsZero() {
		return 0, true
	}
	return e.expiresAt.Sub(s.now), true
}

// Keys lists stored keys, expired or not.
func (s *Store) Keys() []cache.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cache.Key, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	return out
}

func (s *Store) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}
