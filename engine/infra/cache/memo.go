package cache

import (
	"context"
	"errors"
	"time"

	"github.com/compozy/remotequery/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Memo memoizes computed values in a Store. Concurrent misses for the same key
// within this process share one computation; other processes may recompute.
type Memo struct {
	store Store
	group singleflight.Group
}

func NewMemo(store Store) *Memo {
	return &Memo{store: store}
}

// Store returns the backing store.
func (m *Memo) Store() Store {
	return m.store
}

// Remember returns the stored value for key, or runs compute and stores its result for ttl.
// The boolean reports a store hit. Store failures degrade to recomputation.
// Each caller stops waiting when its own ctx ends; compute itself is not
// cancelled by any one caller and relies on the transport timeout.
func (m *Memo) Remember(
	ctx context.Context,
	key Key,
	ttl time.Duration,
	compute func(context.Context) ([]byte, error),
) ([]byte, bool, error) {
	log := logger.FromContext(ctx)
	if value, ok := m.lookup(ctx, key); ok {
		return value, true, nil
	}
	// the shared computation must outlive any single caller's cancellation
	computeCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key.String(), func() (any, error) {
		value, err := compute(computeCtx)
		if err != nil {
			return nil, err
		}
		if err := m.store.Set(computeCtx, key, value, ttl); err != nil {
			log.Warn("Failed to store cached value", "key", key, "error", err)
		}
		return value, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	}
}

func (m *Memo) lookup(ctx context.Context, key Key) ([]byte, bool) {
	value, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		return value, true
	case errors.Is(err, ErrNotFound):
		return nil, false
	default:
		logger.FromContext(ctx).Warn("Cache lookup failed", "key", key, "error", err)
		return nil, false
	}
}

// Forget removes key from the store.
func (m *Memo) Forget(ctx context.Context, key Key) error {
	m.group.Forget(key.String())
	return m.store.Delete(ctx, key)
}
