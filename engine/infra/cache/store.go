package cache

import (
	"context"
	"strings"
	"time"
)

// Key is a typed store key. Build keys with NewKey so segments stay consistent.
type Key string

func (k Key) String() string {
	return string(k)
}

const keyPrefix = "remoteq"

// NewKey joins segments under the remoteq namespace.
func NewKey(segments ...string) Key {
	return Key(keyPrefix + ":" + strings.Join(segments, ":"))
}

// Store is the injected cache dependency shared by token and response caching.
// Get returns ErrNotFound on a miss. A zero ttl stores without expiry.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key Key) error
}
