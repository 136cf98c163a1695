package cache

import "time"

// RedisOptions carries connection settings for the redis store.
type RedisOptions struct {
	URL      string
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
	TLSEnabled bool
	// Timeout Configuration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
	MaxRetries   int
}
