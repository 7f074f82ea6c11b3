package persist

import (
	"context"
	"time"
)

// Storage is a durable key/value store for the persisted session. Values are
// opaque bytes; encoding is the caller's concern.
type Storage interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (bool, []byte, error)
	// Set stores val under key, replacing any previous value.
	Set(ctx context.Context, key string, val []byte) error
	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)
	// Close releases the storage. It is safe to call more than once.
	Close(ctx context.Context) error
}

// DefaultQueryTimeout is the per-operation timeout for backends that perform
// I/O (SQLite, Redis).
const DefaultQueryTimeout = 5 * time.Second

type config struct {
	queryTimeout time.Duration
	prefix       string
}

// Option configures a Storage implementation.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{queryTimeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed storage.
// Defaults to DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithPrefix sets the key prefix used to namespace keys. Applies to the Redis
// backend. Defaults to empty (no prefix).
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

func (c config) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.queryTimeout)
}
