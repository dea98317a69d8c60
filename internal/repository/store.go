package repository

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps every transport or server failure of a backend.
var ErrStoreUnavailable = errors.New("key-value store unavailable")

// KV is a single key-value pair. Put operations use the same shape.
type KV struct {
	Key   string
	Value []byte
}

// Condition is one compare of a transaction: it holds when the existence of
// Key matches Exists.
type Condition struct {
	Key    string
	Exists bool
}

// Store is a flat, ordered key-value store with conditional multi-key
// transactions. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the value of key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// GetPrefix returns all pairs whose key starts with prefix, sorted
	// ascending by key bytes.
	GetPrefix(ctx context.Context, prefix string) ([]KV, error)
	// Put writes a single key.
	Put(ctx context.Context, key string, value []byte) error
	// Txn atomically applies then when every condition holds and otherwise
	// when any fails. The bool reports whether then was applied.
	Txn(ctx context.Context, conds []Condition, then, otherwise []KV) (bool, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying client.
	Close() error
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or "" when no such key exists.
func prefixEnd(prefix string) string {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return string(end[:i+1])
		}
	}
	return ""
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
