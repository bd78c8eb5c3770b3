// Package store is the durable state abstraction behind room metadata,
// chat history and the pull-mode signal log. Three interchangeable
// backends: a process-local map, redis with native per-key TTL, and
// mongo with manual expiry checks on read. The backend is picked once at
// startup; calling code never branches on it.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Store is a small key/value + list contract. A ttl of zero means no
// expiry. List TTLs are a garbage-collection bound, refreshed on append:
// callers that need precise per-item staleness filter on their own
// timestamps (the signal relay does exactly that).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	ListAppend(ctx context.Context, key string, value []byte, ttl time.Duration) error
	ListRange(ctx context.Context, key string) ([][]byte, error)
	// ListTrim keeps only the last max elements of the list.
	ListTrim(ctx context.Context, key string, max int) error
}
