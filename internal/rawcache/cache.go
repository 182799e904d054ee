// Package rawcache keeps the raw payload of recently ingested events for a
// bounded time so their digests can be recomputed when a group is
// tombstoned after the fact.
package rawcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"

	eherrors "github.com/arkilian/eventhash/internal/errors"
)

// DefaultTTL is how long a raw payload stays retrievable.
const DefaultTTL = time.Hour

// ErrMiss is returned by backends for absent or expired keys.
var ErrMiss = errors.New("rawcache: miss")

// Backend is a TTL key/value store.
type Backend interface {
	// Set stores value under key for ttl, replacing any previous value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value of key or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// Key returns the cache key of a raw event payload.
func Key(projectID int64, eventID string) string {
	return fmt.Sprintf("e:raw:%s:%d", eventID, projectID)
}

// Cache stores snappy-compressed raw payloads keyed by (project, event).
type Cache struct {
	backend Backend
	ttl     time.Duration
}

// New creates a cache over backend. A non-positive ttl selects DefaultTTL.
func New(backend Backend, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{backend: backend, ttl: ttl}
}

// TTL returns the retention of cached payloads.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Put stores raw under (projectID, eventID). Writing the same key again
// replaces the entry and restarts its TTL.
func (c *Cache) Put(ctx context.Context, projectID int64, eventID string, raw []byte) error {
	encoded := snappy.Encode(nil, raw)
	if err := c.backend.Set(ctx, Key(projectID, eventID), encoded, c.ttl); err != nil {
		return eherrors.NewCacheError(eherrors.CodeCacheWrite, "failed to cache raw payload", err)
	}
	return nil
}

// Get returns the payload stored under (projectID, eventID). An absent or
// expired entry yields (nil, false, nil).
func (c *Cache) Get(ctx context.Context, projectID int64, eventID string) ([]byte, bool, error) {
	encoded, err := c.backend.Get(ctx, Key(projectID, eventID))
	if errors.Is(err, ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eherrors.NewCacheError(eherrors.CodeCacheRead, "failed to read raw payload", err)
	}

	raw, err := snappy.Decode(nil, encoded)
	if err != nil {
		return nil, false, eherrors.NewCacheError(eherrors.CodeCacheRead, "corrupt raw payload entry", err)
	}
	return raw, true, nil
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}
