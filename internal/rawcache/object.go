package rawcache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/eventhash/internal/storage"
)

// ObjectBackend stores entries as objects in an ObjectStorage. The store
// has no native expiry, so the deadline travels in the entry envelope and
// expired objects are deleted when they are read.
type ObjectBackend struct {
	store  storage.ObjectStorage
	prefix string
	now    func() time.Time
}

// NewObjectBackend creates a backend that writes under prefix.
func NewObjectBackend(store storage.ObjectStorage, prefix string) *ObjectBackend {
	return &ObjectBackend{store: store, prefix: prefix, now: time.Now}
}

func (b *ObjectBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	buf, err := encodeEntry(key, value, b.now().Add(ttl))
	if err != nil {
		return err
	}
	return b.store.Put(ctx, b.objectPath(key), buf)
}

func (b *ObjectBackend) Get(ctx context.Context, key string) ([]byte, error) {
	path := b.objectPath(key)
	raw, err := b.store.Get(ctx, path)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	h, value, err := decodeEntry(raw)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", path, err)
	}
	if h.key != key {
		return nil, ErrMiss
	}
	if h.expired(b.now()) {
		if err := b.store.Delete(ctx, path); err != nil {
			log.Printf("rawcache: failed to delete expired object %s: %v", path, err)
		}
		return nil, ErrMiss
	}
	return value, nil
}

// Sweep deletes every expired object under the prefix.
func (b *ObjectBackend) Sweep(ctx context.Context) (int, error) {
	paths, err := b.store.ListObjects(ctx, b.prefix)
	if err != nil {
		return 0, err
	}

	now := b.now()
	removed := 0
	for _, path := range paths {
		raw, err := b.store.Get(ctx, path)
		if err != nil {
			continue
		}
		h, _, err := decodeEntry(raw)
		if err == nil && !h.expired(now) {
			continue
		}
		if err := b.store.Delete(ctx, path); err != nil {
			log.Printf("rawcache: failed to delete %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (b *ObjectBackend) Close() error {
	return nil
}

func (b *ObjectBackend) objectPath(key string) string {
	h1, h2 := murmur3.Sum128([]byte(key))
	return fmt.Sprintf("%s%02x/%016x%016x", b.prefix, byte(h1>>56), h1, h2)
}
