package rawcache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eherrors "github.com/arkilian/eventhash/internal/errors"
	"github.com/arkilian/eventhash/internal/storage"
)

type stubBackend struct {
	values map[string][]byte
	ttls   map[string]time.Duration
	err    error
}

func newStubBackend() *stubBackend {
	return &stubBackend{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *stubBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.values[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *stubBackend) Get(_ context.Context, key string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.values[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (s *stubBackend) Close() error { return nil }

func TestKey(t *testing.T) {
	assert.Equal(t, "e:raw:abc123:42", Key(42, "abc123"))
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	backend := newStubBackend()
	c := New(backend, 0)
	ctx := context.Background()
	raw := []byte(`{"message":"boom","platform":"go"}`)

	require.NoError(t, c.Put(ctx, 42, "abc123", raw))
	assert.Equal(t, DefaultTTL, backend.ttls["e:raw:abc123:42"])
	assert.NotEqual(t, raw, backend.values["e:raw:abc123:42"], "stored form is compressed")

	got, ok, err := c.Get(ctx, 42, "abc123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, raw, got)
}

func TestCache_MissIsNotAnError(t *testing.T) {
	c := New(newStubBackend(), time.Minute)

	got, ok, err := c.Get(context.Background(), 1, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCache_ProjectScopesKey(t *testing.T) {
	c := New(newStubBackend(), time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 1, "abc", []byte("one")))
	_, ok, err := c.Get(ctx, 2, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_BackendErrors(t *testing.T) {
	backend := newStubBackend()
	backend.err = errors.New("connection reset")
	c := New(backend, time.Minute)
	ctx := context.Background()

	err := c.Put(ctx, 1, "abc", []byte("x"))
	assert.Equal(t, eherrors.ErrCategoryCache, eherrors.GetCategory(err))
	assert.True(t, eherrors.IsRetryable(err))

	_, _, err = c.Get(ctx, 1, "abc")
	assert.Equal(t, eherrors.CodeCacheRead, eherrors.GetCode(err))
}

func TestCache_CorruptEntry(t *testing.T) {
	backend := newStubBackend()
	backend.values[Key(1, "abc")] = []byte{0xff, 0xff, 0xff, 0xff, 0xff}
	c := New(backend, time.Minute)

	_, ok, err := c.Get(context.Background(), 1, "abc")
	assert.False(t, ok)
	assert.Equal(t, eherrors.CodeCacheRead, eherrors.GetCode(err))
}

func TestCache_DiskBackendEndToEnd(t *testing.T) {
	backend := newTestDiskBackend(t, t.TempDir(), 1<<20, nil)
	c := New(backend, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 7, "e1", []byte("payload")))
	got, ok, err := c.Get(ctx, 7, "e1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestObjectBackend_SetGetExpire(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	clock := newFakeClock()
	b := NewObjectBackend(store, "rawcache/")
	b.now = clock.Now
	ctx := context.Background()

	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	objects, err := store.ListObjects(ctx, "rawcache")
	require.NoError(t, err)
	require.Len(t, objects, 1)

	clock.Advance(time.Minute)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	objects, err = store.ListObjects(ctx, "rawcache")
	require.NoError(t, err)
	assert.Empty(t, objects, "expired object is deleted on read")
}

func TestObjectBackend_Sweep(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	clock := newFakeClock()
	b := NewObjectBackend(store, "rawcache/")
	b.now = clock.Now
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "short", []byte("v"), time.Minute))
	require.NoError(t, b.Set(ctx, "long", []byte("v"), time.Hour))
	clock.Advance(2 * time.Minute)

	removed, err := b.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = b.Get(ctx, "long")
	assert.NoError(t, err)
}

// Runs against a live server when EVENTHASH_TEST_REDIS_URL is set.
func TestRedisBackend(t *testing.T) {
	url := os.Getenv("EVENTHASH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("EVENTHASH_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := ConnectRedis(ctx, url)
	require.NoError(t, err)

	c := New(NewRedisBackend(client), time.Minute)
	defer c.Close()

	eventID := "redis" + time.Now().Format("150405.000000000")
	_, ok, err := c.Get(ctx, 1, eventID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, 1, eventID, []byte("payload")))
	got, ok, err := c.Get(ctx, 1, eventID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}
