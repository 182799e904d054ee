package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCloser struct {
	mu    *sync.Mutex
	order *[]string
	name  string
}

func (c recordingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.order = append(*c.order, c.name)
	return nil
}

func TestShutdownManager_ClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: time.Second})
	var mu sync.Mutex
	var order []string
	sm.RegisterCloser(recordingCloser{&mu, &order, "store"})
	sm.RegisterCloser(recordingCloser{&mu, &order, "cache"})
	sm.RegisterCloser(CloserFunc(func() error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "http")
		return nil
	}))

	started, ended := false, false
	sm.OnShutdownStart(func() { started = true })
	sm.OnShutdownEnd(func() { ended = true })

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.Equal(t, []string{"http", "cache", "store"}, order)
	assert.True(t, started)
	assert.True(t, ended)
	assert.False(t, sm.TrackRequest())

	// Second call is a no-op
	require.NoError(t, sm.Shutdown(context.Background(), "again"))
	assert.Len(t, order, 3)
}

func TestShutdownManager_WaitsForInFlight(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 2 * time.Second})
	require.True(t, sm.TrackRequest())

	go func() {
		time.Sleep(150 * time.Millisecond)
		sm.UntrackRequest()
	}()

	start := time.Now()
	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int64(0), sm.InFlight())
	assert.False(t, sm.TrackRequest(), "requests are rejected after shutdown")
}

func TestShutdownManager_DrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 100 * time.Millisecond})
	require.True(t, sm.TrackRequest())

	err := sm.Shutdown(context.Background(), "test")
	assert.Error(t, err)
}

func TestShutdownManager_ReportsEveryCloseError(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 100 * time.Millisecond})
	errStore := errors.New("store close failed")
	errCache := errors.New("cache close failed")
	sm.RegisterCloser(CloserFunc(func() error { return errStore }))
	sm.RegisterCloser(CloserFunc(func() error { return errCache }))

	err := sm.Shutdown(context.Background(), "test")
	assert.ErrorIs(t, err, errStore)
	assert.ErrorIs(t, err, errCache)
}

func TestShutdownManager_StartHooksRunBeforeDrain(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 2 * time.Second})
	require.True(t, sm.TrackRequest())

	var inFlightAtStart int64
	sm.OnShutdownStart(func() {
		inFlightAtStart = sm.InFlight()
		sm.UntrackRequest()
	})

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.Equal(t, int64(1), inFlightAtStart)
	assert.Equal(t, int64(0), sm.InFlight())
}

func TestShutdownMiddleware_RejectsDuringShutdown(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	h := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGracefulHTTPServer_ServeStopsOnShutdown(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{ShutdownTimeout: time.Second, DrainTimeout: 100 * time.Millisecond})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}
	gs := NewGracefulHTTPServer(srv, sm)

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()

	resp, err := http.Get("http://" + lis.Addr().String())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, sm.Shutdown(context.Background(), "test"))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
}
