// Package server coordinates how the eventhash listeners stop: requests in
// flight are drained before the tombstone store and raw cache are closed.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const drainPollInterval = 50 * time.Millisecond

// ShutdownConfig holds the shutdown timeouts.
type ShutdownConfig struct {
	// ShutdownTimeout caps the whole sequence. Default: 30 seconds
	ShutdownTimeout time.Duration
	// DrainTimeout caps the wait for in-flight requests. Default: 15 seconds
	DrainTimeout time.Duration
	// HTTPCloseTimeout caps http.Server.Shutdown. Default: 10 seconds
	HTTPCloseTimeout time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		ShutdownTimeout:  30 * time.Second,
		DrainTimeout:     15 * time.Second,
		HTTPCloseTimeout: 10 * time.Second,
	}
}

// ShutdownManager runs the shutdown sequence once: start hooks, request
// drain, closers in reverse registration order, end hooks.
type ShutdownManager struct {
	cfg ShutdownConfig

	once     sync.Once
	done     chan struct{}
	stopping atomic.Bool
	inFlight atomic.Int64

	mu      sync.Mutex
	closers []io.Closer
	onStart []func()
	onEnd   []func()
}

// NewShutdownManager creates a shutdown manager. Zero timeouts take their
// defaults.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	def := DefaultShutdownConfig()
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if cfg.HTTPCloseTimeout <= 0 {
		cfg.HTTPCloseTimeout = def.HTTPCloseTimeout
	}
	return &ShutdownManager{cfg: cfg, done: make(chan struct{})}
}

// RegisterCloser adds c to the closers. The last registered closes first.
func (sm *ShutdownManager) RegisterCloser(c io.Closer) {
	sm.mu.Lock()
	sm.closers = append(sm.closers, c)
	sm.mu.Unlock()
}

// OnShutdownStart registers fn to run before requests are drained.
func (sm *ShutdownManager) OnShutdownStart(fn func()) {
	sm.mu.Lock()
	sm.onStart = append(sm.onStart, fn)
	sm.mu.Unlock()
}

// OnShutdownEnd registers fn to run after every closer has returned.
func (sm *ShutdownManager) OnShutdownEnd(fn func()) {
	sm.mu.Lock()
	sm.onEnd = append(sm.onEnd, fn)
	sm.mu.Unlock()
}

// ListenForSignals blocks until SIGTERM, SIGINT or ctx cancellation, then
// shuts down. It returns nil at once if shutdown was started elsewhere.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), "signal "+sig.String())
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.done:
		return nil
	}
}

// Shutdown runs the shutdown sequence. Later calls return nil without
// doing anything. Every drain and close failure is reported.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var err error
	sm.once.Do(func() {
		log.Printf("server: shutdown started: %s", reason)
		sm.stopping.Store(true)
		close(sm.done)

		sm.mu.Lock()
		onStart, closers, onEnd := sm.onStart, sm.closers, sm.onEnd
		sm.mu.Unlock()

		for _, fn := range onStart {
			fn()
		}

		ctx, cancel := context.WithTimeout(ctx, sm.cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if n := sm.drain(ctx); n > 0 {
			errs = append(errs, fmt.Errorf("drain: %d requests still in flight", n))
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close: %w", cerr))
			}
		}
		err = errors.Join(errs...)

		for _, fn := range onEnd {
			fn()
		}
	})
	return err
}

// drain waits for in-flight requests and returns how many remain.
func (sm *ShutdownManager) drain(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, sm.cfg.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		n := sm.inFlight.Load()
		if n == 0 {
			return 0
		}
		select {
		case <-ctx.Done():
			return sm.inFlight.Load()
		case <-ticker.C:
		}
	}
}

// TrackRequest counts a request in. It returns false once shutdown has
// started; the caller must then reject the request.
func (sm *ShutdownManager) TrackRequest() bool {
	if sm.stopping.Load() {
		return false
	}
	sm.inFlight.Add(1)
	// A request racing with Shutdown must not be counted after the drain began
	if sm.stopping.Load() {
		sm.inFlight.Add(-1)
		return false
	}
	return true
}

// UntrackRequest counts a request out.
func (sm *ShutdownManager) UntrackRequest() {
	sm.inFlight.Add(-1)
}

// InFlight returns the number of tracked requests.
func (sm *ShutdownManager) InFlight() int64 {
	return sm.inFlight.Load()
}

// GracefulHTTPServer serves HTTP until the shutdown manager stops it.
type GracefulHTTPServer struct {
	server *http.Server
	sm     *ShutdownManager
}

// NewGracefulHTTPServer wraps srv and registers its shutdown as a closer,
// so it stops accepting before the resources registered earlier close.
func NewGracefulHTTPServer(srv *http.Server, sm *ShutdownManager) *GracefulHTTPServer {
	sm.RegisterCloser(CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), sm.cfg.HTTPCloseTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}))
	return &GracefulHTTPServer{server: srv, sm: sm}
}

// Serve accepts connections on lis. It returns nil after a graceful
// shutdown and the serve error otherwise.
func (gs *GracefulHTTPServer) Serve(lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		err := gs.server.Serve(lis)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-gs.sm.done:
		return <-errCh
	}
}

// ShutdownMiddleware rejects requests with 503 once shutdown has started
// and tracks the rest until they complete.
func ShutdownMiddleware(sm *ShutdownManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sm.TrackRequest() {
				w.Header().Set("Connection", "close")
				http.Error(w, "Service Unavailable - Shutting Down", http.StatusServiceUnavailable)
				return
			}
			defer sm.UntrackRequest()
			next.ServeHTTP(w, r)
		})
	}
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error {
	return f()
}
