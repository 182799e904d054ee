// Package app wires the eventhash components together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	grpcapi "github.com/arkilian/eventhash/internal/api/grpc"
	httpapi "github.com/arkilian/eventhash/internal/api/http"
	"github.com/arkilian/eventhash/internal/config"
	"github.com/arkilian/eventhash/internal/discard"
	"github.com/arkilian/eventhash/internal/observability"
	"github.com/arkilian/eventhash/internal/rawcache"
	"github.com/arkilian/eventhash/internal/server"
	"github.com/arkilian/eventhash/internal/storage"
	"github.com/arkilian/eventhash/internal/tombstone"
)

const maintenanceInterval = time.Minute

// App manages the eventhash service lifecycle.
type App struct {
	cfg *config.Config

	// Shared resources
	store         tombstone.Store
	cache         *rawcache.Cache
	objectBackend *rawcache.ObjectBackend // set only for the object backend
	stats         *observability.PipelineStats
	registry      *prometheus.Registry
	service       *discard.Service
	shutdown      *server.ShutdownManager

	// Listeners
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg:      cfg,
		shutdown: server.NewShutdownManager(server.DefaultShutdownConfig()),
	}, nil
}

// Start opens the tombstone store and raw cache, then starts the HTTP and
// (if enabled) gRPC servers. Listeners are bound before Start returns.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	// The maintenance loop must stop before the store and cache close
	a.shutdown.OnShutdownStart(cancel)
	a.shutdown.OnShutdownEnd(a.logFinalStats)

	if err := a.initSharedResources(ctx); err != nil {
		a.Stop(context.Background())
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	a.wg.Add(1)
	go a.maintenanceLoop(ctx)

	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.Stop(context.Background())
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}

	if err := a.startHTTP(); err != nil {
		a.Stop(context.Background())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	log.Printf("eventhash started: store=%s raw_cache=%s ttl=%s",
		a.cfg.TombstoneStore.Driver, a.cfg.RawCache.Backend, a.cfg.RawCache.TTL)
	return nil
}

// initSharedResources opens the tombstone store and the raw cache. Closers
// are registered so that they run after the servers have stopped.
func (a *App) initSharedResources(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.store = store
	a.shutdown.RegisterCloser(store)

	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	a.cache = rawcache.New(backend, a.cfg.RawCache.TTL)
	a.shutdown.RegisterCloser(a.cache)

	a.stats = observability.NewPipelineStats(a.cfg.StatsWindow)
	a.service = discard.NewService(a.cache, a.store, a.stats)

	collector := observability.NewCollector(a.stats)
	if disk, ok := backend.(*rawcache.DiskBackend); ok {
		collector.WithDiskCache(disk.Metrics)
	}
	a.registry = prometheus.NewRegistry()
	if err := a.registry.Register(collector); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return nil
}

func (a *App) openStore(ctx context.Context) (tombstone.Store, error) {
	switch a.cfg.TombstoneStore.Driver {
	case "postgres":
		db, err := tombstone.ConnectPostgres(ctx, a.cfg.TombstoneStore.PostgresDSN, a.cfg.TombstoneStore.MaxConns)
		if err != nil {
			return nil, err
		}
		store := tombstone.NewPostgresStore(db)
		if err := tombstone.RunMigrations(ctx, db); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to migrate tombstone store: %w", err)
		}
		log.Printf("Tombstone store initialized: postgres (max_conns=%d)", a.cfg.TombstoneStore.MaxConns)
		return store, nil
	default:
		store, err := tombstone.NewSQLiteStore(a.cfg.TombstoneStore.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Printf("Tombstone store initialized: sqlite %s", a.cfg.TombstoneStore.SQLitePath)
		return store, nil
	}
}

func (a *App) openBackend(ctx context.Context) (rawcache.Backend, error) {
	switch a.cfg.RawCache.Backend {
	case "redis":
		client, err := rawcache.ConnectRedis(ctx, a.cfg.RawCache.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Printf("Raw cache initialized: redis")
		return rawcache.NewRedisBackend(client), nil
	case "object":
		store, err := a.openObjectStorage(ctx)
		if err != nil {
			return nil, err
		}
		a.objectBackend = rawcache.NewObjectBackend(store, a.cfg.RawCache.ObjectPrefix)
		log.Printf("Raw cache initialized: object storage (%s, prefix=%s)",
			a.cfg.Storage.Type, a.cfg.RawCache.ObjectPrefix)
		return a.objectBackend, nil
	default:
		backend, err := rawcache.NewDiskBackend(a.cfg.RawCache.Disk.Dir, rawcache.DiskOptions{
			MaxBytes:      a.cfg.RawCache.Disk.MaxBytes,
			SweepInterval: a.cfg.RawCache.Disk.SweepInterval,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("Raw cache initialized: disk %s (max %d bytes)",
			a.cfg.RawCache.Disk.Dir, a.cfg.RawCache.Disk.MaxBytes)
		return backend, nil
	}
}

func (a *App) openObjectStorage(ctx context.Context) (storage.ObjectStorage, error) {
	switch a.cfg.Storage.Type {
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		log.Printf("S3 Config: Bucket=%s, Region=%s, Endpoint=%s",
			a.cfg.Storage.S3.Bucket, s3Cfg.Region, s3Cfg.Endpoint)
		return storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return storage.NewLocalStorage(a.cfg.Storage.Path)
	}
}

func (a *App) startGRPC() error {
	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	a.grpcListener = lis

	a.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(server.UnaryShutdownInterceptor(a.shutdown)))
	grpcapi.RegisterHashServiceServer(a.grpcServer, grpcapi.NewHashServer(a.service))
	a.shutdown.RegisterCloser(&server.GRPCServerCloser{Server: a.grpcServer, Timeout: 10 * time.Second})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("gRPC server listening on %s", lis.Addr())
		if err := a.grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()
	return nil
}

func (a *App) startHTTP() error {
	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.httpListener = lis

	handler := httpapi.NewHandler(a.service, a.cfg.HTTP.MaxBodyBytes).
		WithMetrics(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := server.NewGracefulHTTPServer(&http.Server{
		Handler:      httpapi.NewRouter(handler, a.shutdown),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}, a.shutdown)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("HTTP server listening on %s", lis.Addr())
		if err := srv.Serve(lis); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	return nil
}

// maintenanceLoop prunes source statistics and reclaims expired raw cache
// objects.
func (a *App) maintenanceLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.stats.Prune()
			if a.objectBackend == nil {
				continue
			}
			if n, err := a.objectBackend.Sweep(ctx); err != nil {
				log.Printf("rawcache: object sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("rawcache: swept %d expired objects", n)
			}
		}
	}
}

func (a *App) logFinalStats() {
	if a.stats == nil {
		return
	}
	snap := a.stats.Snapshot()
	log.Printf("discard: final stats: computed=%d discarded=%d/%d tombstone_rows=%d (+%d existing) cache_misses=%d",
		snap.Computed, snap.Discarded, snap.DiscardChecks,
		snap.TombstoneRowsInserted, snap.TombstoneRowsExisting, snap.RegistrationCacheMisses)
}

// Service returns the discard service. It is nil before Start.
func (a *App) Service() *discard.Service {
	return a.service
}

// HTTPAddr returns the bound HTTP address, or "" before Start.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Stop gracefully stops all services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("Initiating graceful shutdown (%d requests in flight)...", a.shutdown.InFlight())

	if a.cancel != nil {
		a.cancel()
	}
	err := a.shutdown.Shutdown(ctx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Printf("Shutdown timeout, some goroutines may not have finished")
	}

	log.Printf("eventhash stopped")
	return err
}

// WaitForShutdown blocks until a shutdown signal is received, then stops
// the app.
func (a *App) WaitForShutdown(ctx context.Context) error {
	if err := a.shutdown.ListenForSignals(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	return a.Stop(context.Background())
}
