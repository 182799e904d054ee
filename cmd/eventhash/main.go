// Package main implements the eventhash binary, which serves grouping hash
// computation and tombstone discard matching over HTTP and gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/arkilian/eventhash/internal/app"
	"github.com/arkilian/eventhash/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile   string
		envFile      string
		dataDir      string
		httpAddr     string
		grpcAddr     string
		storeDriver  string
		cacheBackend string
		showVersion  bool
		showHelp     bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before the environment is read")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address")
	flag.StringVar(&storeDriver, "tombstone-driver", "", "Tombstone store driver: sqlite, postgres")
	flag.StringVar(&cacheBackend, "raw-cache", "", "Raw event cache backend: disk, redis, object")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "eventhash - grouping hashes and tombstone discards for error events\n\n")
		fmt.Fprintf(os.Stderr, "Usage: eventhash [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  eventhash --data-dir /data/eventhash\n")
		fmt.Fprintf(os.Stderr, "  eventhash --tombstone-driver postgres --raw-cache redis\n")
		fmt.Fprintf(os.Stderr, "  eventhash --config /etc/eventhash/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  EVENTHASH_DATA_DIR                Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  EVENTHASH_HTTP_ADDR               HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  EVENTHASH_GRPC_ADDR               gRPC listen address\n")
		fmt.Fprintf(os.Stderr, "  EVENTHASH_TOMBSTONE_DRIVER        Tombstone store driver (sqlite, postgres)\n")
		fmt.Fprintf(os.Stderr, "  EVENTHASH_TOMBSTONE_POSTGRES_DSN  Postgres connection string\n")
		fmt.Fprintf(os.Stderr, "  EVENTHASH_RAW_CACHE_BACKEND       Raw cache backend (disk, redis, object)\n")
		fmt.Fprintf(os.Stderr, "  EVENTHASH_RAW_CACHE_TTL           Raw payload retention, e.g. 1h\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("eventhash version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line flags take priority over file and environment
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if grpcAddr != "" {
		cfg.GRPC.Addr = grpcAddr
	}
	if storeDriver != "" {
		cfg.TombstoneStore.Driver = storeDriver
	}
	if cacheBackend != "" {
		cfg.RawCache.Backend = cacheBackend
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)
	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("eventhash %s (commit: %s)", version, commit)
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Data Dir:        %s", cfg.DataDir)
	log.Printf("  HTTP:            %s", cfg.HTTP.Addr)
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:            %s", cfg.GRPC.Addr)
	}
	log.Printf("  Tombstone Store: %s", cfg.TombstoneStore.Driver)
	log.Printf("  Raw Cache:       %s (ttl %s)", cfg.RawCache.Backend, cfg.RawCache.TTL)
	if cfg.RawCache.Backend == "object" {
		log.Printf("  Storage:         %s", cfg.Storage.Type)
	}
	log.Printf("")
}
