// Package config provides configuration for the eventhash service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "EVENTHASH_"

// Config holds the configuration of the eventhash service.
type Config struct {
	// DataDir is the base directory for all local data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Tombstone store configuration
	TombstoneStore TombstoneStoreConfig `json:"tombstone_store" yaml:"tombstone_store"`

	// Raw event cache configuration
	RawCache RawCacheConfig `json:"raw_cache" yaml:"raw_cache"`

	// Storage configuration, used by the object raw cache backend
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// StatsWindow is how long capability source statistics are retained
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// MaxBodyBytes bounds accepted request bodies
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// TombstoneStoreConfig selects and configures the tombstone hash table.
type TombstoneStoreConfig struct {
	// Driver is sqlite or postgres
	Driver string `json:"driver" yaml:"driver"`

	// SQLitePath is the database file (sqlite driver)
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`

	// PostgresDSN is the connection string (postgres driver)
	PostgresDSN string `json:"postgres_dsn" yaml:"postgres_dsn"`

	// MaxConns bounds the Postgres connection pool
	MaxConns int `json:"max_conns" yaml:"max_conns"`
}

// RawCacheConfig selects and configures the raw event cache.
type RawCacheConfig struct {
	// Backend is disk, redis or object
	Backend string `json:"backend" yaml:"backend"`

	// TTL is how long raw payloads are retained
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// Disk backend configuration
	Disk DiskCacheConfig `json:"disk" yaml:"disk"`

	// RedisURL is a redis:// URL or host:port (redis backend)
	RedisURL string `json:"redis_url" yaml:"redis_url"`

	// ObjectPrefix is the key prefix inside object storage (object backend)
	ObjectPrefix string `json:"object_prefix" yaml:"object_prefix"`
}

// DiskCacheConfig holds disk cache configuration.
type DiskCacheConfig struct {
	// Dir is the cache directory
	Dir string `json:"dir" yaml:"dir"`

	// MaxBytes bounds the total size of cached entries
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`

	// SweepInterval is how often expired entries are reclaimed
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/eventhash",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		TombstoneStore: TombstoneStoreConfig{
			Driver:   "sqlite",
			MaxConns: 10,
		},
		RawCache: RawCacheConfig{
			Backend:      "disk",
			TTL:          time.Hour,
			ObjectPrefix: "rawcache/",
			Disk: DiskCacheConfig{
				MaxBytes:      512 * 1024 * 1024,
				SweepInterval: 30 * time.Second,
			},
		},
		Storage: StorageConfig{
			Type: "local",
		},
		StatsWindow: time.Hour,
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/eventhash"
	}
	if c.TombstoneStore.SQLitePath == "" {
		c.TombstoneStore.SQLitePath = filepath.Join(c.DataDir, "tombstones.db")
	}
	if c.RawCache.Disk.Dir == "" {
		c.RawCache.Disk.Dir = filepath.Join(c.DataDir, "rawcache")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.TombstoneStore.Driver {
	case "sqlite":
	case "postgres":
		if c.TombstoneStore.PostgresDSN == "" {
			return fmt.Errorf("tombstone_store.postgres_dsn is required when driver is postgres")
		}
	default:
		return fmt.Errorf("invalid tombstone_store.driver: %s (must be sqlite or postgres)", c.TombstoneStore.Driver)
	}

	switch c.RawCache.Backend {
	case "disk":
		if c.RawCache.Disk.MaxBytes <= 0 {
			return fmt.Errorf("raw_cache.disk.max_bytes must be positive, got %d", c.RawCache.Disk.MaxBytes)
		}
	case "redis":
		if c.RawCache.RedisURL == "" {
			return fmt.Errorf("raw_cache.redis_url is required when backend is redis")
		}
	case "object":
	default:
		return fmt.Errorf("invalid raw_cache.backend: %s (must be disk, redis or object)", c.RawCache.Backend)
	}

	if c.RawCache.TTL <= 0 {
		return fmt.Errorf("raw_cache.ttl must be positive, got %s", c.RawCache.TTL)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be positive, got %d", c.HTTP.MaxBodyBytes)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv overrides cfg from EVENTHASH_* environment variables.
// Malformed numeric and duration values are ignored.
func LoadFromEnv(cfg *Config) {
	setString(&cfg.DataDir, "DATA_DIR")

	// HTTP configuration
	setString(&cfg.HTTP.Addr, "HTTP_ADDR")
	setDuration(&cfg.HTTP.ReadTimeout, "HTTP_READ_TIMEOUT")
	setDuration(&cfg.HTTP.WriteTimeout, "HTTP_WRITE_TIMEOUT")
	setInt64(&cfg.HTTP.MaxBodyBytes, "HTTP_MAX_BODY_BYTES")

	// gRPC configuration
	setString(&cfg.GRPC.Addr, "GRPC_ADDR")
	if v := os.Getenv(EnvPrefix + "GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	// Tombstone store configuration
	setString(&cfg.TombstoneStore.Driver, "TOMBSTONE_DRIVER")
	setString(&cfg.TombstoneStore.SQLitePath, "TOMBSTONE_SQLITE_PATH")
	setString(&cfg.TombstoneStore.PostgresDSN, "TOMBSTONE_POSTGRES_DSN")
	if v := os.Getenv(EnvPrefix + "TOMBSTONE_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TombstoneStore.MaxConns = n
		}
	}

	// Raw cache configuration
	setString(&cfg.RawCache.Backend, "RAW_CACHE_BACKEND")
	setDuration(&cfg.RawCache.TTL, "RAW_CACHE_TTL")
	setString(&cfg.RawCache.Disk.Dir, "RAW_CACHE_DISK_DIR")
	setInt64(&cfg.RawCache.Disk.MaxBytes, "RAW_CACHE_DISK_MAX_BYTES")
	setString(&cfg.RawCache.RedisURL, "RAW_CACHE_REDIS_URL")
	setString(&cfg.RawCache.ObjectPrefix, "RAW_CACHE_OBJECT_PREFIX")

	// Storage configuration
	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.Path, "STORAGE_PATH")
	setString(&cfg.Storage.S3.Bucket, "S3_BUCKET")
	setString(&cfg.Storage.S3.Region, "S3_REGION")
	setString(&cfg.Storage.S3.Endpoint, "S3_ENDPOINT")
	if v := os.Getenv(EnvPrefix + "S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}

	setDuration(&cfg.StatsWindow, "STATS_WINDOW")
}

func setString(dst *string, name string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt64(dst *int64, name string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

// EnsureDirectories creates all required local directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.TombstoneStore.Driver == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.TombstoneStore.SQLitePath))
	}
	if c.RawCache.Backend == "disk" {
		dirs = append(dirs, c.RawCache.Disk.Dir)
	}
	if c.RawCache.Backend == "object" && c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
