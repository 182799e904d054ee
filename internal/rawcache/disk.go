package rawcache

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaolacci/murmur3"
)

const entrySuffix = ".entry"

// Metrics holds disk backend statistics for observability.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Expired   atomic.Int64
	Evictions atomic.Int64
	Entries   atomic.Int64
	SizeBytes atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Expired   int64 `json:"expired"`
	Evictions int64 `json:"evictions"`
	Entries   int64 `json:"entries"`
	SizeBytes int64 `json:"size_bytes"`
}

// DiskBackend stores one file per entry under a local directory. Expired
// entries read as misses and are reclaimed by a background worker, which
// also evicts least recently used entries once maxBytes is exceeded.
type DiskBackend struct {
	dir       string
	maxBytes  int64
	metrics   Metrics
	now       func() time.Time
	mu        sync.Mutex // serializes index mutations and file renames
	index     sync.Map   // key → *diskEntry
	evictChan chan struct{}
	wg        sync.WaitGroup
	stopChan  chan struct{}
	closeOnce sync.Once
}

type diskEntry struct {
	path       string
	sizeBytes  int64
	expiresAt  time.Time
	lastAccess atomic.Int64 // Unix nanos
}

// DiskOptions tunes a DiskBackend.
type DiskOptions struct {
	// MaxBytes bounds the total size of entry files.
	MaxBytes int64
	// SweepInterval is how often expired entries are reclaimed.
	SweepInterval time.Duration
}

// NewDiskBackend opens (and creates if needed) a disk cache in dir,
// indexing the entries left by a previous process.
func NewDiskBackend(dir string, opts DiskOptions) (*DiskBackend, error) {
	if opts.MaxBytes <= 0 {
		return nil, fmt.Errorf("maxBytes must be positive, got %d", opts.MaxBytes)
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	b := &DiskBackend{
		dir:       dir,
		maxBytes:  opts.MaxBytes,
		now:       time.Now,
		evictChan: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}

	if err := b.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	b.wg.Add(1)
	go b.evictionWorker(opts.SweepInterval)

	return b, nil
}

// Close stops the eviction worker. Entry files stay on disk.
func (b *DiskBackend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopChan)
		b.wg.Wait()
	})
	return nil
}

// Metrics returns current backend metrics.
func (b *DiskBackend) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:      b.metrics.Hits.Load(),
		Misses:    b.metrics.Misses.Load(),
		Expired:   b.metrics.Expired.Load(),
		Evictions: b.metrics.Evictions.Load(),
		Entries:   b.metrics.Entries.Load(),
		SizeBytes: b.metrics.SizeBytes.Load(),
	}
}

// HitRate returns the hit rate as a percentage.
func (b *DiskBackend) HitRate() float64 {
	hits := b.metrics.Hits.Load()
	total := hits + b.metrics.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// scanExistingFiles rebuilds the index from entry headers. Expired and
// unreadable files are removed.
func (b *DiskBackend) scanExistingFiles() error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return err
	}

	now := b.now()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), entrySuffix) {
			continue
		}
		path := filepath.Join(b.dir, e.Name())

		info, err := e.Info()
		if err != nil {
			continue // Skip inaccessible files
		}
		h, err := readHeaderFile(path)
		if err != nil || h.expired(now) || b.fileName(h.key) != e.Name() {
			os.Remove(path)
			continue
		}

		entry := &diskEntry{path: path, sizeBytes: info.Size(), expiresAt: h.expiresAt}
		entry.lastAccess.Store(info.ModTime().UnixNano())
		b.index.Store(h.key, entry)
		b.metrics.SizeBytes.Add(entry.sizeBytes)
		b.metrics.Entries.Add(1)
	}

	log.Printf("rawcache: indexed %d entries (%d bytes) from %s",
		b.metrics.Entries.Load(), b.metrics.SizeBytes.Load(), b.dir)
	return nil
}

func readHeaderFile(path string) (entryHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return entryHeader{}, err
	}
	defer f.Close()
	return readEntryHeader(f)
}

// Set writes value to a temp file and renames it over the entry file.
func (b *DiskBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	expiresAt := b.now().Add(ttl)
	buf, err := encodeEntry(key, value, expiresAt)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write entry: %w", err)
	}

	entry := &diskEntry{
		path:      filepath.Join(b.dir, b.fileName(key)),
		sizeBytes: int64(len(buf)),
		expiresAt: expiresAt,
	}
	entry.lastAccess.Store(b.now().UnixNano())

	b.mu.Lock()
	if err := os.Rename(tmpPath, entry.path); err != nil {
		b.mu.Unlock()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install entry: %w", err)
	}
	if prev, loaded := b.index.Swap(key, entry); loaded {
		b.metrics.SizeBytes.Add(-prev.(*diskEntry).sizeBytes)
		b.metrics.Entries.Add(-1)
	}
	b.metrics.SizeBytes.Add(entry.sizeBytes)
	b.metrics.Entries.Add(1)
	b.mu.Unlock()

	if b.metrics.SizeBytes.Load() > b.maxBytes {
		select {
		case b.evictChan <- struct{}{}:
		default:
			// Eviction already pending
		}
	}
	return nil
}

// Get returns the value of key, or ErrMiss when it is absent or expired.
func (b *DiskBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, ok := b.index.Load(key)
	if !ok {
		b.metrics.Misses.Add(1)
		return nil, ErrMiss
	}
	entry := v.(*diskEntry)

	now := b.now()
	if !now.Before(entry.expiresAt) {
		b.metrics.Misses.Add(1)
		b.metrics.Expired.Add(1)
		b.remove(key, entry)
		return nil, ErrMiss
	}

	raw, err := os.ReadFile(entry.path)
	if err != nil {
		if os.IsNotExist(err) {
			b.metrics.Misses.Add(1)
			b.remove(key, entry)
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}

	h, value, err := decodeEntry(raw)
	if err != nil || h.key != key || h.expired(now) {
		// Replaced, expired or damaged between the index lookup and the read
		b.metrics.Misses.Add(1)
		return nil, ErrMiss
	}

	b.metrics.Hits.Add(1)
	entry.lastAccess.Store(now.UnixNano())
	return value, nil
}

// remove drops key if it still maps to entry.
func (b *DiskBackend) remove(key string, entry *diskEntry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.index.CompareAndDelete(key, entry) {
		return false
	}
	if err := os.Remove(entry.path); err != nil && !os.IsNotExist(err) {
		log.Printf("rawcache: failed to remove %s: %v", entry.path, err)
	}
	b.metrics.SizeBytes.Add(-entry.sizeBytes)
	b.metrics.Entries.Add(-1)
	return true
}

// evictionWorker reclaims expired entries and enforces the size bound.
func (b *DiskBackend) evictionWorker(interval time.Duration) {
	defer b.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-b.evictChan:
			b.performEviction()
		case <-ticker.C:
			b.sweepExpired()
			b.performEviction()
		}
	}
}

// sweepExpired removes every expired entry.
func (b *DiskBackend) sweepExpired() int {
	now := b.now()
	removed := 0
	b.index.Range(func(key, value interface{}) bool {
		entry := value.(*diskEntry)
		if !now.Before(entry.expiresAt) && b.remove(key.(string), entry) {
			b.metrics.Expired.Add(1)
			removed++
		}
		return true
	})
	if removed > 0 {
		log.Printf("rawcache: swept %d expired entries", removed)
	}
	return removed
}

// performEviction evicts least recently used entries down to 90% of
// capacity.
func (b *DiskBackend) performEviction() {
	targetSize := int64(float64(b.maxBytes) * 0.9)
	if b.metrics.SizeBytes.Load() <= targetSize {
		return
	}

	type evictCandidate struct {
		key        string
		entry      *diskEntry
		accessTime int64
	}
	var candidates []evictCandidate

	b.index.Range(func(key, value interface{}) bool {
		entry := value.(*diskEntry)
		candidates = append(candidates, evictCandidate{
			key:        key.(string),
			entry:      entry,
			accessTime: entry.lastAccess.Load(),
		})
		return true
	})

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].accessTime < candidates[j].accessTime
	})

	for _, cand := range candidates {
		if b.metrics.SizeBytes.Load() <= targetSize {
			break
		}
		if b.remove(cand.key, cand.entry) {
			b.metrics.Evictions.Add(1)
			log.Printf("rawcache: evicted %s (freed %d bytes)", cand.key, cand.entry.sizeBytes)
		}
	}
}

// fileName maps a key to a fixed-length file name. Keys contain ':' and
// are not safe to use directly.
func (b *DiskBackend) fileName(key string) string {
	h1, h2 := murmur3.Sum128([]byte(key))
	return fmt.Sprintf("%016x%016x%s", h1, h2, entrySuffix)
}
