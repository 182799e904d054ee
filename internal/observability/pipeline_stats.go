// Package observability tracks which hashing paths and capabilities the
// pipeline uses and how discard decisions turn out.
package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// PipelineStats aggregates hashing and discard counters. Per-source
// frequencies are windowed; the counters are cumulative.
type PipelineStats struct {
	mu         sync.RWMutex
	sourceFreq map[string]*SourceStats
	window     time.Duration
	now        func() time.Time

	computed        atomic.Int64
	byFingerprint   atomic.Int64
	byChecksum      atomic.Int64
	byDefault       atomic.Int64
	noHashableInput atomic.Int64
	discardChecks   atomic.Int64
	discarded       atomic.Int64
	rowsInserted    atomic.Int64
	rowsExisting    atomic.Int64
	cacheMisses     atomic.Int64
}

// SourceStats holds how often a capability produced the hash input.
type SourceStats struct {
	Source    string    `json:"source"`
	Frequency int64     `json:"frequency"`
	LastSeen  time.Time `json:"last_seen"`
}

// Snapshot is a point-in-time copy of PipelineStats.
type Snapshot struct {
	Computed                int64         `json:"computed"`
	ByFingerprint           int64         `json:"by_fingerprint"`
	ByChecksum              int64         `json:"by_checksum"`
	ByDefault               int64         `json:"by_default"`
	NoHashableInput         int64         `json:"no_hashable_input"`
	DiscardChecks           int64         `json:"discard_checks"`
	Discarded               int64         `json:"discarded"`
	TombstoneRowsInserted   int64         `json:"tombstone_rows_inserted"`
	TombstoneRowsExisting   int64         `json:"tombstone_rows_existing"`
	RegistrationCacheMisses int64         `json:"registration_cache_misses"`
	TopSources              []SourceStats `json:"top_sources"`
}

// NewPipelineStats creates a tracker whose per-source entries expire after
// window without activity.
func NewPipelineStats(window time.Duration) *PipelineStats {
	return &PipelineStats{
		sourceFreq: make(map[string]*SourceStats),
		window:     window,
		now:        time.Now,
	}
}

// RecordHash records one successful hash computation. path is one of
// "fingerprint", "checksum" or "default"; source is the capability path
// for the default branch.
func (p *PipelineStats) RecordHash(path, source string) {
	p.computed.Add(1)
	switch path {
	case "fingerprint":
		p.byFingerprint.Add(1)
	case "checksum":
		p.byChecksum.Add(1)
	default:
		p.byDefault.Add(1)
	}
	if source == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	stats, exists := p.sourceFreq[source]
	if !exists {
		stats = &SourceStats{Source: source}
		p.sourceFreq[source] = stats
	}
	stats.Frequency++
	stats.LastSeen = p.now()
}

// RecordNoHashableInput records an event that yielded no hash input.
func (p *PipelineStats) RecordNoHashableInput() {
	p.noHashableInput.Add(1)
}

// RecordDiscardCheck records a discard lookup and its outcome.
func (p *PipelineStats) RecordDiscardCheck(matched bool) {
	p.discardChecks.Add(1)
	if matched {
		p.discarded.Add(1)
	}
}

// RecordRegistration records the outcome of one tombstone registration.
func (p *PipelineStats) RecordRegistration(inserted, existing int, cacheMiss bool) {
	p.rowsInserted.Add(int64(inserted))
	p.rowsExisting.Add(int64(existing))
	if cacheMiss {
		p.cacheMisses.Add(1)
	}
}

// GetTopSources returns the top n capability sources by frequency.
func (p *PipelineStats) GetTopSources(n int) []SourceStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if n <= 0 || len(p.sourceFreq) == 0 {
		return []SourceStats{}
	}

	stats := make([]SourceStats, 0, len(p.sourceFreq))
	for _, s := range p.sourceFreq {
		stats = append(stats, *s)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Source < stats[j].Source
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Snapshot returns the current counters and the top ten sources.
func (p *PipelineStats) Snapshot() Snapshot {
	return Snapshot{
		Computed:                p.computed.Load(),
		ByFingerprint:           p.byFingerprint.Load(),
		ByChecksum:              p.byChecksum.Load(),
		ByDefault:               p.byDefault.Load(),
		NoHashableInput:         p.noHashableInput.Load(),
		DiscardChecks:           p.discardChecks.Load(),
		Discarded:               p.discarded.Load(),
		TombstoneRowsInserted:   p.rowsInserted.Load(),
		TombstoneRowsExisting:   p.rowsExisting.Load(),
		RegistrationCacheMisses: p.cacheMisses.Load(),
		TopSources:              p.GetTopSources(10),
	}
}

// Prune removes sources not seen within the window.
// This should be called periodically (e.g., every 5 minutes).
func (p *PipelineStats) Prune() {
	p.mu.Lock()
	defer p.mu.Unlock()

	threshold := p.now().Add(-p.window)
	for source, stats := range p.sourceFreq {
		if stats.LastSeen.Before(threshold) {
			delete(p.sourceFreq, source)
		}
	}
}
