package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arkilian/eventhash/internal/rawcache"
)

const namespace = "eventhash"

// Collector exports PipelineStats, and optionally disk raw cache metrics,
// as Prometheus metrics. Values are read at scrape time.
type Collector struct {
	stats     *PipelineStats
	diskCache func() rawcache.MetricsSnapshot

	hashesComputed  *prometheus.Desc
	noHashableInput *prometheus.Desc
	discardChecks   *prometheus.Desc
	discarded       *prometheus.Desc
	tombstoneRows   *prometheus.Desc
	cacheMisses     *prometheus.Desc

	rawcacheHits      *prometheus.Desc
	rawcacheMisses    *prometheus.Desc
	rawcacheExpired   *prometheus.Desc
	rawcacheEvictions *prometheus.Desc
	rawcacheEntries   *prometheus.Desc
	rawcacheBytes     *prometheus.Desc
}

// NewCollector creates a collector over stats.
func NewCollector(stats *PipelineStats) *Collector {
	return &Collector{
		stats: stats,
		hashesComputed: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "hashes_computed_total"),
			"Hash computations by precedence path", []string{"path"}, nil),
		noHashableInput: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "no_hashable_input_total"),
			"Events that yielded no hash input", nil, nil),
		discardChecks: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "discard_checks_total"),
			"Discard lookups against tombstoned hashes", nil, nil),
		discarded: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "discarded_total"),
			"Discard lookups that matched a tombstone", nil, nil),
		tombstoneRows: prometheus.NewDesc(prometheus.BuildFQName(namespace, "tombstone", "rows_total"),
			"Tombstone hash rows by insert result", []string{"result"}, nil),
		cacheMisses: prometheus.NewDesc(prometheus.BuildFQName(namespace, "tombstone", "registration_cache_misses_total"),
			"Tombstone registrations whose raw event had expired", nil, nil),
		rawcacheHits: prometheus.NewDesc(prometheus.BuildFQName(namespace, "rawcache", "hits_total"),
			"Raw cache hits", nil, nil),
		rawcacheMisses: prometheus.NewDesc(prometheus.BuildFQName(namespace, "rawcache", "misses_total"),
			"Raw cache misses", nil, nil),
		rawcacheExpired: prometheus.NewDesc(prometheus.BuildFQName(namespace, "rawcache", "expired_total"),
			"Raw cache entries reclaimed after their TTL", nil, nil),
		rawcacheEvictions: prometheus.NewDesc(prometheus.BuildFQName(namespace, "rawcache", "evictions_total"),
			"Raw cache entries evicted for capacity", nil, nil),
		rawcacheEntries: prometheus.NewDesc(prometheus.BuildFQName(namespace, "rawcache", "entries"),
			"Raw cache entries on disk", nil, nil),
		rawcacheBytes: prometheus.NewDesc(prometheus.BuildFQName(namespace, "rawcache", "size_bytes"),
			"Raw cache bytes on disk", nil, nil),
	}
}

// WithDiskCache adds the metrics of a disk raw cache backend.
func (c *Collector) WithDiskCache(metrics func() rawcache.MetricsSnapshot) *Collector {
	c.diskCache = metrics
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hashesComputed
	ch <- c.noHashableInput
	ch <- c.discardChecks
	ch <- c.discarded
	ch <- c.tombstoneRows
	ch <- c.cacheMisses
	if c.diskCache != nil {
		ch <- c.rawcacheHits
		ch <- c.rawcacheMisses
		ch <- c.rawcacheExpired
		ch <- c.rawcacheEvictions
		ch <- c.rawcacheEntries
		ch <- c.rawcacheBytes
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Snapshot()

	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.hashesComputed, s.ByFingerprint, "fingerprint")
	counter(c.hashesComputed, s.ByChecksum, "checksum")
	counter(c.hashesComputed, s.ByDefault, "default")
	counter(c.noHashableInput, s.NoHashableInput)
	counter(c.discardChecks, s.DiscardChecks)
	counter(c.discarded, s.Discarded)
	counter(c.tombstoneRows, s.TombstoneRowsInserted, "inserted")
	counter(c.tombstoneRows, s.TombstoneRowsExisting, "existing")
	counter(c.cacheMisses, s.RegistrationCacheMisses)

	if c.diskCache == nil {
		return
	}
	m := c.diskCache()
	counter(c.rawcacheHits, m.Hits)
	counter(c.rawcacheMisses, m.Misses)
	counter(c.rawcacheExpired, m.Expired)
	counter(c.rawcacheEvictions, m.Evictions)
	ch <- prometheus.MustNewConstMetric(c.rawcacheEntries, prometheus.GaugeValue, float64(m.Entries))
	ch <- prometheus.MustNewConstMetric(c.rawcacheBytes, prometheus.GaugeValue, float64(m.SizeBytes))
}
