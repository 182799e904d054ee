package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/eventhash/internal/rawcache"
)

func TestCollector_ExportsPipelineCounters(t *testing.T) {
	stats := NewPipelineStats(time.Hour)
	stats.RecordHash("default", "exception")
	stats.RecordHash("default", "message")
	stats.RecordHash("checksum", "")
	stats.RecordDiscardCheck(true)
	stats.RecordDiscardCheck(false)
	stats.RecordRegistration(2, 1, false)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(stats)))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			values[key] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, float64(2), values["eventhash_hashes_computed_total/default"])
	assert.Equal(t, float64(1), values["eventhash_hashes_computed_total/checksum"])
	assert.Equal(t, float64(0), values["eventhash_hashes_computed_total/fingerprint"])
	assert.Equal(t, float64(2), values["eventhash_discard_checks_total"])
	assert.Equal(t, float64(1), values["eventhash_discarded_total"])
	assert.Equal(t, float64(2), values["eventhash_tombstone_rows_total/inserted"])
	assert.Equal(t, float64(1), values["eventhash_tombstone_rows_total/existing"])
}

func TestCollector_DiskCacheMetrics(t *testing.T) {
	stats := NewPipelineStats(time.Hour)
	c := NewCollector(stats).WithDiskCache(func() rawcache.MetricsSnapshot {
		return rawcache.MetricsSnapshot{Hits: 3, Misses: 1, Entries: 2, SizeBytes: 512}
	})

	// 9 pipeline series plus 6 raw cache series
	assert.Equal(t, 15, testutil.CollectAndCount(c))
	assert.Equal(t, 6, testutil.CollectAndCount(c,
		"eventhash_rawcache_hits_total", "eventhash_rawcache_misses_total",
		"eventhash_rawcache_expired_total", "eventhash_rawcache_evictions_total",
		"eventhash_rawcache_entries", "eventhash_rawcache_size_bytes"))
	assert.Equal(t, 9, testutil.CollectAndCount(NewCollector(stats)))
}
