package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordQuery(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordQuery("fast", 2, time.Millisecond, nil)
	m.RecordQuery("fast", 0, time.Millisecond, errors.New("boom"))
	m.RecordQuery("complex", 1, time.Millisecond, nil)

	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("fast", "ok")); got != 1 {
		t.Errorf("Expected 1 ok fast query, got %v", got)
	}
	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("fast", "error")); got != 1 {
		t.Errorf("Expected 1 failed fast query, got %v", got)
	}
	if got := testutil.ToFloat64(m.NodesReturned); got != 3 {
		t.Errorf("Expected 3 nodes, got %v", got)
	}
}

func TestCacheMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCacheLookup(CacheSection, true)
	m.RecordCacheLookup(CacheSection, false)
	m.RecordCacheLookup(CacheSection, false)
	m.RecordCacheEviction(CacheResult)
	m.SetCacheEntries(CacheResult, 5)

	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues(CacheSection, "miss")); got != 2 {
		t.Errorf("Expected 2 misses, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheEntries.WithLabelValues(CacheResult)); got != 5 {
		t.Errorf("Expected 5 entries, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheEvictionsTotal.WithLabelValues(CacheResult)); got != 1 {
		t.Errorf("Expected 1 eviction, got %v", got)
	}
}

func TestScanAndComparison(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordScan("query", true, 128, time.Millisecond)
	m.RecordComparison(42.5, true)

	expected := `
# HELP sectionquery_bytes_read_total Total bytes read from backing documents
# TYPE sectionquery_bytes_read_total counter
sectionquery_bytes_read_total 128
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "sectionquery_bytes_read_total"); err != nil {
		t.Errorf("Unexpected bytes metric: %v", err)
	}
	if got := testutil.ToFloat64(m.ComparisonsTotal.WithLabelValues("true")); got != 1 {
		t.Errorf("Expected 1 matching comparison, got %v", got)
	}
}

func TestIsolatedRegistries(t *testing.T) {
	// Two instances on separate registries must not collide
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
