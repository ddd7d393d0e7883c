// ABOUTME: Per-query duration recorder
// ABOUTME: Tracks count, min, max and mean under a mutex

package query

import (
	"sync"
	"time"
)

type recorder struct {
	mu          sync.Mutex
	count       int64
	failures    int64
	total       time.Duration
	min         time.Duration
	max         time.Duration
	comparisons int64
}

func (r *recorder) record(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 || res.Duration < r.min {
		r.min = res.Duration
	}
	if res.Duration > r.max {
		r.max = res.Duration
	}
	r.count++
	r.total += res.Duration
	if res.Err != nil {
		r.failures++
	}
}

func (r *recorder) recordComparison() {
	r.mu.Lock()
	r.comparisons++
	r.mu.Unlock()
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// fill copies the timing fields into s
func (r *recorder) fill(s *Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.TotalQueries = r.count
	s.Failures = r.failures
	s.Comparisons = r.comparisons
	if r.count > 0 {
		s.AverageMs = toMs(r.total) / float64(r.count)
		s.MinMs = toMs(r.min)
		s.MaxMs = toMs(r.max)
	}
}
