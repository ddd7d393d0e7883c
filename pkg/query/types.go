// ABOUTME: Query engine result types
// ABOUTME: Results, failure kinds, comparisons and engine statistics

package query

import (
	"errors"
	"time"

	"github.com/nainya/sectionquery/pkg/document"
	"github.com/nainya/sectionquery/pkg/expr"
	"github.com/nainya/sectionquery/pkg/selector"
)

// ErrSelectorFailure marks errors raised by the node selector, including
// recovered panics. Anything else reaching a result is an I/O failure.
var ErrSelectorFailure = errors.New("selector failure")

// Route is the processing path a result took
type Route int

const (
	RouteFast Route = iota
	RouteComplex
	RouteBatch
)

func (r Route) String() string {
	switch r {
	case RouteFast:
		return "fast"
	case RouteComplex:
		return "complex"
	case RouteBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// ErrKind classifies a failed result
type ErrKind int

const (
	ErrNone ErrKind = iota
	ErrIOFailure
	ErrSelector
)

func (k ErrKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrIOFailure:
		return "io_failure"
	case ErrSelector:
		return "selector_failure"
	default:
		return "unknown"
	}
}

func classify(err error) ErrKind {
	switch {
	case err == nil:
		return ErrNone
	case errors.Is(err, ErrSelectorFailure):
		return ErrSelector
	default:
		return ErrIOFailure
	}
}

// Result is the outcome of resolving one expression. Failures are carried
// in Err and ErrKind; Duration is set either way.
type Result struct {
	DocumentID string
	Expression string
	Route      Route
	Analysis   *expr.Analysis    // Nil on the fast path
	Nodes      []*selector.Node  // Owned by the caller; the nodes are shared and read-only
	Section    *document.Section // Shared with the section cache; read-only
	CacheHit   bool
	Duration   time.Duration
	Err        error
	ErrKind    ErrKind
}

// OK reports whether the expression resolved without error
func (r *Result) OK() bool {
	return r.Err == nil
}

// DurationMs returns the elapsed time in milliseconds
func (r *Result) DurationMs() float64 {
	return float64(r.Duration) / float64(time.Millisecond)
}

func (r *Result) fail(err error) *Result {
	r.Err = err
	r.ErrKind = classify(err)
	r.Nodes = nil
	return r
}

// cachedResult is what the result cache holds for a cacheable expression
type cachedResult struct {
	nodes   []*selector.Node
	section *document.Section
}

// Comparison is a side-by-side measurement of full-document and
// section-only resolution of one expression
type Comparison struct {
	DocumentID            string
	Expression            string
	TraditionalTime       time.Duration
	LazyTime              time.Duration
	TraditionalResultSize int // -1 when the full-document path failed
	LazyResultSize        int // -1 when the section path failed
	ImprovementPercent    float64
	ResultsMatch          bool
	TraditionalError      string
	LazyError             string
}

// TraditionalMs returns the full-document time in milliseconds
func (c *Comparison) TraditionalMs() float64 {
	return float64(c.TraditionalTime) / float64(time.Millisecond)
}

// LazyMs returns the section-only time in milliseconds
func (c *Comparison) LazyMs() float64 {
	return float64(c.LazyTime) / float64(time.Millisecond)
}

// Stats summarises everything the engine has done since creation
type Stats struct {
	TotalQueries     int64
	Failures         int64
	AverageMs        float64
	MinMs            float64
	MaxMs            float64
	CacheSize        int // Section plus result entries
	SectionCacheSize int
	ResultCacheSize  int
	CacheHits        int64
	CacheMisses      int64
	CacheEvictions   int64
	Scans            int64
	BytesRead        int64
	Comparisons      int64
}
