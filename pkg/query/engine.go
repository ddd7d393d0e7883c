// ABOUTME: Lazy section-loading query engine
// ABOUTME: Routes expressions through fast, complex and batch paths over two caches

package query

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nainya/sectionquery/internal/logger"
	"github.com/nainya/sectionquery/internal/metrics"
	"github.com/nainya/sectionquery/pkg/cache"
	"github.com/nainya/sectionquery/pkg/document"
	"github.com/nainya/sectionquery/pkg/expr"
	"github.com/nainya/sectionquery/pkg/selector"
	"github.com/nainya/sectionquery/pkg/storage"
)

const tracerName = "github.com/nainya/sectionquery/pkg/query"

// DefaultBatchConcurrency bounds how many section groups a batch resolves at once
const DefaultBatchConcurrency = 4

// Engine resolves path expressions against documents in a store. It owns
// its section and result caches; create one per host and share it.
type Engine struct {
	locator     *document.Locator
	canon       storage.Canonicalizer
	sections    *cache.Cache[*document.Section]
	results     *cache.Cache[*cachedResult]
	newSelector selector.Factory
	sel         selector.Selector

	log        *logger.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	batchLimit int

	stats recorder
}

type options struct {
	log         *logger.Logger
	metrics     *metrics.Metrics
	tp          trace.TracerProvider
	factory     selector.Factory
	chunkSize   int
	probeSize   int
	maxSections int
	maxResults  int
	batchLimit  int
}

// Option configures an Engine
type Option func(*options)

// WithLogger sets the engine logger
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records engine activity in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracerProvider overrides the global OpenTelemetry provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithSelectorFactory replaces the GraphQL selector
func WithSelectorFactory(f selector.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithChunkSize sets the locator scan chunk size
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithProbeSize sets the bounded probe size
func WithProbeSize(n int) Option {
	return func(o *options) { o.probeSize = n }
}

// WithMaxSectionEntries bounds the section cache. Zero keeps it unbounded.
func WithMaxSectionEntries(n int) Option {
	return func(o *options) { o.maxSections = n }
}

// WithMaxResultEntries bounds the result cache. Zero keeps it unbounded.
func WithMaxResultEntries(n int) Option {
	return func(o *options) { o.maxResults = n }
}

// WithBatchConcurrency bounds concurrent section groups in ProcessMany
func WithBatchConcurrency(n int) Option {
	return func(o *options) { o.batchLimit = n }
}

// New creates an engine over store
func New(store storage.Store, opts ...Option) *Engine {
	o := options{
		chunkSize:  document.DefaultChunkSize,
		probeSize:  document.DefaultProbeSize,
		batchLimit: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	if o.tp == nil {
		o.tp = otel.GetTracerProvider()
	}
	if o.factory == nil {
		o.factory = selector.NewGraphQLFactory()
	}
	if o.batchLimit < 1 {
		o.batchLimit = 1
	}

	e := &Engine{
		newSelector: o.factory,
		sel:         o.factory(),
		log:         o.log.EngineLogger("query"),
		metrics:     o.metrics,
		tracer:      o.tp.Tracer(tracerName),
		batchLimit:  o.batchLimit,
	}

	e.canon, _ = store.(storage.Canonicalizer)
	e.locator = document.NewLocator(store,
		document.WithChunkSize(o.chunkSize),
		document.WithProbeSize(o.probeSize),
		document.WithObserver(e.observeScan),
	)
	e.sections = cache.New[*document.Section](
		cache.WithMaxEntries(o.maxSections),
		cache.WithEvictCallback(e.evicted(metrics.CacheSection)),
	)
	e.results = cache.New[*cachedResult](
		cache.WithMaxEntries(o.maxResults),
		cache.WithEvictCallback(e.evicted(metrics.CacheResult)),
	)
	return e
}

// Locator exposes the engine's section locator
func (e *Engine) Locator() *document.Locator {
	return e.locator
}

// Process resolves one expression. ctx is used for tracing only; scans
// are not cancellable.
func (e *Engine) Process(ctx context.Context, docID, expression string) *Result {
	_, span := e.tracer.Start(ctx, "query.Process",
		trace.WithAttributes(
			attribute.String("document.id", docID),
			attribute.String("query.expression", expression),
		),
	)
	defer span.End()

	start := time.Now()
	id := e.canonicalID(docID)
	var res *Result
	if expr.IsTrivial(expression) {
		res = e.fastPath(docID, id, expression)
	} else {
		res = e.complexPath(docID, id, expression)
	}
	res.Duration = time.Since(start)

	e.finish(res)
	endSpan(span, res)
	return res
}

// canonicalID is the id both caches key docID under. Ids the store rejects
// are kept as given; opening them fails the same way later.
func (e *Engine) canonicalID(docID string) string {
	if e.canon == nil {
		return docID
	}
	id, err := e.canon.CanonicalID(docID)
	if err != nil {
		return docID
	}
	return id
}

// fastPath skips analysis and serves from the result cache when it can
func (e *Engine) fastPath(docID, id, expression string) *Result {
	res := &Result{DocumentID: docID, Expression: expression, Route: RouteFast}

	key := cache.Key{Document: id, Name: expression}
	cr, hit, err := e.results.GetOrCompute(key, func() (*cachedResult, error) {
		sec, err := e.section(id, expr.FastSectionTag(expression))
		if err != nil {
			return nil, err
		}
		nodes, err := e.selectSection(e.sel, sec, expression)
		if err != nil {
			return nil, err
		}
		return &cachedResult{nodes: nodes, section: sec}, nil
	})
	e.recordLookup(metrics.CacheResult, hit)
	if err != nil {
		return res.fail(err)
	}

	res.Nodes, res.Section, res.CacheHit = slices.Clone(cr.nodes), cr.section, hit
	return res
}

// complexPath analyzes the expression and hands only its primary section
// to the selector. Results are not cached.
func (e *Engine) complexPath(docID, id, expression string) *Result {
	a := expr.Analyze(expression)
	res := &Result{DocumentID: docID, Expression: expression, Route: RouteComplex, Analysis: a}

	sec, err := e.section(id, sectionTag(a))
	if err != nil {
		return res.fail(err)
	}
	res.Section = sec

	nodes, err := e.selectSection(e.sel, sec, expression)
	if err != nil {
		return res.fail(err)
	}
	res.Nodes = nodes
	return res
}

// sectionTag is the section an analyzed expression loads; expressions
// with no components only get the bounded probe
func sectionTag(a *expr.Analysis) string {
	if len(a.Components) == 0 {
		return document.KindProbe
	}
	return a.PrimarySection()
}

// section returns the cached section for tag, locating it on first use
func (e *Engine) section(docID, tag string) (*document.Section, error) {
	sec, hit, err := e.sections.GetOrCompute(cache.Key{Document: docID, Name: tag}, func() (*document.Section, error) {
		if tag == document.KindProbe {
			return e.locator.Probe(docID)
		}
		return e.locator.Locate(docID, tag)
	})
	e.recordLookup(metrics.CacheSection, hit)
	return sec, err
}

// selectSection runs the selector over a section so node positions are
// reported against the whole document
func (e *Engine) selectSection(sel selector.Selector, sec *document.Section, expression string) ([]*selector.Node, error) {
	return e.selectNodes(sel, sec.Content, expression, selector.Origin{Line: sec.At.Line, Column: sec.At.Column})
}

// selectNodes runs the selector, converting errors and panics into
// ErrSelectorFailure
func (e *Engine) selectNodes(sel selector.Selector, text, expression string, at selector.Origin) (nodes []*selector.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			nodes = nil
			err = fmt.Errorf("%w: panic: %v", ErrSelectorFailure, r)
		}
	}()

	nodes, err = sel.SelectMany(text, expression, at)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSelectorFailure, err)
	}
	return nodes, nil
}

// ProcessMany resolves several expressions against one document, loading
// each required section once. Results are in input order.
func (e *Engine) ProcessMany(ctx context.Context, docID string, expressions []string) []*Result {
	_, span := e.tracer.Start(ctx, "query.ProcessMany",
		trace.WithAttributes(
			attribute.String("document.id", docID),
			attribute.Int("query.count", len(expressions)),
		),
	)
	defer span.End()

	results := make([]*Result, len(expressions))
	analyses := make([]*expr.Analysis, len(expressions))

	groups := make(map[string][]int)
	var order []string
	for i, x := range expressions {
		analyses[i] = expr.Analyze(x)
		tag := sectionTag(analyses[i])
		if _, ok := groups[tag]; !ok {
			order = append(order, tag)
		}
		groups[tag] = append(groups[tag], i)
	}
	span.SetAttributes(attribute.Int("query.groups", len(order)))

	id := e.canonicalID(docID)
	var g errgroup.Group
	g.SetLimit(e.batchLimit)
	for _, tag := range order {
		idxs := groups[tag]
		g.Go(func() error {
			e.resolveGroup(docID, id, tag, idxs, expressions, analyses, results)
			return nil
		})
	}
	_ = g.Wait()

	failures := 0
	for _, res := range results {
		e.finish(res)
		if res.Err != nil {
			failures++
		}
	}
	span.SetAttributes(attribute.Int("query.failures", failures))
	if failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d expressions failed", failures, len(results)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return results
}

// resolveGroup loads one section and resolves every expression of the
// group against it with a selector private to the group
func (e *Engine) resolveGroup(docID, id, tag string, idxs []int, expressions []string, analyses []*expr.Analysis, results []*Result) {
	loadStart := time.Now()
	sec, loadErr := e.section(id, tag)
	load := time.Since(loadStart)

	sel := e.newSelector()
	for _, i := range idxs {
		start := time.Now()
		res := &Result{
			DocumentID: docID,
			Expression: expressions[i],
			Route:      RouteBatch,
			Analysis:   analyses[i],
		}

		if loadErr != nil {
			res.fail(loadErr)
			res.Duration = load + time.Since(start)
			results[i] = res
			continue
		}

		resolve := func() (*cachedResult, error) {
			nodes, err := e.selectSection(sel, sec, expressions[i])
			if err != nil {
				return nil, err
			}
			return &cachedResult{nodes: nodes, section: sec}, nil
		}

		var (
			cr  *cachedResult
			hit bool
			err error
		)
		if analyses[i].Cacheable {
			cr, hit, err = e.results.GetOrCompute(cache.Key{Document: id, Name: expressions[i]}, resolve)
			e.recordLookup(metrics.CacheResult, hit)
		} else {
			cr, err = resolve()
		}

		if err != nil {
			res.fail(err)
		} else {
			res.Nodes, res.Section, res.CacheHit = slices.Clone(cr.nodes), cr.section, hit
		}
		res.Duration = time.Since(start)
		results[i] = res
	}
}

// Compare measures full-document resolution against section-only
// resolution. Both sides bypass the caches and use their own selector.
func (e *Engine) Compare(ctx context.Context, docID, expression string) *Comparison {
	_, span := e.tracer.Start(ctx, "query.Compare",
		trace.WithAttributes(
			attribute.String("document.id", docID),
			attribute.String("query.expression", expression),
		),
	)
	defer span.End()

	cmp := &Comparison{DocumentID: docID, Expression: expression}
	traditional, lazy := e.newSelector(), e.newSelector()

	start := time.Now()
	tradNodes, tradErr := e.traditional(traditional, docID, expression)
	cmp.TraditionalTime = time.Since(start)

	start = time.Now()
	lazyNodes, lazyErr := e.lazy(lazy, docID, expression)
	cmp.LazyTime = time.Since(start)

	cmp.TraditionalResultSize, cmp.TraditionalError = sizeOf(tradNodes, tradErr)
	cmp.LazyResultSize, cmp.LazyError = sizeOf(lazyNodes, lazyErr)

	switch {
	case tradErr != nil && lazyErr != nil:
		cmp.ResultsMatch = true
	case tradErr != nil || lazyErr != nil:
		cmp.ResultsMatch = false
	default:
		cmp.ResultsMatch = cmp.TraditionalResultSize == cmp.LazyResultSize
	}
	cmp.ImprovementPercent = improvement(cmp.TraditionalTime, cmp.LazyTime)

	e.stats.recordComparison()
	if e.metrics != nil {
		e.metrics.RecordComparison(cmp.ImprovementPercent, cmp.ResultsMatch)
	}
	span.SetAttributes(
		attribute.Bool("compare.results_match", cmp.ResultsMatch),
		attribute.Float64("compare.improvement_percent", cmp.ImprovementPercent),
	)
	e.log.Debug("comparison completed").
		Str("document", docID).
		Str("expression", expression).
		Float64("traditional_ms", cmp.TraditionalMs()).
		Float64("lazy_ms", cmp.LazyMs()).
		Bool("results_match", cmp.ResultsMatch).
		Send()
	return cmp
}

func (e *Engine) traditional(sel selector.Selector, docID, expression string) ([]*selector.Node, error) {
	text, err := e.locator.ReadAll(docID)
	if err != nil {
		return nil, err
	}
	return e.selectNodes(sel, text, expression, selector.Origin{})
}

func (e *Engine) lazy(sel selector.Selector, docID, expression string) ([]*selector.Node, error) {
	var tag string
	if expr.IsTrivial(expression) {
		tag = expr.FastSectionTag(expression)
	} else {
		tag = sectionTag(expr.Analyze(expression))
	}

	var (
		sec *document.Section
		err error
	)
	if tag == document.KindProbe {
		sec, err = e.locator.Probe(docID)
	} else {
		sec, err = e.locator.Locate(docID, tag)
	}
	if err != nil {
		return nil, err
	}
	return e.selectSection(sel, sec, expression)
}

func sizeOf(nodes []*selector.Node, err error) (int, string) {
	if err != nil {
		return -1, err.Error()
	}
	return len(nodes), ""
}

// improvement is the percentage of traditional time saved; zero when the
// traditional time is zero
func improvement(traditional, lazy time.Duration) float64 {
	if traditional <= 0 {
		return 0
	}
	return float64(traditional-lazy) / float64(traditional) * 100
}

// ClearDocumentCache drops every cached section and result of docID and
// returns how many entries were removed. Any id the store resolves to the
// same document clears the same entries.
func (e *Engine) ClearDocumentCache(docID string) int {
	id := e.canonicalID(docID)
	n := e.sections.ClearDocument(id) + e.results.ClearDocument(id)
	e.updateCacheGauges()
	e.log.Debug("document cache cleared").Str("document", docID).Int("entries", n).Send()
	return n
}

// ClearCaches empties both caches
func (e *Engine) ClearCaches() {
	e.sections.Clear()
	e.results.Clear()
	e.updateCacheGauges()
	e.log.Debug("caches cleared").Send()
}

// Stats returns a snapshot of engine statistics
func (e *Engine) Stats() Stats {
	var s Stats
	e.stats.fill(&s)

	sec, res := e.sections.Stats(), e.results.Stats()
	s.SectionCacheSize = sec.Entries
	s.ResultCacheSize = res.Entries
	s.CacheSize = sec.Entries + res.Entries
	s.CacheHits = sec.Hits + res.Hits
	s.CacheMisses = sec.Misses + res.Misses
	s.CacheEvictions = sec.Evictions + res.Evictions
	s.Scans = e.locator.Scans()
	s.BytesRead = e.locator.BytesRead()
	return s
}

// finish records a completed result in stats, metrics and the log
func (e *Engine) finish(res *Result) {
	e.stats.record(res)
	if e.metrics != nil {
		e.metrics.RecordQuery(res.Route.String(), len(res.Nodes), res.Duration, res.Err)
		e.updateCacheGauges()
	}
	e.log.LogQuery(res.DocumentID, res.Expression, res.Route.String(), len(res.Nodes), res.CacheHit, res.Duration, res.Err)
}

func endSpan(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.String("query.route", res.Route.String()),
		attribute.Int("query.nodes", len(res.Nodes)),
		attribute.Bool("query.cache_hit", res.CacheHit),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.ErrKind.String())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (e *Engine) observeScan(ev document.ScanEvent) {
	if e.metrics != nil {
		e.metrics.RecordScan(ev.Kind, ev.Found, ev.Read, ev.Duration)
	}
	e.log.LogSectionScan(ev.DocumentID, ev.Kind, ev.Scanned, ev.Read, ev.Found, ev.Duration, ev.Err)
}

func (e *Engine) recordLookup(name string, hit bool) {
	if e.metrics != nil {
		e.metrics.RecordCacheLookup(name, hit)
	}
}

func (e *Engine) evicted(name string) func(cache.Key) {
	return func(cache.Key) {
		if e.metrics != nil {
			e.metrics.RecordCacheEviction(name)
		}
	}
}

func (e *Engine) updateCacheGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.SetCacheEntries(metrics.CacheSection, e.sections.Len())
	e.metrics.SetCacheEntries(metrics.CacheResult, e.results.Len())
}
