// Package server implements the gRPC QueryService over the query engine
package server

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/sectionquery/pkg/query"
	"github.com/nainya/sectionquery/pkg/selector"
)

// Version is reported by Stats
const Version = "1.0.0"

// Server implements QueryServiceServer
type Server struct {
	engine *query.Engine

	startTime time.Time
	mu        sync.Mutex
	opCounts  map[string]int64
}

// NewServer creates a service over engine
func NewServer(engine *query.Engine) *Server {
	return &Server{
		engine:    engine,
		startTime: time.Now(),
		opCounts:  make(map[string]int64),
	}
}

func (s *Server) count(op string) {
	s.mu.Lock()
	s.opCounts[op]++
	s.mu.Unlock()
}

// ========== Query Operations ==========

func (s *Server) Process(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Process")

	docID, err := requiredString(req, "document_id")
	if err != nil {
		return nil, err
	}
	expression, err := stringField(req, "expression")
	if err != nil {
		return nil, err
	}

	res := s.engine.Process(ctx, docID, expression)
	return toStruct(resultMap(res))
}

func (s *Server) ProcessMany(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("ProcessMany")

	docID, err := requiredString(req, "document_id")
	if err != nil {
		return nil, err
	}
	expressions, err := stringList(req, "expressions")
	if err != nil {
		return nil, err
	}

	results := s.engine.ProcessMany(ctx, docID, expressions)
	list := make([]interface{}, len(results))
	for i, r := range results {
		list[i] = resultMap(r)
	}
	return toStruct(map[string]interface{}{
		"document_id": docID,
		"results":     list,
	})
}

func (s *Server) Compare(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Compare")

	docID, err := requiredString(req, "document_id")
	if err != nil {
		return nil, err
	}
	expression, err := stringField(req, "expression")
	if err != nil {
		return nil, err
	}

	c := s.engine.Compare(ctx, docID, expression)
	return toStruct(map[string]interface{}{
		"document_id":             c.DocumentID,
		"expression":              c.Expression,
		"traditional_time_ms":     c.TraditionalMs(),
		"lazy_time_ms":            c.LazyMs(),
		"traditional_result_size": c.TraditionalResultSize,
		"lazy_result_size":        c.LazyResultSize,
		"improvement_percent":     c.ImprovementPercent,
		"results_match":           c.ResultsMatch,
		"traditional_error":       c.TraditionalError,
		"lazy_error":              c.LazyError,
	})
}

// ========== Cache Operations ==========

func (s *Server) ClearDocumentCache(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("ClearDocumentCache")

	docID, err := requiredString(req, "document_id")
	if err != nil {
		return nil, err
	}
	n := s.engine.ClearDocumentCache(docID)
	return toStruct(map[string]interface{}{
		"document_id": docID,
		"removed":     n,
	})
}

func (s *Server) ClearCaches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("ClearCaches")

	s.engine.ClearCaches()
	return toStruct(map[string]interface{}{"cleared": true})
}

// ========== Status ==========

func (s *Server) Stats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Stats")
	st := s.engine.Stats()

	s.mu.Lock()
	ops := make(map[string]interface{}, len(s.opCounts))
	for k, v := range s.opCounts {
		ops[k] = v
	}
	s.mu.Unlock()

	return toStruct(map[string]interface{}{
		"version":            Version,
		"uptime_seconds":     int64(time.Since(s.startTime).Seconds()),
		"total_queries":      st.TotalQueries,
		"failures":           st.Failures,
		"average_ms":         st.AverageMs,
		"min_ms":             st.MinMs,
		"max_ms":             st.MaxMs,
		"cache_size":         st.CacheSize,
		"section_cache_size": st.SectionCacheSize,
		"result_cache_size":  st.ResultCacheSize,
		"cache_hits":         st.CacheHits,
		"cache_misses":       st.CacheMisses,
		"cache_evictions":    st.CacheEvictions,
		"scans":              st.Scans,
		"bytes_read":         st.BytesRead,
		"comparisons":        st.Comparisons,
		"operation_counts":   ops,
	})
}

// ========== Conversion ==========

func resultMap(r *query.Result) map[string]interface{} {
	nodes := make([]interface{}, len(r.Nodes))
	for i, n := range r.Nodes {
		nodes[i] = nodeMap(n)
	}

	m := map[string]interface{}{
		"document_id": r.DocumentID,
		"expression":  r.Expression,
		"route":       r.Route.String(),
		"cache_hit":   r.CacheHit,
		"duration_ms": r.DurationMs(),
		"node_count":  len(r.Nodes),
		"nodes":       nodes,
		"error_kind":  r.ErrKind.String(),
	}
	if r.Err != nil {
		m["error"] = r.Err.Error()
	}
	if r.Section != nil {
		m["section"] = map[string]interface{}{
			"kind":  r.Section.Kind,
			"start": r.Section.Start,
			"end":   r.Section.End,
			"found": r.Section.Found(),
		}
	}
	if r.Analysis != nil {
		sections := make([]interface{}, len(r.Analysis.RequiredSections))
		for i, tag := range r.Analysis.RequiredSections {
			sections[i] = tag
		}
		m["analysis"] = map[string]interface{}{
			"required_sections": sections,
			"complexity":        r.Analysis.Complexity.String(),
			"score":             r.Analysis.Score,
			"cacheable":         r.Analysis.Cacheable,
		}
	}
	return m
}

func nodeMap(n *selector.Node) map[string]interface{} {
	m := map[string]interface{}{
		"kind":   n.Kind.String(),
		"name":   n.Name,
		"path":   n.Path,
		"line":   n.Line,
		"column": n.Column,
	}
	if n.Alias != "" {
		m["alias"] = n.Alias
	}
	if n.Value != "" {
		m["value"] = n.Value
	}
	if n.TypeCondition != "" {
		m["type_condition"] = n.TypeCondition
	}
	return m
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func stringField(req *structpb.Struct, key string) (string, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s must be a string", key)
	}
	return sv.StringValue, nil
}

func requiredString(req *structpb.Struct, key string) (string, error) {
	s, err := stringField(req, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return s, nil
}

func stringList(req *structpb.Struct, key string) ([]string, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	lv, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be a list of strings", key)
	}
	out := make([]string, 0, len(lv.ListValue.GetValues()))
	for i, item := range lv.ListValue.GetValues() {
		sv, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "%s[%d] must be a string", key, i)
		}
		out = append(out, sv.StringValue)
	}
	return out, nil
}
