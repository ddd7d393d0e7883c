// Integration tests for the sectionquery gRPC server
package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/sectionquery/internal/logger"
	"github.com/nainya/sectionquery/internal/metrics"
	"github.com/nainya/sectionquery/pkg/query"
	"github.com/nainya/sectionquery/pkg/storage"
)

const bufSize = 1024 * 1024

const heroDoc = `query HeroNameAndFriends {
  hero {
    name
    friends { name }
  }
}

mutation CreateReview {
  createReview(episode: JEDI, review: { stars: 5 }) { stars }
}
`

type testEnv struct {
	client  *QueryServiceClient
	conn    *grpc.ClientConn
	metrics *metrics.Metrics
	store   *storage.MemStore
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	ms := storage.NewMemStore()
	ms.Put("hero.graphql", heroDoc)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	engine := query.New(ms, query.WithMetrics(m))

	lis := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(GrpcMetricsInterceptor(m, logger.Nop())))
	RegisterQueryServiceServer(grpcServer, NewServer(engine))

	go func() {
		// Serve returns when the test stops the server
		_ = grpcServer.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		grpcServer.Stop()
		lis.Close()
	})

	return &testEnv{client: NewQueryServiceClient(conn), conn: conn, metrics: m, store: ms}
}

func fieldNumber(t *testing.T, s *structpb.Struct, key string) float64 {
	t.Helper()
	v, ok := s.GetFields()[key]
	require.True(t, ok, "missing field %s", key)
	return v.GetNumberValue()
}

func TestProcess(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	resp, err := env.client.Process(ctx, "hero.graphql", "//hero/name")
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.Equal(t, "fast", fields["route"].GetStringValue())
	assert.Equal(t, "none", fields["error_kind"].GetStringValue())
	assert.False(t, fields["cache_hit"].GetBoolValue())
	assert.Equal(t, float64(1), fieldNumber(t, resp, "node_count"))

	nodes := fields["nodes"].GetListValue().GetValues()
	require.Len(t, nodes, 1)
	node := nodes[0].GetStructValue().GetFields()
	assert.Equal(t, "name", node["name"].GetStringValue())
	assert.Equal(t, "field", node["kind"].GetStringValue())

	section := fields["section"].GetStructValue().GetFields()
	assert.Equal(t, "query", section["kind"].GetStringValue())
	assert.True(t, section["found"].GetBoolValue())

	resp, err = env.client.Process(ctx, "hero.graphql", "//hero/name")
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["cache_hit"].GetBoolValue())
}

func TestProcessComplexIncludesAnalysis(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.Process(context.Background(), "hero.graphql", "/mutation/createReview/stars")
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.Equal(t, "complex", fields["route"].GetStringValue())
	analysis := fields["analysis"].GetStructValue().GetFields()
	sections := analysis["required_sections"].GetListValue().GetValues()
	require.NotEmpty(t, sections)
	assert.Equal(t, "mutation", fields["section"].GetStructValue().GetFields()["kind"].GetStringValue())
	assert.Equal(t, float64(1), fieldNumber(t, resp, "node_count"))
}

func TestProcessFailureTravelsInPayload(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.Process(context.Background(), "missing.graphql", "//hero")
	require.NoError(t, err, "query failures are data, not RPC errors")

	fields := resp.GetFields()
	assert.Equal(t, "io_failure", fields["error_kind"].GetStringValue())
	assert.NotEmpty(t, fields["error"].GetStringValue())
}

func TestInvalidArguments(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	_, err := env.client.Process(ctx, "", "//hero")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.ClearDocumentCache(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// Expressions must be strings
	req, err := structpb.NewStruct(map[string]interface{}{
		"document_id": "hero.graphql",
		"expressions": []interface{}{"//hero", 42.0},
	})
	require.NoError(t, err)
	out := new(structpb.Struct)
	err = env.conn.Invoke(ctx, MethodProcessMany, req, out)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// An empty list
	_, err = env.client.ProcessMany(ctx, "hero.graphql", nil)
	require.NoError(t, err, "an empty list is a valid batch")
}

func TestProcessMany(t *testing.T) {
	env := setupTestServer(t)

	expressions := []string{"//hero/name", "//friends/name", "//mutation//stars"}
	resp, err := env.client.ProcessMany(context.Background(), "hero.graphql", expressions)
	require.NoError(t, err)

	results := resp.GetFields()["results"].GetListValue().GetValues()
	require.Len(t, results, len(expressions))
	for i, r := range results {
		fields := r.GetStructValue().GetFields()
		assert.Equal(t, expressions[i], fields["expression"].GetStringValue())
		assert.Equal(t, "batch", fields["route"].GetStringValue())
		assert.Equal(t, float64(1), fields["node_count"].GetNumberValue(), expressions[i])
	}
}

func TestCompare(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.Compare(context.Background(), "hero.graphql", "//hero/name")
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.True(t, fields["results_match"].GetBoolValue())
	assert.Equal(t, float64(1), fieldNumber(t, resp, "traditional_result_size"))
	assert.Equal(t, float64(1), fieldNumber(t, resp, "lazy_result_size"))
}

func TestCacheOperationsAndStats(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	_, err := env.client.Process(ctx, "hero.graphql", "//hero")
	require.NoError(t, err)

	resp, err := env.client.ClearDocumentCache(ctx, "hero.graphql")
	require.NoError(t, err)
	assert.Equal(t, float64(2), fieldNumber(t, resp, "removed"))

	_, err = env.client.Process(ctx, "hero.graphql", "//hero")
	require.NoError(t, err)
	_, err = env.client.ClearCaches(ctx)
	require.NoError(t, err)

	stats, err := env.client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(2), fieldNumber(t, stats, "total_queries"))
	assert.Equal(t, float64(0), fieldNumber(t, stats, "cache_size"))
	assert.Equal(t, float64(2), fieldNumber(t, stats, "scans"))
	assert.Equal(t, Version, stats.GetFields()["version"].GetStringValue())

	ops := stats.GetFields()["operation_counts"].GetStructValue().GetFields()
	assert.Equal(t, float64(2), ops["Process"].GetNumberValue())
	assert.Equal(t, float64(1), ops["ClearCaches"].GetNumberValue())
	assert.Equal(t, float64(1), ops["Stats"].GetNumberValue())

	stats, err = env.client.Stats(ctx)
	require.NoError(t, err)
	ops = stats.GetFields()["operation_counts"].GetStructValue().GetFields()
	assert.Equal(t, float64(2), ops["Stats"].GetNumberValue())
}

func TestInterceptorRecordsRequests(t *testing.T) {
	env := setupTestServer(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDHeader, "req-123")

	var header metadata.MD
	_, err := env.client.Process(ctx, "hero.graphql", "//hero", grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-123"}, header.Get(RequestIDHeader))

	_, err = env.client.Stats(context.Background(), grpc.Header(&header))
	require.NoError(t, err)
	ids := header.Get(RequestIDHeader)
	require.Len(t, ids, 1)
	assert.Len(t, ids[0], 36, "generated ids are UUIDs")

	_, err = env.client.Process(context.Background(), "", "//hero")
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.GrpcRequestsTotal.WithLabelValues(MethodProcess, "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.GrpcRequestsTotal.WithLabelValues(MethodProcess, "error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(env.metrics.GrpcRequestsInFlight))
}

func TestObservabilityEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.RecordQuery("fast", 1, 0, nil)

	obs := NewObservabilityServer("127.0.0.1:0", reg, logger.Nop())
	ts := httptest.NewServer(obs.Handler())
	defer ts.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "healthy")

	code, _ = get("/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	obs.SetReady(true)
	code, body = get("/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "ready")

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(body, `sectionquery_queries_total{route="fast",status="ok"} 1`), body)
}
