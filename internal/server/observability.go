// Observability middleware and HTTP server for metrics and profiling
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/nainya/sectionquery/internal/logger"
	"github.com/nainya/sectionquery/internal/metrics"
)

// RequestIDHeader carries the request id in gRPC metadata
const RequestIDHeader = "x-request-id"

// requestID returns the caller's request id or a fresh one
func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return uuid.NewString()
}

// GrpcMetricsInterceptor creates a gRPC interceptor for metrics and logging.
// Every response carries the request id in its header metadata.
func GrpcMetricsInterceptor(m *metrics.Metrics, log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		m.GrpcRequestsInFlight.Inc()
		defer m.GrpcRequestsInFlight.Dec()

		id := requestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

		// Call the handler
		resp, err := handler(ctx, req)

		// Record metrics
		duration := time.Since(start)
		status := "success"
		if err != nil {
			status = "error"
		}

		m.RecordGrpcRequest(info.FullMethod, status, duration)

		// Log request
		log.LogGrpcRequest(info.FullMethod, id, duration, err)

		return resp, err
	}
}

// ObservabilityServer provides HTTP endpoints for metrics and profiling
type ObservabilityServer struct {
	server *http.Server
	log    *logger.Logger
	ready  atomic.Bool
}

// NewObservabilityServer creates a new HTTP server for observability.
// Metrics are served from gatherer; nil uses the default registry.
func NewObservabilityServer(addr string, gatherer prometheus.Gatherer, log *logger.Logger) *ObservabilityServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	o := &ObservabilityServer{log: log}

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"sectionquery"}`))
	})

	// Readiness flips once the gRPC listener is serving
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !o.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"starting"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/allocs", pprof.Handler("allocs"))
	mux.Handle("/debug/pprof/block", pprof.Handler("block"))
	mux.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))

	o.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return o
}

// Handler exposes the endpoint mux
func (o *ObservabilityServer) Handler() http.Handler {
	return o.server.Handler
}

// SetReady marks the service ready or not
func (o *ObservabilityServer) SetReady(ready bool) {
	o.ready.Store(ready)
}

// Start serves until Shutdown
func (o *ObservabilityServer) Start() error {
	lis, err := net.Listen("tcp", o.server.Addr)
	if err != nil {
		return fmt.Errorf("observability listen: %w", err)
	}
	return o.Serve(lis)
}

// Serve serves on an existing listener until Shutdown
func (o *ObservabilityServer) Serve(lis net.Listener) error {
	addr := lis.Addr().String()
	o.log.Info("Observability endpoints available").
		Str("addr", addr).
		Str("metrics", fmt.Sprintf("http://%s/metrics", addr)).
		Str("health", fmt.Sprintf("http://%s/health", addr)).
		Str("pprof", fmt.Sprintf("http://%s/debug/pprof/", addr)).
		Send()

	if err := o.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("observability server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the observability server
func (o *ObservabilityServer) Shutdown(ctx context.Context) error {
	o.log.Info("Shutting down observability server").Send()
	o.SetReady(false)
	return o.server.Shutdown(ctx)
}
