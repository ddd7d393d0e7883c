package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/sectionquery/internal/metrics"
	"github.com/nainya/sectionquery/internal/server"
	"github.com/nainya/sectionquery/internal/watch"
	"github.com/nainya/sectionquery/pkg/query"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC query service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	log.LogServerStart(cfg.Server.GrpcAddr, cfg.Store.Root)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	engine, fs := newEngine(query.WithMetrics(m))

	lis, err := net.Listen("tcp", cfg.Server.GrpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GrpcAddr, err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.GrpcMetricsInterceptor(m, log)),
		grpc.MaxRecvMsgSize(16*1024*1024),
		grpc.MaxSendMsgSize(64*1024*1024),
	)
	server.RegisterQueryServiceServer(grpcServer, server.NewServer(engine))
	if cfg.Server.Reflection {
		reflection.Register(grpcServer)
	}

	var obs *server.ObservabilityServer
	if cfg.Server.ObservabilityAddr != "" {
		obs = server.NewObservabilityServer(cfg.Server.ObservabilityAddr, reg, log)
	}

	if cfg.Watch.Enabled {
		if cfg.Store.Root == "" {
			log.Warn("Watch enabled without a store root; skipping").Send()
		} else {
			w, err := watch.New(cfg.Store.Root, engine, fs.ID,
				watch.WithDebounce(cfg.Watch.Debounce),
				watch.WithLogger(log),
			)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server failed: %w", err)
		}
		return nil
	})
	if obs != nil {
		g.Go(obs.Start)
		obs.SetReady(true)
	}
	log.LogServerReady(lis.Addr().String())

	g.Go(func() error {
		<-gctx.Done()
		log.LogServerShutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if obs != nil {
			if err := obs.Shutdown(shutdownCtx); err != nil {
				log.Error("Observability shutdown failed").Err(err).Send()
			}
		}

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		return nil
	})

	return g.Wait()
}
