// Package grpc serves the standard gRPC health service for dlogr. The status
// follows the reachability of the database and the token cache.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "dlogr"

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type HealthServer struct {
	address  string
	checks   map[string]Check
	interval time.Duration
	timeout  time.Duration
	health   *health.Server
	logger   logging.Logger
}

func NewHealthServer(a string, l logging.Logger, checks map[string]Check) *HealthServer {
	return &HealthServer{
		address:  a,
		checks:   checks,
		interval: 10 * time.Second,
		timeout:  2 * time.Second,
		health:   health.NewServer(),
		logger:   l.With("module", "grpc_server"),
	}
}

// probe runs every check and publishes the combined status.
func (s *HealthServer) probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := check(cctx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "health check failed", "check", name, "error", err.Error())
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

func (s *HealthServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

func (s *HealthServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *HealthServer) serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.probe(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		// flips every service to NOT_SERVING so watchers see the shutdown
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
