// Package grpcserver runs the gRPC health and reflection endpoints used by
// orchestrators to probe the service.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type Server struct {
	log    *slog.Logger
	grpc   *grpc.Server
	health *health.Server
}

func New(log *slog.Logger, opts ...grpc.ServerOption) *Server {
	gs := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	return &Server{log: log, grpc: gs, health: hs}
}

// Serve blocks until lis fails or the server stops.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Run listens on addr and serves in the background.
func (s *Server) Run(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.Serve(lis); err != nil {
			s.log.Error("grpc server stopped", "err", err)
		}
	}()
	return nil
}

// Stop marks every service as not serving, then drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Watch runs checks every interval and publishes the combined result for
// service (and the overall "" service) until ctx is done.
func (s *Server) Watch(ctx context.Context, service string, interval time.Duration, checks map[string]Check) {
	s.probe(ctx, service, checks)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.probe(ctx, service, checks)
		}
	}
}

func (s *Server) probe(ctx context.Context, service string, checks map[string]Check) {
	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range checks {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check(cctx)
		cancel()
		if err != nil {
			s.log.Warn("health check failed", "check", name, "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(service, status)
	s.health.SetServingStatus("", status)
}
