// Package grpcapi exposes the standard gRPC health service so kiosk fleet
// tooling can probe the engine without speaking HTTP.
package grpcapi

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health entry kiosks query for check-in readiness.
const ServiceName = "dmgfit.checkin"

// Probe reports whether the backing stores are reachable.
type Probe func(ctx context.Context) error

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{grpcServer: gs, health: hs, logger: logger.With("component", "grpcapi")}
}

// Serve blocks accepting connections on lis until Shutdown is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Monitor runs probe every interval and flips the check-in service between
// SERVING and NOT_SERVING. It returns when ctx is cancelled.
func (s *Server) Monitor(ctx context.Context, probe Probe, interval time.Duration) {
	if probe == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	serving := true
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		err := probe(pctx)
		switch {
		case err != nil && serving:
			s.logger.Warn("check-in backend unhealthy", "error", err)
			s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			serving = false
		case err == nil && !serving:
			s.logger.Info("check-in backend recovered")
			s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
			serving = true
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// Shutdown marks every service NOT_SERVING and drains in-flight RPCs until
// ctx expires, after which the server is stopped hard.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}
