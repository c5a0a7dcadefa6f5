package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthService is the service name reported alongside the overall ("") status.
const HealthService = "navgraph"

// NewGRPCServer creates a gRPC server with the standard interceptors, the
// health service and reflection. The returned health server starts SERVING;
// use WatchHealth to keep it in step with the tree store.
func NewGRPCServer(s *NavServer, authToken string) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(s.logger),
			LoggingInterceptor(s.logger),
			AuthInterceptor(authToken),
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, hs
}

// WatchHealth pings the tree store every interval and flips hs between
// SERVING and NOT_SERVING until ctx is cancelled.
func (s *NavServer) WatchHealth(ctx context.Context, hs *health.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.updateHealth(ctx, hs)
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func (s *NavServer) updateHealth(ctx context.Context, hs *health.Server) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.Ping(pingCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("tree store unhealthy", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(HealthService, st)
}
