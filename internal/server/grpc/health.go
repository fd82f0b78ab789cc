package grpcserver

import (
	"context"
	"time"

	logpkg "github.com/rzbill/buildlog/pkg/log"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthInterval = 5 * time.Second

// refreshHealth probes the runtime and publishes the result for the server
// as a whole and for the Builds service.
func (s *Server) refreshHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.rt.CheckHealth(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("health check failed", logpkg.Err(err))
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(BuildsServiceName, status)
}

func (s *Server) watchHealth(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.refreshHealth(ctx)
		}
	}
}
