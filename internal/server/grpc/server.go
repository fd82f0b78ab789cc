package grpcserver

import (
	"context"
	"net"
	"sync"

	"github.com/rzbill/buildlog/internal/runtime"
	buildsvc "github.com/rzbill/buildlog/internal/services/builds"
	logpkg "github.com/rzbill/buildlog/pkg/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	svc    *buildsvc.Service
	logger logpkg.Logger
	grpc   *grpc.Server
	health *health.Server

	mu  sync.Mutex
	lis net.Listener
}

// New constructs a gRPC server and registers services. A nil svc builds one
// over rt.
func New(rt *runtime.Runtime, svc *buildsvc.Service, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = rt.Logger()
	}
	if svc == nil {
		svc = buildsvc.New(rt, logger)
	}
	s := &Server{
		rt:     rt,
		svc:    svc,
		logger: logger.With(logpkg.Component("grpc")),
		grpc:   grpc.NewServer(append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.grpc.RegisterService(&buildsServiceDesc, &buildsServer{svc: svc, logger: s.logger})
	s.refreshHealth(context.Background())
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	s.lis = l
	s.mu.Unlock()
	s.logger.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.watchHealth(wctx, healthInterval)

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound address, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
