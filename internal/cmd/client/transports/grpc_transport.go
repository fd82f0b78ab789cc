package transports

import (
	"context"
	"io"

	"github.com/rzbill/buildlog/internal/eventlog"
	grpcserver "github.com/rzbill/buildlog/internal/server/grpc"
	"google.golang.org/grpc"
)

// GrpcTransport implements BuildsTransport over gRPC.
type GrpcTransport struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

// NewGrpcTransport constructs a GrpcTransport using the provided dialer.
func NewGrpcTransport(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GrpcTransport {
	return &GrpcTransport{dial: dial}
}

func (t *GrpcTransport) withConn(ctx context.Context, fn func(*grpc.ClientConn) error) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(conn)
}

// Ingest streams r in chunks to the Builds service.
func (t *GrpcTransport) Ingest(ctx context.Context, project, source string, r io.Reader) (info eventlog.BuildInfo, err error) {
	err = t.withConn(ctx, func(conn *grpc.ClientConn) error {
		info, err = grpcserver.Ingest(ctx, conn, project, source, r)
		return err
	})
	return info, err
}

// Build fetches one build's info.
func (t *GrpcTransport) Build(ctx context.Context, project, build string) (info eventlog.BuildInfo, err error) {
	err = t.withConn(ctx, func(conn *grpc.ClientConn) error {
		info, err = grpcserver.GetBuild(ctx, conn, project, build)
		return err
	})
	return info, err
}
