package grpcserver

import (
	"context"
	"errors"
	"io"

	"github.com/rzbill/buildlog/internal/binlog"
	"github.com/rzbill/buildlog/internal/eventlog"
	"github.com/rzbill/buildlog/internal/filter"
	"github.com/rzbill/buildlog/internal/namespace"
	"github.com/rzbill/buildlog/internal/runtime"
	buildsvc "github.com/rzbill/buildlog/internal/services/builds"
	logpkg "github.com/rzbill/buildlog/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// BuildsServiceName is the fully qualified name of the Builds service.
const BuildsServiceName = "buildlog.v1.Builds"

// Metadata keys carried by Ingest calls.
const (
	MetadataProject = "buildlog-project"
	MetadataSource  = "buildlog-source"
	MetadataBuild   = "buildlog-build"
)

const (
	ingestMethod   = "/" + BuildsServiceName + "/Ingest"
	getBuildMethod = "/" + BuildsServiceName + "/GetBuild"
)

type buildsService interface {
	ingest(stream grpc.ServerStream) error
	getBuild(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// buildsServiceDesc describes the Builds service:
//
//	rpc Ingest(stream google.protobuf.BytesValue) returns (google.protobuf.Struct)
//	rpc GetBuild(google.protobuf.Struct) returns (google.protobuf.Struct)
//
// Ingest reads the project and source from request metadata.
var buildsServiceDesc = grpc.ServiceDesc{
	ServiceName: BuildsServiceName,
	HandlerType: (*buildsService)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "GetBuild",
		Handler:    getBuildHandler,
	}},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Ingest",
		Handler:       ingestHandler,
		ClientStreams: true,
	}},
	Metadata: "buildlog/v1/builds.proto",
}

func ingestHandler(srv any, stream grpc.ServerStream) error {
	return srv.(buildsService).ingest(stream)
}

func getBuildHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(buildsService).getBuild(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getBuildMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(buildsService).getBuild(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type buildsServer struct {
	svc    *buildsvc.Service
	logger logpkg.Logger
}

func (b *buildsServer) ingest(stream grpc.ServerStream) error {
	ctx := stream.Context()
	md, _ := metadata.FromIncomingContext(ctx)
	project := first(md, MetadataProject)
	if project == "" {
		return status.Error(codes.InvalidArgument, "missing "+MetadataProject+" metadata")
	}
	info, err := b.svc.Ingest(ctx, project, first(md, MetadataSource), &chunkReader{stream: stream})
	if info.ID != "" {
		stream.SetTrailer(metadata.Pairs(MetadataBuild, info.ID))
	}
	if err != nil {
		b.logger.Warn("grpc ingest failed", logpkg.Str("project", project), logpkg.Err(err))
		return toStatus(err)
	}
	out, err := infoToStruct(info)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.SendMsg(out)
}

func (b *buildsServer) getBuild(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	project := fields["project"].GetStringValue()
	build := fields["build"].GetStringValue()
	if project == "" || build == "" {
		return nil, status.Error(codes.InvalidArgument, "project and build are required")
	}
	info, err := b.svc.Build(project, build)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := infoToStruct(info)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// chunkReader adapts a stream of BytesValue messages to io.Reader.
type chunkReader struct {
	stream grpc.ServerStream
	buf    []byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		var m wrapperspb.BytesValue
		if err := c.stream.RecvMsg(&m); err != nil {
			return 0, err
		}
		c.buf = m.GetValue()
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// toStatus maps service errors to gRPC status codes.
func toStatus(err error) error {
	var derr *binlog.DecodeError
	switch {
	case errors.Is(err, eventlog.ErrNotFound), errors.Is(err, namespace.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, runtime.ErrProjectNotAllowed):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, runtime.ErrProjectLimit), errors.Is(err, buildsvc.ErrStreamTooLarge):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, namespace.ErrInvalidName), errors.Is(err, filter.ErrInvalidExpression):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, binlog.ErrBadMagic),
		errors.Is(err, binlog.ErrUnsupportedVersion),
		errors.Is(err, binlog.ErrTruncatedStream),
		errors.Is(err, binlog.ErrRecordTooLarge),
		errors.As(err, &derr):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, io.ErrUnexpectedEOF):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func infoToStruct(info eventlog.BuildInfo) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":            info.ID,
		"project":       info.Project,
		"source":        info.Source,
		"schemaVersion": float64(info.SchemaVersion),
		"createdAtMs":   float64(info.CreatedAtMs),
		"records":       float64(info.Records),
		"unknown":       float64(info.Unknown),
		"malformed":     float64(info.Malformed),
		"error":         info.Error,
	})
}

// InfoFromStruct decodes a build info returned by the Builds service.
func InfoFromStruct(s *structpb.Struct) eventlog.BuildInfo {
	f := s.GetFields()
	return eventlog.BuildInfo{
		ID:            f["id"].GetStringValue(),
		Project:       f["project"].GetStringValue(),
		Source:        f["source"].GetStringValue(),
		SchemaVersion: uint64(f["schemaVersion"].GetNumberValue()),
		CreatedAtMs:   int64(f["createdAtMs"].GetNumberValue()),
		Records:       int(f["records"].GetNumberValue()),
		Unknown:       int(f["unknown"].GetNumberValue()),
		Malformed:     int(f["malformed"].GetNumberValue()),
		Error:         f["error"].GetStringValue(),
	}
}
