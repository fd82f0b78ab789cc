package grpcserver

import (
	"context"
	"errors"
	"io"

	"github.com/rzbill/buildlog/internal/eventlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ChunkSize is the payload size of each message sent by Ingest.
const ChunkSize = 64 << 10

// Ingest streams r to the Builds service of cc as a new build of project.
func Ingest(ctx context.Context, cc grpc.ClientConnInterface, project, source string, r io.Reader) (eventlog.BuildInfo, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, MetadataProject, project, MetadataSource, source)
	stream, err := cc.NewStream(ctx, &buildsServiceDesc.Streams[0], ingestMethod)
	if err != nil {
		return eventlog.BuildInfo{}, err
	}
	buf := make([]byte, ChunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := stream.SendMsg(wrapperspb.Bytes(append([]byte(nil), buf[:n]...))); err != nil {
				// The server closed the stream; its status comes from RecvMsg.
				if errors.Is(err, io.EOF) {
					break
				}
				return eventlog.BuildInfo{}, err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return eventlog.BuildInfo{}, rerr
		}
	}
	if err := stream.CloseSend(); err != nil {
		return eventlog.BuildInfo{}, err
	}
	out := new(structpb.Struct)
	if err := stream.RecvMsg(out); err != nil {
		return eventlog.BuildInfo{ID: first(stream.Trailer(), MetadataBuild)}, err
	}
	return InfoFromStruct(out), nil
}

// GetBuild fetches the info of one build.
func GetBuild(ctx context.Context, cc grpc.ClientConnInterface, project, build string) (eventlog.BuildInfo, error) {
	req, err := structpb.NewStruct(map[string]any{"project": project, "build": build})
	if err != nil {
		return eventlog.BuildInfo{}, err
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, getBuildMethod, req, out); err != nil {
		return eventlog.BuildInfo{}, err
	}
	return InfoFromStruct(out), nil
}
