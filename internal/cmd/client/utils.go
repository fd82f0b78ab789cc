package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rzbill/buildlog/internal/event"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// HTTPURLFromEnv returns the HTTP API URL from BUILDLOG_HTTP or a default.
func HTTPURLFromEnv() string {
	if v := os.Getenv("BUILDLOG_HTTP"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:8080"
}

// grpcAddrFromEnv returns the gRPC server address from BUILDLOG_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("BUILDLOG_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:9090"
}

// dialGRPCContext dials the gRPC endpoint with insecure transport for local/dev.
func dialGRPCContext(_ context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient(grpcAddrFromEnv(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printView writes one event as a single text line.
func printView(w io.Writer, seq uint64, v event.View) {
	kind := v.Kind
	if v.Extended && v.Type != "" {
		kind += "(" + v.Type + ")"
	}
	var ts string
	if !v.Timestamp.IsZero() {
		ts = v.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	line := v.Message
	if v.Raw != "" {
		line = "raw=" + v.Raw
	}
	if v.File != "" {
		line = fmt.Sprintf("%s(%d,%d): %s", v.File, v.Line, v.Column, line)
	}
	if v.Code != "" {
		line = v.Code + ": " + line
	}
	fmt.Fprintf(w, "%6d %-30s %-7s %-12s %s\n", seq, kind, v.Importance, ts, line)
}
