// Package transports provides the transports the CLI uses to reach a
// buildlog server.
package transports

import (
	"context"
	"io"

	"github.com/rzbill/buildlog/internal/eventlog"
)

// BuildsTransport ingests streams and looks up builds on a server.
type BuildsTransport interface {
	Ingest(ctx context.Context, project, source string, r io.Reader) (eventlog.BuildInfo, error)
	Build(ctx context.Context, project, build string) (eventlog.BuildInfo, error)
}

// EventsRequest selects a page of stored events.
type EventsRequest struct {
	Project string
	Build   string
	Filter  string
	After   uint64
	Limit   int
	Group   string
	WaitMs  int64
}
