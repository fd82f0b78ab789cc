// Package replay reads event streams end to end: it decodes records in
// order, skips and reports malformed ones, applies a filter and hands the
// survivors to a callback. Independent files are decoded in parallel.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/buildlog/internal/binlog"
	"github.com/rzbill/buildlog/internal/event"
	"github.com/rzbill/buildlog/internal/filter"
	"github.com/rzbill/buildlog/internal/metrics"
	"github.com/rzbill/buildlog/pkg/log"
)

// Entry is one decoded record. Seq is its 1-based position in the stream,
// counting malformed records. Version is the schema version of the stream.
type Entry struct {
	Seq     uint64
	Offset  int64
	Version uint64
	Event   event.Event
}

// Stats summarizes a replayed stream.
type Stats struct {
	Version   uint64 `json:"version"`
	Newer     bool   `json:"newer,omitempty"`
	Records   int    `json:"records"`
	Unknown   int    `json:"unknown"`
	Malformed int    `json:"malformed"`
	Matched   int    `json:"matched"`
	Bytes     int64  `json:"bytes"`
}

// Options configures a replay. Zero values use defaults.
type Options struct {
	Registry       *binlog.Registry
	Filter         filter.Filter
	Logger         log.Logger
	MaxRecordBytes int
	// Source names the stream in log lines.
	Source string
}

func (o Options) logger() log.Logger {
	if o.Logger == nil {
		return log.NewLogger(log.WithOutput(log.NullOutput{}))
	}
	return o.Logger
}

// Handler receives matching entries. Returning an error stops the replay.
type Handler func(Entry) error

// Stream replays r, calling fn for every record that decodes and matches
// the filter. Malformed records are logged with their offset and skipped.
// It stops at the end of the stream, on a framing error, when fn fails or
// when ctx is done.
func Stream(ctx context.Context, r io.Reader, opts Options, fn Handler) (Stats, error) {
	logger := opts.logger().With(log.Component("replay"), log.Str("source", opts.Source))
	br, err := binlog.NewReader(r,
		binlog.WithRegistry(opts.Registry),
		binlog.WithMaxRecordBytes(opts.MaxRecordBytes))
	if err != nil {
		return Stats{}, fmt.Errorf("replay %s: %w", opts.Source, err)
	}
	st := Stats{Version: br.Version(), Newer: br.Newer()}
	if st.Newer {
		logger.Info("stream written by newer schema", log.Uint64("version", st.Version))
	}

	var seq uint64
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		off := br.Offset()
		ev, err := br.Next()
		if errors.Is(err, io.EOF) {
			st.Bytes = br.Offset()
			return st, nil
		}
		var derr *binlog.DecodeError
		if errors.As(err, &derr) {
			seq++
			st.Malformed++
			metrics.ObserveRecord(derr.Kind.String(), metrics.OutcomeMalformed)
			logger.Warn("skipping malformed record",
				log.Int64("offset", derr.Offset),
				log.Str("kind", derr.Kind.String()),
				log.Int("length", derr.Length),
				log.Err(derr.Err))
			continue
		}
		if err != nil {
			st.Bytes = br.Offset()
			return st, fmt.Errorf("replay %s at offset %d: %w", opts.Source, br.Offset(), err)
		}

		seq++
		st.Records++
		outcome := metrics.OutcomeDecoded
		if _, ok := ev.(*event.Unknown); ok {
			st.Unknown++
			outcome = metrics.OutcomeUnknown
		}
		metrics.ObserveRecord(ev.Kind().String(), outcome)
		if !opts.Filter.Match(ev, seq) {
			continue
		}
		st.Matched++
		if err := fn(Entry{Seq: seq, Offset: off, Version: st.Version, Event: ev}); err != nil {
			return st, err
		}
	}
}

// FileResult is the outcome of replaying one file.
type FileResult struct {
	Path    string
	Entries []Entry
	Stats   Stats
	Err     error
}

// Files replays every path concurrently and returns results in input
// order. A file that fails to open or hits a framing error reports it in
// its FileResult; the other files are unaffected. The returned error is
// non-nil only when ctx ends.
func Files(ctx context.Context, paths []string, opts Options) ([]FileResult, error) {
	results := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			res := FileResult{Path: path}
			res.Stats, res.Err = replayFile(gctx, path, opts, &res.Entries)
			results[i] = res
			if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
				return res.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func replayFile(ctx context.Context, path string, opts Options, out *[]Entry) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()
	if opts.Source == "" {
		opts.Source = path
	}
	return Stream(ctx, f, opts, func(e Entry) error {
		*out = append(*out, e)
		return nil
	})
}
