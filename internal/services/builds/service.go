package buildsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rzbill/buildlog/internal/binlog"
	"github.com/rzbill/buildlog/internal/event"
	"github.com/rzbill/buildlog/internal/eventlog"
	"github.com/rzbill/buildlog/internal/filter"
	"github.com/rzbill/buildlog/internal/metrics"
	"github.com/rzbill/buildlog/internal/replay"
	"github.com/rzbill/buildlog/internal/runtime"
	"github.com/rzbill/buildlog/internal/tracing"
	"github.com/rzbill/buildlog/pkg/id"
	logpkg "github.com/rzbill/buildlog/pkg/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrStreamTooLarge is returned when an ingested stream exceeds Codec.MaxStreamBytes.
var ErrStreamTooLarge = errors.New("buildsvc: stream too large")

var tracer = tracing.Tracer("builds")

const (
	appendBatch  = 256
	readChunk    = 512
	defaultLimit = 1000
)

// Service implements ingest, query and export over the Runtime.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// New returns a Service. A nil logger uses the runtime's.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = rt.Logger()
	}
	return &Service{rt: rt, logger: logger.With(logpkg.Component("builds"))}
}

// Ingest decodes stream r and stores its records as a new build of project.
// Malformed records are skipped and counted. A framing error stops the
// ingest; records read before it stay stored and the error is recorded in
// the build info.
func (s *Service) Ingest(ctx context.Context, project, source string, r io.Reader) (eventlog.BuildInfo, error) {
	ctx, span := tracer.Start(ctx, "builds.Ingest", trace.WithAttributes(
		attribute.String("buildlog.project", project),
		attribute.String("buildlog.source", source)))
	defer span.End()
	info, err := s.ingest(ctx, project, source, r)
	span.SetAttributes(
		attribute.String("buildlog.build", info.ID),
		attribute.Int64("buildlog.schema_version", int64(info.SchemaVersion)),
		attribute.Int("buildlog.records", info.Records),
		attribute.Int("buildlog.malformed", info.Malformed))
	endSpan(span, err)
	return info, err
}

func (s *Service) ingest(ctx context.Context, project, source string, r io.Reader) (eventlog.BuildInfo, error) {
	meta, err := s.rt.EnsureProject(project)
	if err != nil {
		return eventlog.BuildInfo{}, err
	}
	var lr *limitedReader
	if limit := s.rt.Config().Codec.MaxStreamBytes; limit > 0 {
		lr = &limitedReader{r: r, left: limit}
		r = lr
	}

	start := time.Now()
	build := s.rt.NewBuildID()
	l, err := s.rt.OpenLog(project, build)
	if err != nil {
		return eventlog.BuildInfo{}, err
	}
	logger := s.logger.WithContext(ctx).With(logpkg.Str("project", project), logpkg.Str("build", build.String()))

	reg := s.rt.Registry()
	pending := make([]eventlog.AppendRecord, 0, appendBatch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		_, err := l.Append(ctx, pending)
		pending = pending[:0]
		return err
	}
	st, ingestErr := replay.Stream(ctx, r, replay.Options{
		Registry:       reg,
		Logger:         logger,
		MaxRecordBytes: meta.MaxRecordBytes,
		Source:         source,
	}, func(e replay.Entry) error {
		var (
			frame []byte
			err   error
		)
		if u, ok := e.Event.(*event.Unknown); ok {
			frame = binlog.AppendOpaqueFrame(nil, u)
		} else {
			frame, err = binlog.AppendFrame(nil, reg, e.Event, min(e.Version, binlog.CurrentVersion))
			if err != nil {
				return fmt.Errorf("re-encode record %d: %w", e.Seq, err)
			}
		}
		pending = append(pending, eventlog.AppendRecord{
			Header:  eventlog.NewHeader(start.UnixMilli(), uint8(e.Event.Kind())),
			Payload: frame,
		})
		if len(pending) == appendBatch {
			return flush()
		}
		return nil
	})
	if err := flush(); err != nil && ingestErr == nil {
		ingestErr = err
	}
	if lr != nil && lr.exceeded {
		ingestErr = fmt.Errorf("%w: limit %d bytes", ErrStreamTooLarge, s.rt.Config().Codec.MaxStreamBytes)
	}
	if st.Version == 0 && ingestErr != nil {
		return eventlog.BuildInfo{}, ingestErr
	}

	info := eventlog.BuildInfo{
		Source:        source,
		SchemaVersion: st.Version,
		CreatedAtMs:   start.UnixMilli(),
		Records:       st.Records,
		Unknown:       st.Unknown,
		Malformed:     st.Malformed,
	}
	if ingestErr != nil {
		info.Error = ingestErr.Error()
	}
	if err := l.PutInfo(info); err != nil {
		return eventlog.BuildInfo{}, err
	}
	info, err = l.Info()
	if err != nil {
		return eventlog.BuildInfo{}, err
	}
	metrics.ObserveIngest(project, st.Bytes, time.Since(start))
	logger.Info("build ingested",
		logpkg.Uint64("version", st.Version),
		logpkg.Int("records", st.Records),
		logpkg.Int("unknown", st.Unknown),
		logpkg.Int("malformed", st.Malformed),
		logpkg.Duration("elapsed", time.Since(start)))
	return info, ingestErr
}

// Builds lists the builds of a project.
func (s *Service) Builds(project string) ([]eventlog.BuildInfo, error) {
	if _, err := s.rt.Project(project); err != nil {
		return nil, err
	}
	return eventlog.ListBuilds(s.rt.DB(), project)
}

// Build returns one build's summary.
func (s *Service) Build(project, build string) (eventlog.BuildInfo, error) {
	bid, err := id.Parse(build)
	if err != nil {
		return eventlog.BuildInfo{}, fmt.Errorf("%w: %v", eventlog.ErrNotFound, err)
	}
	return eventlog.GetInfo(s.rt.DB(), project, bid)
}

func (s *Service) openBuild(project, build string) (*eventlog.Log, eventlog.BuildInfo, error) {
	bid, err := id.Parse(build)
	if err != nil {
		return nil, eventlog.BuildInfo{}, fmt.Errorf("%w: %v", eventlog.ErrNotFound, err)
	}
	info, err := eventlog.GetInfo(s.rt.DB(), project, bid)
	if err != nil {
		return nil, eventlog.BuildInfo{}, err
	}
	l, err := s.rt.OpenLog(project, bid)
	if err != nil {
		return nil, eventlog.BuildInfo{}, err
	}
	return l, info, nil
}

// Query selects events of a build.
type Query struct {
	Filter string
	// After resumes after this sequence. Zero starts at the beginning, or
	// at the group's cursor when Group is set.
	After uint64
	Limit int
	// Group commits the read position under this name.
	Group string
	// Wait long-polls for new entries when nothing matched.
	Wait time.Duration
}

// Event is one stored event with its position.
type Event struct {
	Seq uint64 `json:"seq"`
	event.View
}

// Page is a batch of matching events.
type Page struct {
	Events []Event `json:"events"`
	// Next is the sequence to pass as After to continue.
	Next    uint64 `json:"next"`
	Skipped int    `json:"skipped,omitempty"`
}

// Events returns up to q.Limit events matching q.Filter.
func (s *Service) Events(ctx context.Context, project, build string, q Query) (Page, error) {
	f, err := filter.Compile(q.Filter)
	if err != nil {
		return Page{}, err
	}
	l, info, err := s.openBuild(project, build)
	if err != nil {
		return Page{}, err
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	after := q.After
	if after == 0 && q.Group != "" {
		if tok, ok := l.GetCursor(q.Group); ok {
			after = tok.Seq()
		}
	}

	page := Page{Events: []Event{}, Next: after}
	if err := s.scan(l, info, f, q.Limit, &page); err != nil {
		return Page{}, err
	}
	if len(page.Events) == 0 && q.Wait > 0 && l.WaitForAppend(ctx, q.Wait) {
		if err := s.scan(l, info, f, q.Limit, &page); err != nil {
			return Page{}, err
		}
	}
	if q.Group != "" && page.Next > after {
		if err := l.CommitCursor(q.Group, eventlog.TokenFromSeq(page.Next)); err != nil {
			return Page{}, err
		}
	}
	return page, nil
}

// scan reads entries after page.Next until limit matches or the log ends.
func (s *Service) scan(l *eventlog.Log, info eventlog.BuildInfo, f filter.Filter, limit int, page *Page) error {
	reg := s.rt.Registry()
	for len(page.Events) < limit {
		items, next, err := l.Read(eventlog.ReadOptions{Start: eventlog.TokenFromSeq(page.Next + 1), Limit: readChunk})
		if err != nil {
			return err
		}
		for _, it := range items {
			page.Next = it.Seq
			ev, err := binlog.DecodeFrame(it.Payload, reg, info.SchemaVersion)
			if err != nil {
				page.Skipped++
				s.logger.Warn("skipping undecodable entry", logpkg.Str("build", info.ID), logpkg.Uint64("seq", it.Seq), logpkg.Err(err))
				continue
			}
			if !f.Match(ev, it.Seq) {
				continue
			}
			page.Events = append(page.Events, Event{Seq: it.Seq, View: event.Describe(ev)})
			if len(page.Events) == limit {
				return nil
			}
		}
		if next.IsZero() {
			return nil
		}
	}
	return nil
}

// Export writes the build as a stream at version, zero meaning the
// configured export version. It returns the number of records written.
func (s *Service) Export(ctx context.Context, project, build string, w io.Writer, version uint64) (int, error) {
	ctx, span := tracer.Start(ctx, "builds.Export", trace.WithAttributes(
		attribute.String("buildlog.project", project),
		attribute.String("buildlog.build", build),
		attribute.Int64("buildlog.schema_version", int64(version))))
	defer span.End()
	n, err := s.export(ctx, project, build, w, version)
	span.SetAttributes(attribute.Int("buildlog.records", n))
	endSpan(span, err)
	return n, err
}

func (s *Service) export(ctx context.Context, project, build string, w io.Writer, version uint64) (int, error) {
	l, info, err := s.openBuild(project, build)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		version = s.rt.Config().Codec.ExportVersion
	}
	if version == 0 {
		version = binlog.CurrentVersion
	}
	logger := s.logger.WithContext(ctx).With(logpkg.Str("project", project), logpkg.Str("build", info.ID))
	reg := s.rt.Registry()
	bw, err := binlog.NewWriter(w, binlog.WithRegistry(reg), binlog.WithVersion(version))
	if err != nil {
		return 0, err
	}
	written := 0
	var start eventlog.Token
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		items, next, err := l.Read(eventlog.ReadOptions{Start: start, Limit: readChunk})
		if err != nil {
			return written, err
		}
		for _, it := range items {
			ev, err := binlog.DecodeFrame(it.Payload, reg, info.SchemaVersion)
			if err != nil {
				logger.Warn("export skipping entry", logpkg.Uint64("seq", it.Seq), logpkg.Err(err))
				continue
			}
			if err := bw.Write(ev); err != nil {
				if errors.Is(err, binlog.ErrOpaqueKnownKind) {
					logger.Warn("export dropping record from newer schema", logpkg.Uint64("seq", it.Seq), logpkg.Err(err))
					continue
				}
				return written, err
			}
			written++
		}
		if next.IsZero() {
			return written, nil
		}
		start = next
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// limitedReader fails with ErrStreamTooLarge once more than its budget is read.
type limitedReader struct {
	r        io.Reader
	left     int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.left <= 0 {
		var probe [1]byte
		if n, err := l.r.Read(probe[:]); n == 0 && err != nil {
			return 0, err
		}
		l.exceeded = true
		return 0, ErrStreamTooLarge
	}
	if int64(len(p)) > l.left {
		p = p[:l.left]
	}
	n, err := l.r.Read(p)
	l.left -= int64(n)
	return n, err
}
