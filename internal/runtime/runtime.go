package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/buildlog/internal/binlog"
	cfgpkg "github.com/rzbill/buildlog/internal/config"
	"github.com/rzbill/buildlog/internal/eventlog"
	"github.com/rzbill/buildlog/internal/metrics"
	"github.com/rzbill/buildlog/internal/namespace"
	pebblestore "github.com/rzbill/buildlog/internal/storage/pebble"
	"github.com/rzbill/buildlog/pkg/id"
	logpkg "github.com/rzbill/buildlog/pkg/log"
)

var (
	// ErrProjectNotAllowed is returned for projects outside the allow list
	// or, with auto-create disabled, projects that do not exist yet.
	ErrProjectNotAllowed = errors.New("runtime: project not allowed")
	// ErrProjectLimit is returned when creating a project would exceed MaxProjects.
	ErrProjectLimit = errors.New("runtime: project limit reached")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("runtime: closed")
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// DataDir overrides Config.DataDir when set.
	DataDir string
	Logger  logpkg.Logger
	// Registry decodes and encodes stored events. Defaults to binlog.NewRegistry().
	Registry *binlog.Registry
}

// Runtime wires storage, config, the codec registry and the logger of a
// single buildlog node.
type Runtime struct {
	db       *pebblestore.DB
	config   cfgpkg.Config
	logger   logpkg.Logger
	registry *binlog.Registry
	ids      *id.Generator

	mu       sync.Mutex
	logs     map[string]*eventlog.Log
	projects sync.Mutex
	closed   bool
}

// Open initializes storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	dir := opts.DataDir
	if dir == "" {
		dir = cfg.DataDir
	}
	policy, err := pebblestore.ParseSyncPolicy(cfg.Sync)
	if err != nil {
		return nil, err
	}
	db, err := pebblestore.Open(pebblestore.Options{
		Dir:          dir,
		Sync:         policy,
		SyncInterval: time.Duration(cfg.SyncIntervalMs) * time.Millisecond,
		Observer:     metrics.Storage{},
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: open storage %s: %w", dir, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	reg := opts.Registry
	if reg == nil {
		reg = binlog.NewRegistry()
	}
	return &Runtime{
		db:       db,
		config:   cfg,
		logger:   logger.With(logpkg.Component("runtime")),
		registry: reg,
		ids:      id.NewGenerator(),
		logs:     map[string]*eventlog.Log{},
	}, nil
}

// Close closes underlying resources. It is safe to call more than once.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.logs = nil
	return r.db.Close()
}

// CheckHealth verifies that storage is open and iterable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// EnsureProject returns the metadata of name, creating the project with the
// configured defaults when allowed.
func (r *Runtime) EnsureProject(name string) (namespace.Meta, error) {
	if err := namespace.ValidateName(name); err != nil {
		return namespace.Meta{}, err
	}
	if !r.config.ProjectAllowed(name) {
		return namespace.Meta{}, fmt.Errorf("%w: %s", ErrProjectNotAllowed, name)
	}
	r.projects.Lock()
	defer r.projects.Unlock()

	m, err := namespace.Get(r.db, name)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, namespace.ErrNotFound) {
		return namespace.Meta{}, err
	}
	if !r.config.AllowAutoCreateProjects {
		return namespace.Meta{}, fmt.Errorf("%w: %s does not exist", ErrProjectNotAllowed, name)
	}
	if limit := r.config.MaxProjects; limit > 0 {
		all, err := namespace.List(r.db)
		if err != nil {
			return namespace.Meta{}, err
		}
		if len(all) >= limit {
			return namespace.Meta{}, fmt.Errorf("%w: %d", ErrProjectLimit, limit)
		}
	}
	d := r.config.ProjectDefaults
	m, err = namespace.Ensure(r.db, name, namespace.Meta{MaxRecordBytes: d.MaxRecordBytes, RetentionMs: d.RetentionMs})
	if err == nil {
		r.logger.Info("project created", logpkg.Str("project", name))
	}
	return m, err
}

// Project loads existing project metadata.
func (r *Runtime) Project(name string) (namespace.Meta, error) {
	return namespace.Get(r.db, name)
}

// Projects lists every project.
func (r *Runtime) Projects() ([]namespace.Meta, error) {
	return namespace.List(r.db)
}

// NewBuildID returns a fresh, time-ordered build identifier.
func (r *Runtime) NewBuildID() id.ID { return r.ids.Next() }

// OpenLog returns the shared Log of a build. Logs are cached so that
// readers waiting on a build see appends made through the same Runtime.
func (r *Runtime) OpenLog(project string, build id.ID) (*eventlog.Log, error) {
	key := project + "/" + build.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if l, ok := r.logs[key]; ok {
		return l, nil
	}
	l, err := eventlog.OpenLog(r.db, project, build)
	if err != nil {
		return nil, err
	}
	l.SetTrimHook(eventlog.TrimFunc(r.trimmed))
	r.logs[key] = l
	return l, nil
}

func (r *Runtime) trimmed(project, build string, minSeq, maxSeq uint64, entries int) {
	metrics.ObserveTrim(project, entries)
	r.logger.Debug("trimmed entries",
		logpkg.Str("project", project),
		logpkg.Str("build", build),
		logpkg.Uint64("min_seq", minSeq),
		logpkg.Uint64("max_seq", maxSeq),
		logpkg.Int("entries", entries))
}

// Registry returns the codec registry.
func (r *Runtime) Registry() *binlog.Registry { return r.registry }

// Logger returns the runtime logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// DB exposes the underlying store.
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
