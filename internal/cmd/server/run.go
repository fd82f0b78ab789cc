package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/buildlog/internal/config"
	"github.com/rzbill/buildlog/internal/runtime"
	grpcserver "github.com/rzbill/buildlog/internal/server/grpc"
	httpserver "github.com/rzbill/buildlog/internal/server/http"
	buildsvc "github.com/rzbill/buildlog/internal/services/builds"
	"github.com/rzbill/buildlog/internal/tracing"
	logpkg "github.com/rzbill/buildlog/pkg/log"
)

// Options configure Run.
type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.LogLevel and LogFormat.
	Logger logpkg.Logger
	// Ready, when set, is called once both servers are listening.
	Ready func(httpAddr, grpcAddr string)
}

// LoadConfig reads path (optional) over the defaults and applies BUILDLOG_
// environment overrides.
func LoadConfig(path string) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	if err := cfgpkg.FromEnv(&cfg); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}

// NewLogger builds the process logger for cfg.
func NewLogger(cfg cfgpkg.Config) (logpkg.Logger, error) {
	return logpkg.ApplyConfig(&logpkg.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled or
// a server fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	logger := opts.Logger
	if logger == nil {
		l, err := NewLogger(cfg)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		logger = l
	}
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(logger)

	shutdownTracing, err := tracing.Setup(sctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(cctx); err != nil {
			logger.Warn("tracing shutdown", logpkg.Err(err))
		}
	}()

	rt, err := runtime.Open(runtime.Options{
		Config:  cfg,
		DataDir: filepath.Join(cfg.DataDir, "store"),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting buildlog server",
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("grpc", cfg.GRPCAddr),
		logpkg.Str("sync", cfg.Sync),
		logpkg.Str("level", cfg.LogLevel),
		logpkg.Str("format", cfg.LogFormat),
		logpkg.Bool("tracing", cfg.Tracing.Endpoint != ""))

	svc := buildsvc.New(rt, logger)
	gsrv := grpcserver.New(rt, svc, logger)
	hsrv := httpserver.New(rt, svc, logger)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		if err := gsrv.ListenAndServe(gctx, cfg.GRPCAddr); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := hsrv.ListenAndServe(gctx, cfg.HTTPAddr); err != nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rt.RunRetention(gctx)
		return nil
	})
	if opts.Ready != nil {
		g.Go(func() error {
			waitListening(gctx, hsrv, gsrv)
			if gctx.Err() == nil {
				opts.Ready(hsrv.Addr().String(), gsrv.Addr())
			}
			return nil
		})
	}
	err = g.Wait()
	logger.Info("buildlog server stopped")
	return err
}

func waitListening(ctx context.Context, h *httpserver.Server, g *grpcserver.Server) {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for h.Addr() == nil || g.Addr() == "" {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
