package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/rzbill/buildlog/internal/cmd/client"
	serverrun "github.com/rzbill/buildlog/internal/cmd/server"
	cfgpkg "github.com/rzbill/buildlog/internal/config"
	pebblestore "github.com/rzbill/buildlog/internal/storage/pebble"
	logpkg "github.com/rzbill/buildlog/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// Respect BUILDLOG_LOG_LEVEL for CLI output too.
	level := os.Getenv(cfgpkg.EnvPrefix + "LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:           "buildlog",
		Short:         "buildlog build event store and stream tools",
		Long:          "buildlog decodes build event streams and stores them per project for querying and export.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the buildlog server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := serverrun.LoadConfig(path)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, &cfg)
			if _, err := pebblestore.ParseSyncPolicy(cfg.Sync); err != nil {
				return fmt.Errorf("invalid --sync: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	f := serverStartCmd.Flags()
	f.String("config", os.Getenv(cfgpkg.EnvPrefix+"CONFIG"), "Config file (.json, .yaml, .yml or .toml)")
	f.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	f.String("grpc", "", "gRPC listen address")
	f.String("http", "", "HTTP listen address")
	f.String("sync", "", "WAL sync policy: grouped|always|never")
	f.Int("sync-interval-ms", 0, "With --sync=grouped, group-commit window in ms")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := serverrun.LoadConfig(path)
			if err != nil {
				return err
			}
			return cfgpkg.Write(cmd.OutOrStdout(), cfg)
		},
	}
	configCmd.Flags().String("config", os.Getenv(cfgpkg.EnvPrefix+"CONFIG"), "Config file (.json, .yaml, .yml or .toml)")
	rootCmd.AddCommand(configCmd)

	for _, c := range clientcmd.Commands(clientcmd.HTTPURLFromEnv) {
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}

// applyFlagOverrides copies explicitly set flags over cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *cfgpkg.Config) {
	f := cmd.Flags()
	if f.Changed("data-dir") {
		cfg.DataDir, _ = f.GetString("data-dir")
	}
	if f.Changed("grpc") {
		cfg.GRPCAddr, _ = f.GetString("grpc")
	}
	if f.Changed("http") {
		cfg.HTTPAddr, _ = f.GetString("http")
	}
	if f.Changed("sync") {
		cfg.Sync, _ = f.GetString("sync")
	}
	if f.Changed("sync-interval-ms") {
		cfg.SyncIntervalMs, _ = f.GetInt("sync-interval-ms")
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.LogFormat, _ = f.GetString("log-format")
	}
}
