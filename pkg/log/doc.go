// Package log provides buildlog's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a bridge handler that feeds our formatter and
// outputs, so every component produces the same line shape.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("replay"), log.Str("file", "build.blog"))
//	l.Warn("malformed record skipped", log.Int64("offset", 1234))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting and console, file and null outputs. Field redaction and
// per-message sampling are applied by the bridge handler.
//
// # Interop
//
// Pebble and other libraries log through the standard library logger; use
// RedirectStdLog or ToStdLogger to route that output here.
package log
