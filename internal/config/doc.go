// Package config loads buildlog configuration. Default provides the baseline,
// Load overlays a JSON, YAML or TOML file, and FromEnv overlays BUILDLOG_*
// environment variables.
//
//	cfg, err := config.Load(path)
//	if err != nil {
//		return err
//	}
//	if err := config.FromEnv(&cfg); err != nil {
//		return err
//	}
//	rt, err := runtime.Open(runtime.Options{Config: cfg})
package config
