package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file and env.
type Config struct {
	DataDir        string `json:"dataDir" yaml:"dataDir" toml:"dataDir" env:"DATA_DIR"`
	Sync           string `json:"sync" yaml:"sync" toml:"sync" env:"SYNC"`
	SyncIntervalMs int    `json:"syncIntervalMs" yaml:"syncIntervalMs" toml:"syncIntervalMs" env:"SYNC_INTERVAL_MS"`

	HTTPAddr string `json:"httpAddr" yaml:"httpAddr" toml:"httpAddr" env:"HTTP_ADDR"`
	GRPCAddr string `json:"grpcAddr" yaml:"grpcAddr" toml:"grpcAddr" env:"GRPC_ADDR"`

	LogLevel  string `json:"logLevel" yaml:"logLevel" toml:"logLevel" env:"LOG_LEVEL"`
	LogFormat string `json:"logFormat" yaml:"logFormat" toml:"logFormat" env:"LOG_FORMAT"`

	AllowAutoCreateProjects bool     `json:"allowAutoCreateProjects" yaml:"allowAutoCreateProjects" toml:"allowAutoCreateProjects" env:"ALLOW_AUTO_CREATE_PROJECTS"`
	AllowedProjects         []string `json:"allowedProjects" yaml:"allowedProjects" toml:"allowedProjects" env:"ALLOWED_PROJECTS"`
	MaxProjects             int      `json:"maxProjects" yaml:"maxProjects" toml:"maxProjects" env:"MAX_PROJECTS"`

	ProjectDefaults ProjectDefaults `json:"projectDefaults" yaml:"projectDefaults" toml:"projectDefaults" envPrefix:"PROJECT_DEFAULTS_"`
	Codec           Codec           `json:"codec" yaml:"codec" toml:"codec" envPrefix:"CODEC_"`
	Retention       Retention       `json:"retention" yaml:"retention" toml:"retention" envPrefix:"RETENTION_"`
	Tracing         Tracing         `json:"tracing" yaml:"tracing" toml:"tracing" envPrefix:"TRACING_"`
}

// ProjectDefaults are the limits given to newly created projects.
type ProjectDefaults struct {
	MaxRecordBytes int   `json:"maxRecordBytes" yaml:"maxRecordBytes" toml:"maxRecordBytes" env:"MAX_RECORD_BYTES"`
	RetentionMs    int64 `json:"retentionMs" yaml:"retentionMs" toml:"retentionMs" env:"RETENTION_MS"`
}

// Codec tunes stream encoding and decoding.
type Codec struct {
	// ExportVersion is the stream version written by exports. Zero means current.
	ExportVersion uint64 `json:"exportVersion" yaml:"exportVersion" toml:"exportVersion" env:"EXPORT_VERSION"`
	// MaxStreamBytes caps a single ingested stream. Zero means unlimited.
	MaxStreamBytes int64 `json:"maxStreamBytes" yaml:"maxStreamBytes" toml:"maxStreamBytes" env:"MAX_STREAM_BYTES"`
}

// Retention controls the background trim sweep.
type Retention struct {
	SweepIntervalMs int   `json:"sweepIntervalMs" yaml:"sweepIntervalMs" toml:"sweepIntervalMs" env:"SWEEP_INTERVAL_MS"`
	MaxBuildBytes   int64 `json:"maxBuildBytes" yaml:"maxBuildBytes" toml:"maxBuildBytes" env:"MAX_BUILD_BYTES"`
	BatchSize       int   `json:"batchSize" yaml:"batchSize" toml:"batchSize" env:"BATCH_SIZE"`
}

// Tracing configures OTLP trace export. An empty Endpoint disables it.
type Tracing struct {
	Endpoint    string `json:"endpoint" yaml:"endpoint" toml:"endpoint" env:"ENDPOINT"`
	ServiceName string `json:"serviceName" yaml:"serviceName" toml:"serviceName" env:"SERVICE_NAME"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:                 DefaultDataDir(),
		Sync:                    "grouped",
		SyncIntervalMs:          5,
		HTTPAddr:                ":8080",
		GRPCAddr:                ":9090",
		LogLevel:                "info",
		LogFormat:               "text",
		AllowAutoCreateProjects: true,
		ProjectDefaults: ProjectDefaults{
			MaxRecordBytes: 1 << 20,
		},
		Retention: Retention{
			SweepIntervalMs: 60_000,
			BatchSize:       1024,
		},
		Tracing: Tracing{ServiceName: "buildlog"},
	}
}

// ProjectAllowed reports whether name passes the allow list. An empty list
// allows every project.
func (c Config) ProjectAllowed(name string) bool {
	if len(c.AllowedProjects) == 0 {
		return true
	}
	for _, p := range c.AllowedProjects {
		if p == name {
			return true
		}
	}
	return false
}

// Load reads configuration from a JSON, YAML or TOML file chosen by
// extension, on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return Config{}, fmt.Errorf("config: unsupported extension %q", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Write renders cfg as YAML.
func Write(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
