package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.AllowAutoCreateProjects {
		t.Fatalf("auto create should default to true")
	}
	if cfg.ProjectDefaults.MaxRecordBytes != 1<<20 {
		t.Fatalf("max record bytes = %d", cfg.ProjectDefaults.MaxRecordBytes)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" {
		t.Fatalf("addrs = %s %s", cfg.HTTPAddr, cfg.GRPCAddr)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"buildlog.json", `{"httpAddr":":1","projectDefaults":{"maxRecordBytes":2048},"allowedProjects":["web"]}`},
		{"buildlog.yaml", "httpAddr: \":1\"\nprojectDefaults:\n  maxRecordBytes: 2048\nallowedProjects: [web]\n"},
		{"buildlog.toml", "httpAddr = \":1\"\nallowedProjects = [\"web\"]\n[projectDefaults]\nmaxRecordBytes = 2048\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.name, tt.body))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.HTTPAddr != ":1" || cfg.ProjectDefaults.MaxRecordBytes != 2048 {
				t.Fatalf("cfg = %+v", cfg)
			}
			if !cfg.ProjectAllowed("web") || cfg.ProjectAllowed("api") {
				t.Fatalf("allow list not applied: %v", cfg.AllowedProjects)
			}
			if cfg.Tracing.Endpoint != "http://collector:4318" || cfg.Tracing.ServiceName != "buildlog" {
		t.Fatalf("tracing = %+v", cfg.Tracing)
	}
	if cfg.GRPCAddr != ":9090" {
				t.Fatalf("defaults lost: grpc=%s", cfg.GRPCAddr)
			}
		})
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	if _, err := Load(writeFile(t, "buildlog.ini", "x=1")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil || cfg.LogLevel != "info" {
		t.Fatalf("cfg=%+v err=%v", cfg, err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("BUILDLOG_ALLOW_AUTO_CREATE_PROJECTS", "false")
	t.Setenv("BUILDLOG_HTTP_ADDR", ":7000")
	t.Setenv("BUILDLOG_PROJECT_DEFAULTS_MAX_RECORD_BYTES", "4096")
	t.Setenv("BUILDLOG_ALLOWED_PROJECTS", "web,api")
	t.Setenv("BUILDLOG_CODEC_EXPORT_VERSION", "1")
	t.Setenv("BUILDLOG_TRACING_ENDPOINT", "http://collector:4318")

	cfg := Default()
	if err := FromEnv(&cfg); err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.AllowAutoCreateProjects {
		t.Fatalf("bool override not applied")
	}
	if cfg.HTTPAddr != ":7000" || cfg.ProjectDefaults.MaxRecordBytes != 4096 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedProjects) != 2 || cfg.AllowedProjects[1] != "api" {
		t.Fatalf("allowed = %v", cfg.AllowedProjects)
	}
	if cfg.Codec.ExportVersion != 1 {
		t.Fatalf("export version = %d", cfg.Codec.ExportVersion)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Fatalf("unset variable changed grpc addr: %s", cfg.GRPCAddr)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	t.Setenv("BUILDLOG_MAX_PROJECTS", "many")
	cfg := Default()
	if err := FromEnv(&cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteRoundTripsThroughLoad(t *testing.T) {
	cfg := Default()
	cfg.HTTPAddr = ":7777"
	cfg.AllowedProjects = []string{"app"}
	var buf bytes.Buffer
	if err := Write(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(writeFile(t, "out.yaml", buf.String()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.HTTPAddr != ":7777" || len(got.AllowedProjects) != 1 || got.Retention != cfg.Retention {
		t.Fatalf("got %+v", got)
	}
}
