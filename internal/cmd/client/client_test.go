package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rzbill/buildlog/internal/binlog"
	cfgpkg "github.com/rzbill/buildlog/internal/config"
	"github.com/rzbill/buildlog/internal/event"
	"github.com/rzbill/buildlog/internal/eventlog"
	"github.com/rzbill/buildlog/internal/runtime"
	grpcserver "github.com/rzbill/buildlog/internal/server/grpc"
	httpserver "github.com/rzbill/buildlog/internal/server/http"
	logpkg "github.com/rzbill/buildlog/pkg/log"
	"github.com/spf13/cobra"
)

func writeStream(t *testing.T, dir string) string {
	t.Helper()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	w, err := binlog.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	warn := event.NewLocatedMessageAt(event.Location{Code: "CS0168", File: "a.cs", Line: 3, Column: 9}, "unused", "", "csc", event.ImportanceNormal, ts)
	for _, ev := range []event.Event{
		event.NewMessageAt("starting", "", "msbuild", event.ImportanceHigh, ts),
		warn,
		event.NewMessageAt("done", "", "msbuild", event.ImportanceLow, ts),
	} {
		if err := w.Write(ev); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, "build.blog")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Outputs: []string{"null"}})
	rt, err := runtime.Open(runtime.Options{Config: cfgpkg.Default(), DataDir: t.TempDir(), Logger: logger})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestDumpText(t *testing.T) {
	path := writeStream(t, t.TempDir())
	out, err := run(t, NewDumpCommand(), path, "--stats")
	if err != nil {
		t.Fatalf("dump: %v\n%s", err, out)
	}
	for _, want := range []string{"starting", "CS0168: a.cs(3,9): unused", "done", "records=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestDumpFilterJSON(t *testing.T) {
	path := writeStream(t, t.TempDir())
	out, err := run(t, NewDumpCommand(), path, "--format", "json", "--filter", `code == "CS0168"`)
	if err != nil {
		t.Fatalf("dump: %v\n%s", err, out)
	}
	dec := json.NewDecoder(strings.NewReader(out))
	var lines []map[string]any
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatal(err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 1 {
		t.Fatalf("want 1 event, got %d:\n%s", len(lines), out)
	}
	ev := lines[0]["event"].(map[string]any)
	if ev["code"] != "CS0168" {
		t.Fatalf("event: %v", ev)
	}
}

func TestDumpReportsBadFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeStream(t, dir)
	bad := filepath.Join(dir, "bad.blog")
	if err := os.WriteFile(bad, []byte("nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, NewDumpCommand(), good, bad)
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("want partial failure, got %v", err)
	}
	if !strings.Contains(out, "starting") || !strings.Contains(out, "bad.blog") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestDumpRejectsBadFlags(t *testing.T) {
	path := writeStream(t, t.TempDir())
	if _, err := run(t, NewDumpCommand(), path, "--format", "xml"); err == nil {
		t.Fatal("expected format error")
	}
	if _, err := run(t, NewDumpCommand(), path, "--filter", "kind =="); err == nil {
		t.Fatal("expected filter error")
	}
}

func TestBuildCommandsOverHTTP(t *testing.T) {
	rt := newRuntime(t)
	ts := httptest.NewServer(httpserver.New(rt, nil, nil).Handler())
	defer ts.Close()
	base := func() string { return ts.URL }
	path := writeStream(t, t.TempDir())

	out, err := run(t, NewBuildCommand(base), "ingest", path, "--project", "app")
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	var info eventlog.BuildInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if info.Records != 3 || info.Source != "build.blog" {
		t.Fatalf("info: %+v", info)
	}

	out, err = run(t, NewBuildCommand(base), "list", "--project", "app")
	if err != nil || !strings.Contains(out, info.ID) {
		t.Fatalf("list: %v\n%s", err, out)
	}

	out, err = run(t, NewBuildCommand(base), "events", info.ID, "--project", "app", "--filter", "level >= 2")
	if err != nil {
		t.Fatalf("events: %v\n%s", err, out)
	}
	if !strings.Contains(out, "starting") || strings.Contains(out, "done") {
		t.Fatalf("events output:\n%s", out)
	}

	exported := filepath.Join(t.TempDir(), "out.blog")
	if _, err := run(t, NewBuildCommand(base), "export", info.ID, "--project", "app", "--version", "1", "-o", exported); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(exported)
	if err != nil {
		t.Fatal(err)
	}
	r, err := binlog.NewReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	if r.Version() != binlog.Version1 {
		t.Fatalf("version %d", r.Version())
	}

	if _, err := run(t, NewBuildCommand(base), "get", strings.Repeat("f", 32), "--project", "app"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("get missing: %v", err)
	}
}

func TestBuildIngestOverGRPC(t *testing.T) {
	rt := newRuntime(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := grpcserver.New(rt, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, lis) }()
	t.Setenv("BUILDLOG_GRPC", lis.Addr().String())

	path := writeStream(t, t.TempDir())
	out, err := run(t, NewBuildCommand(nil), "ingest", path, "--project", "app", "--transport", "grpc")
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	var info eventlog.BuildInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	out, err = run(t, NewBuildCommand(nil), "get", info.ID, "--project", "app", "--transport", "grpc")
	if err != nil || !strings.Contains(out, `"records": 3`) {
		t.Fatalf("get: %v\n%s", err, out)
	}
}

func TestGetTransportRejectsUnknown(t *testing.T) {
	if _, err := getTransport("carrier-pigeon", HTTPURLFromEnv); err == nil {
		t.Fatal("expected error")
	}
}
