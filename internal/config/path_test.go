package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/buildlog" {
		t.Fatalf("got %s", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("expected ./data fallback, got %s", got)
	}
}

func TestDefaultDataDirShape(t *testing.T) {
	got := DefaultDataDir()
	if got == "" {
		t.Fatal("empty data dir")
	}
	if !filepath.IsAbs(got) && !strings.HasPrefix(got, "./") {
		t.Fatalf("want absolute or ./ path, got %s", got)
	}
	if got != "./data" && !strings.HasSuffix(got, "buildlog") {
		t.Fatalf("want buildlog suffix, got %s", got)
	}
	if again := DefaultDataDir(); again != got {
		t.Fatalf("not stable: %s vs %s", got, again)
	}
}

func TestIsDir(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{".", true},
		{"/non/existent/path", false},
		{os.Args[0], false},
	}
	for _, tt := range tests {
		if got := isDir(tt.path); got != tt.want {
			t.Errorf("isDir(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
