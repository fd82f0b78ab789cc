package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/rzbill/buildlog/internal/event"
)

func mustCompile(t *testing.T, expr string) Filter {
	t.Helper()
	f, err := Compile(expr)
	if err != nil {
		t.Fatalf("compile %q: %v", expr, err)
	}
	return f
}

func TestEmptyMatchesAll(t *testing.T) {
	f := mustCompile(t, "  ")
	if f.Enabled() {
		t.Fatal("blank filter should be disabled")
	}
	if !f.Match(&event.Unknown{Tag: 7}, 0) {
		t.Fatal("blank filter must match")
	}
}

func TestMatch(t *testing.T) {
	ts := time.UnixMilli(5_000).UTC()
	plain := event.NewLocatedMessageAt(event.Location{File: "app.csproj", Code: "CS0168", Line: 12}, "unused", "", "csc", event.ImportanceHigh, ts)
	ext, err := event.NewExtendedMessageAt("TaskParameter", "params", "", "msbuild", event.ImportanceLow, ts)
	if err != nil {
		t.Fatal(err)
	}
	ext = ext.WithMetadata(map[string]*string{"name": event.Ptr("Sources")})
	unknown := &event.Unknown{Tag: 42}

	tests := []struct {
		expr string
		ev   event.Event
		want bool
	}{
		{`level >= 2`, plain, true},
		{`level >= 2`, ext, false},
		{`importance == "high" && file.endsWith(".csproj")`, plain, true},
		{`code.startsWith("CS") && line == 12`, plain, true},
		{`extended_type == "TaskParameter" && metadata["name"] == "Sources"`, ext, true},
		{`extended`, plain, false},
		{`kind == "ExtendedMessage"`, ext, true},
		{`tag == 42`, unknown, true},
		{`ts_ms == 5000 && seq == 3`, plain, true},
		{`metadata["missing"] == "x"`, plain, false},
		{`message.contains("unused") && sender == "csc"`, plain, true},
	}
	for _, tt := range tests {
		f := mustCompile(t, tt.expr)
		if got := f.Match(tt.ev, 3); got != tt.want {
			t.Errorf("%s on %s = %v, want %v", tt.expr, tt.ev.Kind(), got, tt.want)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	for _, expr := range []string{`level >=`, `message + 1`, `level`, `nope == 1`} {
		if _, err := Compile(expr); !errors.Is(err, ErrInvalidExpression) {
			t.Errorf("Compile(%q) err = %v", expr, err)
		}
	}
}
