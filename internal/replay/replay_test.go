package replay

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rzbill/buildlog/internal/binlog"
	"github.com/rzbill/buildlog/internal/event"
	"github.com/rzbill/buildlog/internal/filter"
	"github.com/rzbill/buildlog/pkg/log"
)

var ts = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// stream encodes evs and splices a malformed Message frame after the first.
func stream(t *testing.T, evs ...event.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := binlog.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for i, ev := range evs {
		if err := w.Write(ev); err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			buf.Write([]byte{byte(event.KindMessage), 2, 0xff, 0xff})
		}
	}
	return buf.Bytes()
}

func sample(t *testing.T) []event.Event {
	t.Helper()
	ext, err := event.NewExtendedMessageAt("TaskParameter", "params", "", "msbuild", event.ImportanceLow, ts)
	if err != nil {
		t.Fatal(err)
	}
	return []event.Event{
		event.NewMessageAt("first", "", "csc", event.ImportanceHigh, ts),
		ext,
		&event.Unknown{Tag: 77, Raw: []byte("future")},
		event.NewMessageAt("last", "", "csc", event.ImportanceNormal, ts),
	}
}

func TestStreamSkipsMalformed(t *testing.T) {
	var logs bytes.Buffer
	logger := log.NewLogger(log.WithOutput(log.NewWriterOutput(&logs)), log.WithFormatter(&log.TextFormatter{DisableTimestamp: true}))

	var got []Entry
	st, err := Stream(context.Background(), bytes.NewReader(stream(t, sample(t)...)), Options{Logger: logger, Source: "mem"}, func(e Entry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if st.Records != 4 || st.Malformed != 1 || st.Unknown != 1 || st.Matched != 4 {
		t.Fatalf("stats = %+v", st)
	}
	if len(got) != 4 || got[0].Seq != 1 || got[1].Seq != 3 || got[3].Seq != 5 {
		t.Fatalf("seqs = %v %v %v %v", got[0].Seq, got[1].Seq, got[2].Seq, got[3].Seq)
	}
	if got[0].Offset != int64(len(binlog.Magic)+1) {
		t.Fatalf("first offset = %d", got[0].Offset)
	}
	if !strings.Contains(logs.String(), "skipping malformed record") || !strings.Contains(logs.String(), "offset=") {
		t.Fatalf("missing warning: %q", logs.String())
	}
}

func TestStreamFilter(t *testing.T) {
	f, err := filter.Compile(`level == 2 || extended`)
	if err != nil {
		t.Fatal(err)
	}
	var kinds []event.Kind
	st, err := Stream(context.Background(), bytes.NewReader(stream(t, sample(t)...)), Options{Filter: f}, func(e Entry) error {
		kinds = append(kinds, e.Event.Kind())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.Matched != 2 || len(kinds) != 2 || kinds[1] != event.KindExtendedMessage {
		t.Fatalf("matched %d kinds %v", st.Matched, kinds)
	}
}

func TestStreamHandlerErrorStops(t *testing.T) {
	stop := errors.New("stop")
	n := 0
	_, err := Stream(context.Background(), bytes.NewReader(stream(t, sample(t)...)), Options{}, func(Entry) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v calls=%d", err, n)
	}
}

func TestStreamFramingErrorIsFatal(t *testing.T) {
	b := stream(t, sample(t)...)
	_, err := Stream(context.Background(), bytes.NewReader(b[:len(b)-2]), Options{}, func(Entry) error { return nil })
	if !errors.Is(err, binlog.ErrTruncatedStream) {
		t.Fatalf("want ErrTruncatedStream, got %v", err)
	}
	if _, err := Stream(context.Background(), strings.NewReader("nope"), Options{}, nil); !errors.Is(err, binlog.ErrBadMagic) {
		t.Fatalf("want ErrBadMagic, got %v", err)
	}
}

func TestFilesInParallel(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.blog")
	if err := os.WriteFile(good, stream(t, sample(t)...), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.blog")
	if err := os.WriteFile(bad, []byte("XXXX"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.blog")

	res, err := Files(context.Background(), []string{good, bad, missing, good}, Options{})
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(res) != 4 || res[0].Path != good || res[3].Path != good {
		t.Fatalf("results out of order: %+v", res)
	}
	if res[0].Err != nil || len(res[0].Entries) != 4 || res[3].Stats.Records != 4 {
		t.Fatalf("good result = %+v", res[0])
	}
	if !errors.Is(res[1].Err, binlog.ErrBadMagic) {
		t.Fatalf("bad result err = %v", res[1].Err)
	}
	if !errors.Is(res[2].Err, os.ErrNotExist) {
		t.Fatalf("missing result err = %v", res[2].Err)
	}
}

func TestFilesCanceled(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.blog")
	if err := os.WriteFile(p, stream(t, sample(t)...), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Files(ctx, []string{p}, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
