package eventlog

import (
	"context"
	"testing"
)

type trimCapture struct {
	calls    int
	min, max uint64
	entries  int
}

func (c *trimCapture) Trimmed(_, _ string, minSeq, maxSeq uint64, n int) {
	if c.calls == 0 {
		c.min = minSeq
	}
	c.calls++
	c.max = maxSeq
	c.entries += n
}

func TestTrimOlderThan(t *testing.T) {
	l := newTestLog(t)
	capture := &trimCapture{}
	l.SetTrimHook(capture)
	recs := []AppendRecord{
		{Header: NewHeader(1_000, 1), Payload: []byte("a")},
		{Header: NewHeader(2_000, 1), Payload: []byte("b")},
		{Header: NewHeader(3_000, 2), Payload: []byte("c")},
	}
	if _, err := l.Append(context.Background(), recs); err != nil {
		t.Fatalf("append: %v", err)
	}
	n, err := l.TrimOlderThan(context.Background(), 2_500, 1, 0)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}
	if capture.calls != 2 || capture.min != 1 || capture.max != 2 || capture.entries != 2 {
		t.Fatalf("hook = %+v", capture)
	}
	items, _, _ := l.Read(ReadOptions{})
	if len(items) != 1 || items[0].Seq != 3 {
		t.Fatalf("remaining = %+v", items)
	}
}

func TestTrimToMaxBytes(t *testing.T) {
	l, _ := seedLog(t, 6)
	size, err := l.Size()
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	per := size / 6
	n, err := l.TrimToMaxBytes(context.Background(), per*2, 0, 0)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 4 {
		t.Fatalf("deleted %d, want 4", n)
	}
	if n, _ := l.TrimToMaxBytes(context.Background(), per*2, 0, 0); n != 0 {
		t.Fatalf("second trim deleted %d", n)
	}
}

func TestTrimFuncAdapter(t *testing.T) {
	l, _ := seedLog(t, 2)
	var got int
	l.SetTrimHook(TrimFunc(func(project, build string, _, _ uint64, n int) {
		if project != "compiler" || build != l.Build().String() {
			t.Errorf("hook got %s/%s", project, build)
		}
		got += n
	}))
	if _, err := l.TrimOlderThan(context.Background(), 10, 0, 0); err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Fatalf("hook saw %d entries", got)
	}
}
