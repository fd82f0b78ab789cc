package eventlog

import "testing"

func TestReadForward(t *testing.T) {
	l, seqs := seedLog(t, 5)
	items, next, err := l.Read(ReadOptions{Limit: 3})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 3 || items[0].Seq != seqs[0] || items[2].Seq != seqs[2] {
		t.Fatalf("items = %+v", items)
	}
	if next.Seq() != seqs[3] {
		t.Fatalf("next = %d, want %d", next.Seq(), seqs[3])
	}
	rest, end, err := l.Read(ReadOptions{Start: next})
	if err != nil || len(rest) != 2 || !end.IsZero() {
		t.Fatalf("rest = %d items, end=%v, err=%v", len(rest), end, err)
	}
}

func TestReadReverse(t *testing.T) {
	l, seqs := seedLog(t, 4)
	items, _, err := l.Read(ReadOptions{Reverse: true, Limit: 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 || items[0].Seq != seqs[3] || items[1].Seq != seqs[2] {
		t.Fatalf("unexpected reverse order: %+v", items)
	}
	from, _, err := l.Read(ReadOptions{Reverse: true, Start: TokenFromSeq(seqs[1])})
	if err != nil || len(from) != 2 || from[0].Seq != seqs[1] {
		t.Fatalf("reverse from token = %+v, %v", from, err)
	}
}

func TestReadHeaderPreserved(t *testing.T) {
	l, _ := seedLog(t, 2)
	items, _, _ := l.Read(ReadOptions{Start: TokenFromSeq(2)})
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	if ts, _ := HeaderTimestamp(items[0].Header); ts != 1 {
		t.Fatalf("ts = %d", ts)
	}
}
