package eventlog

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"
)

// TrimHook observes ranges removed by trims, one call per committed batch.
type TrimHook interface {
	Trimmed(project, build string, minSeq, maxSeq uint64, entries int)
}

type nopTrimHook struct{}

func (nopTrimHook) Trimmed(string, string, uint64, uint64, int) {}

// TrimFunc adapts a function to TrimHook.
type TrimFunc func(project, build string, minSeq, maxSeq uint64, entries int)

func (f TrimFunc) Trimmed(project, build string, minSeq, maxSeq uint64, entries int) {
	f(project, build, minSeq, maxSeq, entries)
}

const defaultTrimBatch = 1024

// trimmer deletes a run of oldest entries in batches.
type trimmer struct {
	l        *Log
	batch    int
	throttle time.Duration
}

// run deletes entries from the oldest forward while keep returns false.
func (t trimmer) run(ctx context.Context, keep func(seq uint64, value []byte) bool) (int, error) {
	l := t.l
	low := KeyLogEntry(l.project, l.build, 0)
	hi := KeyLogEntry(l.project, l.build, ^uint64(0))
	seqAt := len(low) - 8
	it, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return 0, err
	}
	defer it.Close()

	l.mu.Lock()
	hook := l.hook
	l.mu.Unlock()

	deleted := 0
	ok := it.First()
	for ok {
		b := l.db.NewBatch()
		var minSeq, maxSeq uint64
		n := 0
		for ok && n < t.batch {
			seq := binary.BigEndian.Uint64(it.Key()[seqAt:])
			if keep(seq, it.Value()) {
				ok = false
				break
			}
			if err := b.Delete(it.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			if n == 0 {
				minSeq = seq
			}
			maxSeq = seq
			n++
			ok = it.Next()
		}
		if n == 0 {
			b.Close()
			break
		}
		err := l.db.Commit(ctx, b)
		b.Close()
		if err != nil {
			return deleted, err
		}
		deleted += n
		hook.Trimmed(l.project, l.build.String(), minSeq, maxSeq, n)
		if ok && t.throttle > 0 {
			select {
			case <-ctx.Done():
				return deleted, ctx.Err()
			case <-time.After(t.throttle):
			}
		}
	}
	return deleted, it.Error()
}

// TrimOlderThan deletes leading entries whose header timestamp is before
// cutoffMs. It stops at the first entry at or after the cutoff, or whose
// header cannot be read.
func (l *Log) TrimOlderThan(ctx context.Context, cutoffMs int64, batch int, throttle time.Duration) (int, error) {
	if batch <= 0 {
		batch = defaultTrimBatch
	}
	return trimmer{l: l, batch: batch, throttle: throttle}.run(ctx, func(_ uint64, v []byte) bool {
		h, _, err := DecodeRecord(v)
		if err != nil {
			return true
		}
		ms, ok := HeaderTimestamp(h)
		return !ok || ms >= cutoffMs
	})
}

// TrimToMaxBytes deletes the oldest entries until the stored values of the
// build fit in maxBytes.
func (l *Log) TrimToMaxBytes(ctx context.Context, maxBytes int64, batch int, throttle time.Duration) (int, error) {
	if batch <= 0 {
		batch = defaultTrimBatch
	}
	if maxBytes < 0 {
		return 0, nil
	}
	total, err := l.Size()
	if err != nil || total <= maxBytes {
		return 0, err
	}
	return trimmer{l: l, batch: batch, throttle: throttle}.run(ctx, func(_ uint64, v []byte) bool {
		if total <= maxBytes {
			return true
		}
		total -= int64(len(v))
		return false
	})
}

// Size sums the stored value bytes of the build's entries.
func (l *Log) Size() (int64, error) {
	var total int64
	low := KeyLogEntry(l.project, l.build, 0)
	err := l.db.ScanPrefix(low[:len(low)-8], func(_, v []byte) bool {
		total += int64(len(v))
		return true
	})
	return total, err
}
