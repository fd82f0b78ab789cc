package eventlog

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Token is a resume position: the big-endian sequence of the next entry.
type Token [8]byte

// TokenFromSeq builds a token positioned at seq.
func TokenFromSeq(seq uint64) Token {
	var t Token
	binary.BigEndian.PutUint64(t[:], seq)
	return t
}

// Seq returns the sequence the token points at.
func (t Token) Seq() uint64 { return binary.BigEndian.Uint64(t[:]) }

// IsZero reports whether the token is unset.
func (t Token) IsZero() bool { return t == Token{} }

type ReadOptions struct {
	Start   Token // zero starts at the first (or, reversed, the last) entry
	Limit   int
	Reverse bool
}

type Item struct {
	Seq     uint64
	Header  []byte
	Payload []byte
}

// Read returns up to Limit entries starting at Start inclusive, plus the
// token of the entry after the last one returned (zero when exhausted).
func (l *Log) Read(opts ReadOptions) ([]Item, Token, error) {
	low := KeyLogEntry(l.project, l.build, 0)
	hi := KeyLogEntry(l.project, l.build, ^uint64(0))
	seqAt := len(low) - 8

	it, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, Token{}, err
	}
	defer it.Close()

	start := KeyLogEntry(l.project, l.build, opts.Start.Seq())
	var ok bool
	switch {
	case opts.Reverse && opts.Start.IsZero():
		ok = it.Last()
	case opts.Reverse:
		ok = it.SeekLT(append(start, 0x00))
	case opts.Start.IsZero():
		ok = it.First()
	default:
		ok = it.SeekGE(start)
	}

	items := make([]Item, 0, max(1, opts.Limit))
	for ; ok && (opts.Limit <= 0 || len(items) < opts.Limit); ok = step(it, opts.Reverse) {
		seq := binary.BigEndian.Uint64(it.Key()[seqAt:])
		h, p, derr := DecodeRecord(it.Value())
		if derr != nil {
			return items, Token{}, fmt.Errorf("eventlog: entry %d: %w", seq, derr)
		}
		items = append(items, Item{Seq: seq, Header: h, Payload: p})
	}
	var next Token
	if ok {
		copy(next[:], it.Key()[seqAt:])
	}
	return items, next, it.Error()
}

func step(it *pebble.Iterator, reverse bool) bool {
	if reverse {
		return it.Prev()
	}
	return it.Next()
}
