package binlog

import (
	"fmt"
	"io"
	"sync"

	"github.com/rzbill/buildlog/internal/event"
	"google.golang.org/protobuf/encoding/protowire"
)

// Writer appends records to a stream. Writes are serialized, so the order of
// records in the stream is the order in which Write calls acquired the writer.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	reg     *Registry
	version uint64
	max     int
	buf     []byte
	off     int64
	err     error
}

// NewWriter writes the stream header to w and returns a Writer.
func NewWriter(w io.Writer, opts ...Option) (*Writer, error) {
	o := buildOptions(opts)
	if o.version < Version1 || o.version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, o.version)
	}
	hdr := appendHeader(nil, o.version)
	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("binlog: write header: %w", err)
	}
	return &Writer{w: w, reg: o.registry, version: o.version, max: o.maxRecordBytes, off: int64(len(hdr))}, nil
}

// Version returns the schema version being written.
func (w *Writer) Version() uint64 { return w.version }

// Offset returns the number of bytes written so far, header included.
func (w *Writer) Offset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.off
}

// Write encodes ev and appends it. Encoding errors leave the stream
// untouched; a failed underlying write poisons the Writer.
func (w *Writer) Write(ev event.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	frame, err := appendFrame(w.buf[:0], w.reg, ev, w.version, w.max)
	if err != nil {
		return err
	}
	w.buf = frame
	n, err := w.w.Write(frame)
	w.off += int64(n)
	if err != nil {
		w.err = fmt.Errorf("binlog: write record: %w", err)
		return w.err
	}
	return nil
}

// AppendFrame appends the kind, length and payload of ev to dst.
func AppendFrame(dst []byte, reg *Registry, ev event.Event, version uint64) ([]byte, error) {
	return appendFrame(dst, reg, ev, version, DefaultMaxRecordBytes)
}

// AppendOpaqueFrame appends u's kind and raw payload to dst without consulting
// a registry. Stores use it to keep records from newer schemas verbatim.
func AppendOpaqueFrame(dst []byte, u *event.Unknown) []byte {
	dst = append(dst, byte(u.Tag))
	dst = protowire.AppendVarint(dst, uint64(len(u.Raw)))
	return append(dst, u.Raw...)
}

func appendFrame(dst []byte, reg *Registry, ev event.Event, version uint64, limit int) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("binlog: nil event")
	}
	payload, err := reg.encode(nil, ev, version)
	if err != nil {
		return nil, err
	}
	if len(payload) > limit {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(payload))
	}
	dst = append(dst, byte(ev.Kind()))
	dst = protowire.AppendVarint(dst, uint64(len(payload)))
	return append(dst, payload...), nil
}
