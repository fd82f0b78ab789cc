package binlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rzbill/buildlog/internal/event"
	"google.golang.org/protobuf/encoding/protowire"
)

// Reader decodes records from a stream one at a time. It is not safe for
// concurrent use; independent streams can be read in parallel.
type Reader struct {
	r       *bufio.Reader
	reg     *Registry
	version uint64
	max     int
	off     int64
	err     error
}

// NewReader consumes the stream header from r and returns a Reader.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	o := buildOptions(opts)
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	v, n, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	return &Reader{r: br, reg: o.registry, version: v, max: o.maxRecordBytes, off: int64(n)}, nil
}

// Version returns the schema version announced by the stream header.
func (r *Reader) Version() uint64 { return r.version }

// Newer reports whether the stream was written with a schema newer than this
// reader understands.
func (r *Reader) Newer() bool { return r.version > CurrentVersion }

// Offset returns the stream offset of the next record.
func (r *Reader) Offset() int64 { return r.off }

// Next returns the next event. It returns io.EOF at a clean end of stream and
// a *DecodeError for a record that could not be decoded; after a DecodeError
// the caller may call Next again. Any other error is fatal and sticky.
func (r *Reader) Next() (event.Event, error) {
	if r.err != nil {
		return nil, r.err
	}
	start := r.off
	kb, err := r.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.err = io.EOF
		} else {
			r.err = fmt.Errorf("binlog: read kind at offset %d: %w", start, err)
		}
		return nil, r.err
	}
	r.off++
	kind := event.Kind(kb)

	cr := &countingByteReader{r: r.r}
	length, err := binary.ReadUvarint(cr)
	r.off += int64(cr.n)
	if err != nil {
		return nil, r.fatal(start, kind, fmt.Errorf("%w: payload length: %v", ErrTruncatedStream, err))
	}
	if length > uint64(r.max) {
		return nil, r.fatal(start, kind, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, length))
	}
	buf := make([]byte, int(length))
	n, err := io.ReadFull(r.r, buf)
	r.off += int64(n)
	if err != nil {
		return nil, r.fatal(start, kind, fmt.Errorf("%w: payload has %d of %d bytes", ErrTruncatedStream, n, length))
	}

	ev, err := r.reg.decode(kind, buf, r.version)
	if err != nil {
		if r.Newer() {
			return &event.Unknown{Tag: kind, Raw: buf}, nil
		}
		return nil, &DecodeError{Offset: start, Kind: kind, Length: int(length), Err: err}
	}
	return ev, nil
}

func (r *Reader) fatal(off int64, kind event.Kind, err error) error {
	r.err = fmt.Errorf("binlog: %s record at offset %d: %w", kind, off, err)
	return r.err
}

// DecodeFrame decodes a single frame produced by AppendFrame. version is the
// schema version the frame was written with.
func DecodeFrame(frame []byte, reg *Registry, version uint64) (event.Event, error) {
	if len(frame) < 1 {
		return nil, fmt.Errorf("%w: empty frame", ErrTruncatedStream)
	}
	kind := event.Kind(frame[0])
	length, n := protowire.ConsumeVarint(frame[1:])
	if n < 0 {
		return nil, fmt.Errorf("%w: frame length: %v", ErrTruncatedStream, protowire.ParseError(n))
	}
	body := frame[1+n:]
	if uint64(len(body)) != length {
		return nil, fmt.Errorf("%w: frame declares %d bytes, has %d", ErrTruncatedStream, length, len(body))
	}
	ev, err := reg.decode(kind, body, version)
	if err != nil {
		if version > CurrentVersion {
			return &event.Unknown{Tag: kind, Raw: append([]byte(nil), body...)}, nil
		}
		return nil, &DecodeError{Kind: kind, Length: len(body), Err: err}
	}
	return ev, nil
}
