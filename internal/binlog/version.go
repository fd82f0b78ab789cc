package binlog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Magic opens every stream.
var Magic = []byte("BLOG")

const (
	// Version1 is the original layout: extended records carry no data field.
	Version1 uint64 = 1
	// Version2 adds the optional extended data field.
	Version2 uint64 = 2
	// CurrentVersion is the newest layout this package writes and fully understands.
	CurrentVersion = Version2
)

// appendHeader appends the stream header for version.
func appendHeader(dst []byte, version uint64) []byte {
	dst = append(dst, Magic...)
	return protowire.AppendVarint(dst, version)
}

// readHeader consumes the stream header and returns its version and size.
func readHeader(r io.ByteReader) (uint64, int, error) {
	var got [4]byte
	for i := range got {
		c, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, i, fmt.Errorf("%w: stream shorter than header", ErrBadMagic)
			}
			return 0, i, err
		}
		got[i] = c
	}
	if !bytes.Equal(got[:], Magic) {
		return 0, len(got), fmt.Errorf("%w: %q", ErrBadMagic, got[:])
	}
	cr := &countingByteReader{r: r}
	v, err := binary.ReadUvarint(cr)
	if err != nil {
		return 0, len(got) + cr.n, fmt.Errorf("%w: reading schema version: %v", ErrTruncatedStream, err)
	}
	if v == 0 {
		return 0, len(got) + cr.n, fmt.Errorf("%w: schema version 0", ErrBadMagic)
	}
	return v, len(got) + cr.n, nil
}

type countingByteReader struct {
	r io.ByteReader
	n int
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}
