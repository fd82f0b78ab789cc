package binlog

import (
	"errors"
	"fmt"

	"github.com/rzbill/buildlog/internal/event"
)

var (
	// ErrBadMagic means the input is not a binlog stream.
	ErrBadMagic = errors.New("binlog: bad stream magic")
	// ErrUnsupportedVersion is returned by writers asked for an unknown schema.
	ErrUnsupportedVersion = errors.New("binlog: unsupported schema version")
	// ErrTruncatedStream means the stream ended inside a record frame.
	ErrTruncatedStream = errors.New("binlog: truncated stream")
	// ErrRecordTooLarge means a frame declared a payload above the configured limit.
	ErrRecordTooLarge = errors.New("binlog: record exceeds size limit")
	// ErrUnregisteredKind is returned when writing an event whose kind has no codec.
	ErrUnregisteredKind = errors.New("binlog: no codec registered for kind")
	// ErrOpaqueKnownKind is returned when writing an Unknown placeholder whose
	// kind has a registered codec. Its raw payload came from a newer schema
	// and would not decode under the version being written.
	ErrOpaqueKnownKind = errors.New("binlog: opaque record of a registered kind")

	errTruncatedField   = errors.New("payload ends inside a field")
	errCountOverflow    = errors.New("declared count exceeds remaining payload")
	errTrailingBytes    = errors.New("unexpected trailing payload bytes")
	errMissingExtension = errors.New("extended record without extension data")
	errBadImportance    = errors.New("invalid importance")
	errBadNanos         = errors.New("timestamp nanoseconds out of range")
)

// DecodeError reports a record that could not be decoded. The reader has
// already consumed the whole frame, so calling Next again continues with the
// following record.
type DecodeError struct {
	// Offset is the stream offset of the record's kind byte.
	Offset int64
	// Kind is the kind tag read for the record.
	Kind event.Kind
	// Length is the declared payload length.
	Length int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("binlog: malformed %s record at offset %d (%d bytes): %v", e.Kind, e.Offset, e.Length, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
