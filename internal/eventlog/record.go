package eventlog

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// Stored value layout: uvarint headerLen | header | payload | crc32c(header|payload).

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ErrCorrupt is returned for stored values that fail framing or checksum.
var ErrCorrupt = errors.New("eventlog: corrupt record")

// HeaderLen is the size of the header produced by NewHeader.
const HeaderLen = 9

// NewHeader builds the per-entry header: unix millis (8 BE) | event kind.
func NewHeader(tsMs int64, kind uint8) []byte {
	h := make([]byte, HeaderLen)
	binary.BigEndian.PutUint64(h, uint64(tsMs))
	h[8] = kind
	return h
}

// HeaderTimestamp extracts the millisecond timestamp from a header.
func HeaderTimestamp(h []byte) (int64, bool) {
	if len(h) < 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(h[:8])), true
}

// HeaderKind extracts the event kind tag from a header.
func HeaderKind(h []byte) (uint8, bool) {
	if len(h) < HeaderLen {
		return 0, false
	}
	return h[8], true
}

func checksum(header, payload []byte) uint32 {
	crc := crc32.Update(0, castagnoli, header)
	return crc32.Update(crc, castagnoli, payload)
}

// EncodeRecord frames header and payload with a checksum.
func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)
	return binary.BigEndian.AppendUint32(out, checksum(header, payload))
}

// DecodeRecord verifies and splits a stored value. The returned slices are copies.
func DecodeRecord(b []byte) (header, payload []byte, err error) {
	if len(b) < 1+4 {
		return nil, nil, ErrCorrupt
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen > uint64(len(b)-n-4) {
		return nil, nil, ErrCorrupt
	}
	end := n + int(hlen)
	h := b[n:end]
	p := b[end : len(b)-4]
	if checksum(h, p) != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, nil, ErrCorrupt
	}
	return append([]byte(nil), h...), append([]byte(nil), p...), nil
}
