package binlog

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// payload is a read cursor over one record payload.
type payload struct {
	b   []byte
	off int
}

func (p *payload) remaining() int { return len(p.b) - p.off }

func (p *payload) fail(field string, n int) error {
	if n < 0 {
		if err := protowire.ParseError(n); err != nil {
			return fmt.Errorf("%s at payload offset %d: %w: %v", field, p.off, errTruncatedField, err)
		}
	}
	return fmt.Errorf("%s at payload offset %d: %w", field, p.off, errTruncatedField)
}

func (p *payload) uvarint(field string) (uint64, error) {
	v, n := protowire.ConsumeVarint(p.b[p.off:])
	if n < 0 {
		return 0, p.fail(field, n)
	}
	p.off += n
	return v, nil
}

func (p *payload) varint(field string) (int64, error) {
	v, err := p.uvarint(field)
	if err != nil {
		return 0, err
	}
	return protowire.DecodeZigZag(v), nil
}

func (p *payload) integer(field string) (int, error) {
	v, err := p.varint(field)
	return int(v), err
}

func (p *payload) u8(field string) (byte, error) {
	if p.remaining() < 1 {
		return 0, p.fail(field, 0)
	}
	c := p.b[p.off]
	p.off++
	return c, nil
}

func (p *payload) flag(field string) (bool, error) {
	c, err := p.u8(field)
	return c != 0, err
}

func (p *payload) str(field string) (string, error) {
	s, n := protowire.ConsumeString(p.b[p.off:])
	if n < 0 {
		return "", p.fail(field, n)
	}
	p.off += n
	return s, nil
}

// count reads a uvarint element count and rejects counts that cannot fit in
// the remaining payload given a minimum encoded size per element.
func (p *payload) count(field string, minElem int) (int, error) {
	n, err := p.uvarint(field)
	if err != nil {
		return 0, err
	}
	if n > uint64(p.remaining()/minElem) {
		return 0, fmt.Errorf("%s=%d with %d bytes left: %w", field, n, p.remaining(), errCountOverflow)
	}
	return int(n), nil
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

func appendInt(b []byte, v int) []byte {
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
}
