package binlog

import (
	"fmt"
	"sort"
	"time"

	"github.com/rzbill/buildlog/internal/event"
	"google.golang.org/protobuf/encoding/protowire"
)

// presence bits for optional base fields.
const (
	hasMessage uint64 = 1 << iota
	hasHelpKeyword
	hasSenderName
	hasSubcategory
	hasCode
	hasFile
	hasPosition
	hasArgs
)

// appendMessage appends the shared message payload. ext is nil for records
// without the extension capability.
func appendMessage(dst []byte, rec event.Record, ext *event.Extension, version uint64) []byte {
	var bits uint64
	set := func(ok bool, bit uint64) {
		if ok {
			bits |= bit
		}
	}
	loc := rec.Location
	set(rec.Message != "", hasMessage)
	set(rec.HelpKeyword != "", hasHelpKeyword)
	set(rec.SenderName != "", hasSenderName)
	set(loc.Subcategory != "", hasSubcategory)
	set(loc.Code != "", hasCode)
	set(loc.File != "", hasFile)
	set(loc.HasPosition(), hasPosition)
	set(len(rec.Args) > 0, hasArgs)

	dst = protowire.AppendVarint(dst, bits)
	dst = append(dst, byte(rec.Importance))
	dst = protowire.AppendVarint(dst, protowire.EncodeZigZag(rec.Timestamp.Unix()))
	dst = protowire.AppendVarint(dst, uint64(rec.Timestamp.Nanosecond()))

	for _, f := range []struct {
		bit uint64
		s   string
	}{
		{hasMessage, rec.Message},
		{hasHelpKeyword, rec.HelpKeyword},
		{hasSenderName, rec.SenderName},
		{hasSubcategory, loc.Subcategory},
		{hasCode, loc.Code},
		{hasFile, loc.File},
	} {
		if bits&f.bit != 0 {
			dst = protowire.AppendString(dst, f.s)
		}
	}
	if bits&hasPosition != 0 {
		dst = appendInt(dst, loc.Line)
		dst = appendInt(dst, loc.Column)
		dst = appendInt(dst, loc.EndLine)
		dst = appendInt(dst, loc.EndColumn)
	}
	if bits&hasArgs != 0 {
		dst = protowire.AppendVarint(dst, uint64(len(rec.Args)))
		for _, a := range rec.Args {
			dst = protowire.AppendString(dst, fmt.Sprint(a))
		}
	}

	dst = appendBool(dst, ext != nil)
	if ext == nil {
		return dst
	}
	dst = protowire.AppendString(dst, ext.Type)
	dst = protowire.AppendVarint(dst, uint64(len(ext.Metadata)))
	// sorted keys keep encodings deterministic
	keys := make([]string, 0, len(ext.Metadata))
	for k := range ext.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dst = protowire.AppendString(dst, k)
		v := ext.Metadata[k]
		dst = appendBool(dst, v != nil)
		if v != nil {
			dst = protowire.AppendString(dst, *v)
		}
	}
	if version >= Version2 {
		dst = appendBool(dst, ext.Data != nil)
		if ext.Data != nil {
			dst = protowire.AppendString(dst, *ext.Data)
		}
	}
	return dst
}

// decodeMessage parses the shared message payload. The returned extension is
// nil when the record carries none.
func decodeMessage(b []byte, version uint64) (event.Record, *event.Extension, error) {
	p := &payload{b: b}
	var rec event.Record

	bits, err := p.uvarint("presence")
	if err != nil {
		return rec, nil, err
	}
	imp, err := p.u8("importance")
	if err != nil {
		return rec, nil, err
	}
	rec.Importance = event.Importance(imp)
	if !rec.Importance.Valid() {
		return rec, nil, fmt.Errorf("%w: %d", errBadImportance, imp)
	}
	sec, err := p.varint("timestamp")
	if err != nil {
		return rec, nil, err
	}
	nsec, err := p.uvarint("timestamp nanos")
	if err != nil {
		return rec, nil, err
	}
	if nsec >= uint64(time.Second) {
		return rec, nil, fmt.Errorf("%w: %d", errBadNanos, nsec)
	}
	rec.Timestamp = time.Unix(sec, int64(nsec)).UTC()

	for _, f := range []struct {
		bit  uint64
		name string
		dst  *string
	}{
		{hasMessage, "message", &rec.Message},
		{hasHelpKeyword, "helpKeyword", &rec.HelpKeyword},
		{hasSenderName, "senderName", &rec.SenderName},
		{hasSubcategory, "subcategory", &rec.Location.Subcategory},
		{hasCode, "code", &rec.Location.Code},
		{hasFile, "file", &rec.Location.File},
	} {
		if bits&f.bit == 0 {
			continue
		}
		if *f.dst, err = p.str(f.name); err != nil {
			return rec, nil, err
		}
	}
	if bits&hasPosition != 0 {
		for _, f := range []struct {
			name string
			dst  *int
		}{
			{"line", &rec.Location.Line},
			{"column", &rec.Location.Column},
			{"endLine", &rec.Location.EndLine},
			{"endColumn", &rec.Location.EndColumn},
		} {
			if *f.dst, err = p.integer(f.name); err != nil {
				return rec, nil, err
			}
		}
	}
	if bits&hasArgs != 0 {
		n, err := p.count("argCount", 1)
		if err != nil {
			return rec, nil, err
		}
		rec.Args = make([]any, n)
		for i := range rec.Args {
			s, err := p.str("arg")
			if err != nil {
				return rec, nil, err
			}
			rec.Args[i] = s
		}
	}

	present, err := p.flag("extensionPresent")
	if err != nil {
		return rec, nil, err
	}
	var ext *event.Extension
	if present {
		if ext, err = decodeExtension(p, version); err != nil {
			return rec, nil, err
		}
	}
	if p.remaining() > 0 && version <= CurrentVersion {
		return rec, nil, fmt.Errorf("%d bytes: %w", p.remaining(), errTrailingBytes)
	}
	return rec, ext, nil
}

func decodeExtension(p *payload, version uint64) (*event.Extension, error) {
	// the type is read into a placeholder first; it only counts once read
	ext := &event.Extension{Type: event.UndefinedExtendedType}
	typ, err := p.str("extendedType")
	if err != nil {
		return nil, err
	}
	ext.Type = typ
	// each pair needs at least a key length byte and a has-value byte
	n, err := p.count("metadataCount", 2)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		ext.Metadata = make(map[string]*string, n)
	}
	for i := 0; i < n; i++ {
		k, err := p.str("metadataKey")
		if err != nil {
			return nil, err
		}
		ok, err := p.flag("metadataHasValue")
		if err != nil {
			return nil, err
		}
		var v *string
		if ok {
			s, err := p.str("metadataValue")
			if err != nil {
				return nil, err
			}
			v = &s
		}
		ext.Metadata[k] = v
	}
	if version >= Version2 {
		ok, err := p.flag("hasData")
		if err != nil {
			return nil, err
		}
		if ok {
			s, err := p.str("data")
			if err != nil {
				return nil, err
			}
			ext.Data = &s
		}
	}
	return ext, nil
}
