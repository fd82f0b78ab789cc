package binlog

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/buildlog/internal/event"
	"google.golang.org/protobuf/encoding/protowire"
)

func sameRecord(t *testing.T, want, got event.Record) {
	t.Helper()
	if !want.Timestamp.Equal(got.Timestamp) {
		t.Fatalf("timestamp: want %v got %v", want.Timestamp, got.Timestamp)
	}
	want.Timestamp, got.Timestamp = time.Time{}, time.Time{}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("record mismatch:\nwant %+v\ngot  %+v", want, got)
	}
}

func sameExtension(t *testing.T, want, got event.Extension) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("extension mismatch:\nwant %+v\ngot  %+v", want, got)
	}
}

func encodeAll(t *testing.T, opts []Option, evs ...event.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts...)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	for _, ev := range evs {
		if err := w.Write(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return buf.Bytes()
}

func readAll(t *testing.T, b []byte, opts ...Option) ([]event.Event, []error) {
	t.Helper()
	r, err := NewReader(bytes.NewReader(b), opts...)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	var evs []event.Event
	var errs []error
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return evs, errs
		}
		var de *DecodeError
		if errors.As(err, &de) {
			errs = append(errs, err)
			continue
		}
		if err != nil {
			t.Fatalf("fatal: %v", err)
		}
		evs = append(evs, ev)
	}
}

func header(version uint64) []byte { return appendHeader(nil, version) }

func frame(kind event.Kind, payload []byte) []byte {
	b := []byte{byte(kind)}
	b = protowire.AppendVarint(b, uint64(len(payload)))
	return append(b, payload...)
}

func maximal(t *testing.T) *event.ExtendedMessage {
	t.Helper()
	ts := time.Date(2024, 5, 6, 7, 8, 9, 987654321, time.UTC)
	loc := event.Location{Subcategory: "sub", Code: "BL100", File: "src/app.proj", Line: 12, Column: 3, EndLine: 14, EndColumn: -1}
	m, err := event.NewExtendedLocatedMessageArgs("Custom", loc, "{0} did {1}", "help.kw", "Sender", event.ImportanceHigh, ts, "task", "work")
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	return m.WithMetadata(map[string]*string{"a": event.Ptr("1"), "b": nil, "": event.Ptr("")}).WithData(`{"x":1}`)
}

func TestRoundTripMinimal(t *testing.T) {
	m, err := event.NewExtendedType("OnlyType")
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	evs, errs := readAll(t, encodeAll(t, nil, m))
	if len(errs) != 0 || len(evs) != 1 {
		t.Fatalf("evs=%d errs=%v", len(evs), errs)
	}
	got, ok := evs[0].(*event.ExtendedMessage)
	if !ok {
		t.Fatalf("got %T", evs[0])
	}
	sameRecord(t, m.Base(), got.Base())
	sameExtension(t, m.Extension(), got.Extension())
	if got.ExtendedMetadata() != nil {
		t.Fatalf("metadata should be absent")
	}
	if _, ok := got.ExtendedData(); ok {
		t.Fatalf("data should be absent")
	}
}

func TestRoundTripMaximal(t *testing.T) {
	m := maximal(t)
	plain := event.NewLocatedMessageArgs(m.Location, m.Message, m.HelpKeyword, m.SenderName, event.ImportanceLow, m.Timestamp, "x")
	evs, errs := readAll(t, encodeAll(t, nil, m, plain))
	if len(errs) != 0 || len(evs) != 2 {
		t.Fatalf("evs=%d errs=%v", len(evs), errs)
	}
	got := evs[0].(*event.ExtendedMessage)
	sameRecord(t, m.Base(), got.Base())
	sameExtension(t, m.Extension(), got.Extension())
	if got.FormattedMessage() != "task did work" {
		t.Fatalf("formatted %q", got.FormattedMessage())
	}
	gotPlain, ok := evs[1].(*event.Message)
	if !ok {
		t.Fatalf("second record %T", evs[1])
	}
	sameRecord(t, plain.Base(), gotPlain.Base())
}

func TestArgsEncodedAsText(t *testing.T) {
	m := event.NewMessageArgs("{0} of {1}", "", "", event.ImportanceNormal, time.Now(), 3, 4.5)
	evs, _ := readAll(t, encodeAll(t, nil, m))
	got := evs[0].(*event.Message)
	if !reflect.DeepEqual(got.Args, []any{"3", "4.5"}) {
		t.Fatalf("args %#v", got.Args)
	}
	if got.FormattedMessage() != m.FormattedMessage() {
		t.Fatalf("formatted %q vs %q", got.FormattedMessage(), m.FormattedMessage())
	}
}

func TestUnknownKindThenKnown(t *testing.T) {
	known := event.NewMessage("after", "", "", event.ImportanceNormal)
	var b bytes.Buffer
	b.Write(header(CurrentVersion))
	b.Write(frame(event.Kind(200), []byte{9, 9, 9, 9}))
	w := encodeAll(t, nil, known)
	b.Write(w[len(header(CurrentVersion)):])

	evs, errs := readAll(t, b.Bytes())
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(evs) != 2 {
		t.Fatalf("want 2 events, got %d", len(evs))
	}
	u, ok := evs[0].(*event.Unknown)
	if !ok || u.Kind() != 200 || !bytes.Equal(u.Raw, []byte{9, 9, 9, 9}) {
		t.Fatalf("placeholder %#v", evs[0])
	}
	got, ok := evs[1].(*event.Message)
	if !ok || got.Message != "after" {
		t.Fatalf("second %#v", evs[1])
	}
}

func TestTruncatedMetadataCount(t *testing.T) {
	rec := event.NewMessage("m", "", "", event.ImportanceNormal).Base()
	p := appendMessage(nil, rec, nil, CurrentVersion)
	p[len(p)-1] = 1 // extension present
	p = protowire.AppendString(p, "T")
	p = protowire.AppendVarint(p, 1000)

	var b bytes.Buffer
	b.Write(header(CurrentVersion))
	start := int64(b.Len())
	b.Write(frame(event.KindExtendedMessage, p))
	good := encodeAll(t, nil, event.NewMessage("next", "", "", event.ImportanceNormal))
	b.Write(good[len(header(CurrentVersion)):])

	r, err := NewReader(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	_, err = r.Next()
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("want DecodeError, got %v", err)
	}
	if de.Offset != start || de.Kind != event.KindExtendedMessage {
		t.Fatalf("offset=%d kind=%s, want %d", de.Offset, de.Kind, start)
	}
	if !errors.Is(err, errCountOverflow) {
		t.Fatalf("want count overflow, got %v", err)
	}
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if ev.(*event.Message).Message != "next" {
		t.Fatalf("resumed at wrong record")
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("want EOF, got %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("EOF should be sticky, got %v", err)
	}
}

func TestTaskParameterUnrecognised(t *testing.T) {
	m, err := event.NewExtendedMessageArgs("TaskParameter", "Building {0}", "", "", event.ImportanceNormal, time.Now(), "Foo.dll")
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	evs, errs := readAll(t, encodeAll(t, nil, m))
	if len(errs) != 0 || len(evs) != 1 {
		t.Fatalf("evs=%d errs=%v", len(evs), errs)
	}
	got, ok := evs[0].(*event.ExtendedMessage)
	if !ok {
		t.Fatalf("got %T", evs[0])
	}
	if got.ExtendedType() != "TaskParameter" {
		t.Fatalf("type %q", got.ExtendedType())
	}
	if got.Message != "Building {0}" {
		t.Fatalf("template %q", got.Message)
	}
	if got.FormattedMessage() != "Building Foo.dll" {
		t.Fatalf("formatted %q", got.FormattedMessage())
	}
}

type taskParameter struct {
	*event.ExtendedMessage
	Param string
}

func TestRegisteredUpgrader(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterExtension("TaskParameter", func(m *event.ExtendedMessage) (event.Event, error) {
		d, _ := m.ExtendedData()
		return &taskParameter{ExtendedMessage: m, Param: d}, nil
	})
	reg.RegisterExtension("Broken", func(m *event.ExtendedMessage) (event.Event, error) {
		return nil, errors.New("nope")
	})
	a, _ := event.NewExtendedType("TaskParameter")
	b, _ := event.NewExtendedType("Broken")
	c, _ := event.NewExtendedType("Other")
	evs, errs := readAll(t, encodeAll(t, nil, a.WithData("Configuration"), b, c), WithRegistry(reg))
	if len(errs) != 1 {
		t.Fatalf("want one decode error, got %v", errs)
	}
	if len(evs) != 2 {
		t.Fatalf("want 2 events, got %d", len(evs))
	}
	tp, ok := evs[0].(*taskParameter)
	if !ok || tp.Param != "Configuration" {
		t.Fatalf("upgrade %#v", evs[0])
	}
	if _, ok := evs[1].(*event.ExtendedMessage); !ok {
		t.Fatalf("unregistered type should stay generic: %T", evs[1])
	}
	// upgraded events are still writable as extended messages
	if _, err := AppendFrame(nil, reg, tp, CurrentVersion); err != nil {
		t.Fatalf("re-encode upgraded: %v", err)
	}
}

func TestVersion1BackwardCompatible(t *testing.T) {
	m := maximal(t)
	b := encodeAll(t, []Option{WithVersion(Version1)}, m)
	r, err := NewReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	if r.Version() != Version1 {
		t.Fatalf("version %d", r.Version())
	}
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	got := ev.(*event.ExtendedMessage)
	sameRecord(t, m.Base(), got.Base())
	if _, ok := got.ExtendedData(); ok {
		t.Fatalf("v1 has no data field")
	}
	if !reflect.DeepEqual(got.ExtendedMetadata(), m.ExtendedMetadata()) {
		t.Fatalf("metadata lost")
	}
}

func TestNewerVersionTolerated(t *testing.T) {
	m := maximal(t)
	p := appendMessage(nil, m.Base(), func() *event.Extension { e := m.Extension(); return &e }(), CurrentVersion)
	p = append(p, 0xAA, 0xBB) // fields added by a future schema

	var b bytes.Buffer
	b.Write(header(CurrentVersion + 1))
	b.Write(frame(event.KindExtendedMessage, p))
	b.Write(frame(event.KindMessage, []byte{0xFF})) // undecodable under our layout

	r, err := NewReader(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	if !r.Newer() {
		t.Fatalf("reader should flag newer stream")
	}
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	sameExtension(t, m.Extension(), ev.(*event.ExtendedMessage).Extension())
	ev, err = r.Next()
	if err != nil {
		t.Fatalf("degraded record should not error: %v", err)
	}
	if u, ok := ev.(*event.Unknown); !ok || u.Kind() != event.KindMessage {
		t.Fatalf("want Unknown placeholder, got %#v", ev)
	}
}

func TestTrailingBytesRejectedForCurrentVersion(t *testing.T) {
	p := appendMessage(nil, event.NewBlankMessage().Base(), nil, CurrentVersion)
	p = append(p, 1)
	var b bytes.Buffer
	b.Write(header(CurrentVersion))
	b.Write(frame(event.KindMessage, p))
	_, errs := readAll(t, b.Bytes())
	if len(errs) != 1 || !errors.Is(errs[0], errTrailingBytes) {
		t.Fatalf("errs %v", errs)
	}
}

func TestExtensionDroppedOnPlainMessage(t *testing.T) {
	m := maximal(t)
	ext := m.Extension()
	p := appendMessage(nil, m.Base(), &ext, CurrentVersion)
	var b bytes.Buffer
	b.Write(header(CurrentVersion))
	b.Write(frame(event.KindMessage, p))
	evs, errs := readAll(t, b.Bytes())
	if len(errs) != 0 || len(evs) != 1 {
		t.Fatalf("evs=%d errs=%v", len(evs), errs)
	}
	got, ok := evs[0].(*event.Message)
	if !ok {
		t.Fatalf("got %T", evs[0])
	}
	sameRecord(t, m.Base(), got.Base())
}

func TestEmptyExtendedTypeOnWire(t *testing.T) {
	ext := event.Extension{}
	p := appendMessage(nil, event.NewBlankMessage().Base(), &ext, CurrentVersion)
	var b bytes.Buffer
	b.Write(header(CurrentVersion))
	b.Write(frame(event.KindExtendedMessage, p))
	_, errs := readAll(t, b.Bytes())
	if len(errs) != 1 || !errors.Is(errs[0], event.ErrEmptyExtendedType) {
		t.Fatalf("errs %v", errs)
	}
}

func TestExtendedKindWithoutExtension(t *testing.T) {
	p := appendMessage(nil, event.NewBlankMessage().Base(), nil, CurrentVersion)
	var b bytes.Buffer
	b.Write(header(CurrentVersion))
	b.Write(frame(event.KindExtendedMessage, p))
	_, errs := readAll(t, b.Bytes())
	if len(errs) != 1 || !errors.Is(errs[0], errMissingExtension) {
		t.Fatalf("errs %v", errs)
	}
}

func TestUnknownPassThrough(t *testing.T) {
	var b bytes.Buffer
	b.Write(header(CurrentVersion))
	b.Write(frame(event.Kind(77), []byte("opaque")))
	evs, _ := readAll(t, b.Bytes())
	out := encodeAll(t, nil, evs...)
	if !bytes.Equal(out, b.Bytes()) {
		t.Fatalf("pass-through changed bytes:\n%x\n%x", out, b.Bytes())
	}
}

func TestFramingErrorsAreFatal(t *testing.T) {
	if _, err := NewReader(strings.NewReader("NOPE\x02")); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("want ErrBadMagic, got %v", err)
	}
	if _, err := NewReader(strings.NewReader("BL")); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("short header: %v", err)
	}

	full := encodeAll(t, nil, event.NewMessage("cut me", "", "", event.ImportanceNormal))
	r, err := NewReader(bytes.NewReader(full[:len(full)-2]))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	_, err = r.Next()
	if !errors.Is(err, ErrTruncatedStream) {
		t.Fatalf("want ErrTruncatedStream, got %v", err)
	}
	var de *DecodeError
	if errors.As(err, &de) {
		t.Fatalf("framing error must not be a DecodeError")
	}
	if _, err2 := r.Next(); !errors.Is(err2, ErrTruncatedStream) {
		t.Fatalf("fatal error should be sticky, got %v", err2)
	}

	var big bytes.Buffer
	big.Write(header(CurrentVersion))
	big.Write(frame(event.KindMessage, make([]byte, 64)))
	r, _ = NewReader(bytes.NewReader(big.Bytes()), WithMaxRecordBytes(16))
	if _, err := r.Next(); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("want ErrRecordTooLarge, got %v", err)
	}
}

func TestWriterValidation(t *testing.T) {
	if _, err := NewWriter(io.Discard, WithVersion(CurrentVersion+1)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("want ErrUnsupportedVersion, got %v", err)
	}
	w, err := NewWriter(io.Discard)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if err := w.Write(&event.ExtendedMessage{}); !errors.Is(err, event.ErrEmptyExtendedType) {
		t.Fatalf("zero extended message should be rejected, got %v", err)
	}
	if err := w.Write(&event.Unknown{Tag: 5, Raw: make([]byte, DefaultMaxRecordBytes+1)}); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("want ErrRecordTooLarge, got %v", err)
	}
	reg := &Registry{kinds: map[event.Kind]KindCodec{}, upgraders: map[string]Upgrader{}}
	w2, _ := NewWriter(io.Discard, WithRegistry(reg))
	if err := w2.Write(event.NewBlankMessage()); !errors.Is(err, ErrUnregisteredKind) {
		t.Fatalf("want ErrUnregisteredKind, got %v", err)
	}
}

func TestConcurrentWritesStayFramed(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, _ := event.NewExtendedMessageArgs("Concurrent", "item {0}", "", "", event.ImportanceLow, time.Now(), i)
			if err := w.Write(m); err != nil {
				t.Errorf("write: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if w.Offset() != int64(buf.Len()) {
		t.Fatalf("offset %d != %d", w.Offset(), buf.Len())
	}
	evs, errs := readAll(t, buf.Bytes())
	if len(evs) != n || len(errs) != 0 {
		t.Fatalf("evs=%d errs=%v", len(evs), errs)
	}
}

func TestDecodeFrame(t *testing.T) {
	reg := NewRegistry()
	m := maximal(t)
	f, err := AppendFrame(nil, reg, m, CurrentVersion)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	ev, err := DecodeFrame(f, reg, CurrentVersion)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sameExtension(t, m.Extension(), ev.(*event.ExtendedMessage).Extension())
	if _, err := DecodeFrame(f[:len(f)-1], reg, CurrentVersion); !errors.Is(err, ErrTruncatedStream) {
		t.Fatalf("want ErrTruncatedStream, got %v", err)
	}
}

func TestTimestampsOutsideNanosecondRange(t *testing.T) {
	for _, ts := range []time.Time{
		{},
		time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2300, 1, 1, 12, 30, 0, 999999999, time.UTC),
		time.Date(1969, 12, 31, 23, 59, 59, 1, time.UTC),
	} {
		m, err := event.NewExtendedMessageAt("Clock", "tick", "", "", event.ImportanceNormal, ts)
		if err != nil {
			t.Fatalf("construct: %v", err)
		}
		evs, errs := readAll(t, encodeAll(t, nil, m))
		if len(errs) != 0 || len(evs) != 1 {
			t.Fatalf("%v: evs=%d errs=%v", ts, len(evs), errs)
		}
		got := evs[0].(*event.ExtendedMessage).Timestamp
		if !got.Equal(ts) {
			t.Fatalf("timestamp: want %v got %v", ts, got)
		}
	}
}

func TestTimestampNanosOutOfRange(t *testing.T) {
	p := protowire.AppendVarint(nil, 0)
	p = append(p, byte(event.ImportanceNormal))
	p = protowire.AppendVarint(p, protowire.EncodeZigZag(0))
	p = protowire.AppendVarint(p, uint64(time.Second))
	p = appendBool(p, false)
	var b bytes.Buffer
	b.Write(header(CurrentVersion))
	b.Write(frame(event.KindMessage, p))
	_, errs := readAll(t, b.Bytes())
	if len(errs) != 1 || !errors.Is(errs[0], errBadNanos) {
		t.Fatalf("errs %v", errs)
	}
}

func TestOpaqueKnownKindRefusedOnWrite(t *testing.T) {
	var b bytes.Buffer
	b.Write(header(CurrentVersion + 1))
	b.Write(frame(event.KindMessage, []byte{0xFF}))
	evs, errs := readAll(t, b.Bytes())
	if len(errs) != 0 || len(evs) != 1 {
		t.Fatalf("evs=%d errs=%v", len(evs), errs)
	}
	u, ok := evs[0].(*event.Unknown)
	if !ok || u.Tag != event.KindMessage {
		t.Fatalf("want Unknown placeholder, got %#v", evs[0])
	}

	var out bytes.Buffer
	w, err := NewWriter(&out)
	if err != nil {
		t.Fatal(err)
	}
	before := w.Offset()
	if err := w.Write(u); !errors.Is(err, ErrOpaqueKnownKind) {
		t.Fatalf("want ErrOpaqueKnownKind, got %v", err)
	}
	if w.Offset() != before {
		t.Fatalf("refused record reached the stream")
	}
	if err := w.Write(event.NewMessage("still usable", "", "", event.ImportanceLow)); err != nil {
		t.Fatalf("writer poisoned: %v", err)
	}

	stored := AppendOpaqueFrame(nil, u)
	ev, err := DecodeFrame(stored, NewRegistry(), CurrentVersion+1)
	if err != nil {
		t.Fatalf("decode stored frame: %v", err)
	}
	if back, ok := ev.(*event.Unknown); !ok || !bytes.Equal(back.Raw, u.Raw) {
		t.Fatalf("stored frame = %#v", ev)
	}
}
