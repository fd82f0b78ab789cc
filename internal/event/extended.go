package event

import (
	"errors"
	"time"
)

// ErrEmptyExtendedType is returned when an extended record is built without a type.
var ErrEmptyExtendedType = errors.New("event: extended type is required")

// UndefinedExtendedType names the type of an extended record whose wire data
// has not been read yet. A successfully decoded record never carries it
// unless the producer wrote it.
const UndefinedExtendedType = "undefined"

// Extension is the payload a record may carry in addition to its base fields.
// Type identifies the payload kind; Metadata values may be nil; Data is an
// opaque string whose meaning is agreed between producer and consumer.
type Extension struct {
	Type     string
	Metadata map[string]*string
	Data     *string
}

// Validate reports ErrEmptyExtendedType when Type is empty.
func (e Extension) Validate() error {
	if e.Type == "" {
		return ErrEmptyExtendedType
	}
	return nil
}

func (e Extension) clone() Extension {
	out := Extension{Type: e.Type}
	if len(e.Metadata) > 0 {
		out.Metadata = make(map[string]*string, len(e.Metadata))
		for k, v := range e.Metadata {
			if v != nil {
				s := *v
				v = &s
			}
			out.Metadata[k] = v
		}
	}
	if e.Data != nil {
		s := *e.Data
		out.Data = &s
	}
	return out
}

// Extensible is the capability of carrying an Extension.
type Extensible interface {
	Event
	Extension() Extension
}

// ExtendedMessage is a message event carrying an Extension. Build it with one
// of the NewExtended* constructors; the zero value is not valid.
type ExtendedMessage struct {
	Record
	ext Extension
}

// Kind returns KindExtendedMessage.
func (*ExtendedMessage) Kind() Kind { return KindExtendedMessage }

// Extension returns a copy of the attached extension.
func (m *ExtendedMessage) Extension() Extension { return m.ext.clone() }

// ExtendedType returns the payload type tag.
func (m *ExtendedMessage) ExtendedType() string { return m.ext.Type }

// ExtendedMetadata returns a copy of the metadata, or nil when none was set.
func (m *ExtendedMessage) ExtendedMetadata() map[string]*string { return m.ext.clone().Metadata }

// ExtendedData returns the free-form payload and whether it is present.
func (m *ExtendedMessage) ExtendedData() (string, bool) {
	if m.ext.Data == nil {
		return "", false
	}
	return *m.ext.Data, true
}

// WithMetadata returns a copy of m carrying md. The map is copied.
func (m *ExtendedMessage) WithMetadata(md map[string]*string) *ExtendedMessage {
	ext := m.ext
	ext.Metadata = md
	return &ExtendedMessage{Record: m.Record, ext: ext.clone()}
}

// WithData returns a copy of m carrying data.
func (m *ExtendedMessage) WithData(data string) *ExtendedMessage {
	ext := m.ext.clone()
	ext.Data = &data
	return &ExtendedMessage{Record: m.Record, ext: ext}
}

// ExtendedFromWire rebuilds an extended message from fields a codec has just
// decoded, validating the extension and copying it. It is meant for codecs
// only; producers use the NewExtended constructors and WithMetadata/WithData.
func ExtendedFromWire(rec Record, ext Extension) (*ExtendedMessage, error) {
	if err := ext.Validate(); err != nil {
		return nil, err
	}
	return &ExtendedMessage{Record: rec, ext: ext.clone()}, nil
}

func newExtended(typ string, rec Record) (*ExtendedMessage, error) {
	if typ == "" {
		return nil, ErrEmptyExtendedType
	}
	return &ExtendedMessage{Record: rec, ext: Extension{Type: typ}}, nil
}

// NewExtendedType builds an extended message carrying only its type.
func NewExtendedType(typ string) (*ExtendedMessage, error) {
	return newExtended(typ, NewBlankMessage().Record)
}

// NewExtendedMessage is NewMessage with an extension type.
func NewExtendedMessage(typ, message, helpKeyword, senderName string, importance Importance) (*ExtendedMessage, error) {
	return newExtended(typ, NewMessage(message, helpKeyword, senderName, importance).Record)
}

// NewExtendedMessageAt is NewMessageAt with an extension type.
func NewExtendedMessageAt(typ, message, helpKeyword, senderName string, importance Importance, ts time.Time) (*ExtendedMessage, error) {
	return newExtended(typ, NewMessageAt(message, helpKeyword, senderName, importance, ts).Record)
}

// NewExtendedMessageArgs is NewMessageArgs with an extension type.
func NewExtendedMessageArgs(typ, message, helpKeyword, senderName string, importance Importance, ts time.Time, args ...any) (*ExtendedMessage, error) {
	return newExtended(typ, NewMessageArgs(message, helpKeyword, senderName, importance, ts, args...).Record)
}

// NewExtendedLocatedMessage is NewLocatedMessage with an extension type.
func NewExtendedLocatedMessage(typ string, loc Location, message, helpKeyword, senderName string, importance Importance) (*ExtendedMessage, error) {
	return newExtended(typ, NewLocatedMessage(loc, message, helpKeyword, senderName, importance).Record)
}

// NewExtendedLocatedMessageAt is NewLocatedMessageAt with an extension type.
func NewExtendedLocatedMessageAt(typ string, loc Location, message, helpKeyword, senderName string, importance Importance, ts time.Time) (*ExtendedMessage, error) {
	return newExtended(typ, NewLocatedMessageAt(loc, message, helpKeyword, senderName, importance, ts).Record)
}

// NewExtendedLocatedMessageArgs is NewLocatedMessageArgs with an extension type.
func NewExtendedLocatedMessageArgs(typ string, loc Location, message, helpKeyword, senderName string, importance Importance, ts time.Time, args ...any) (*ExtendedMessage, error) {
	return newExtended(typ, NewLocatedMessageArgs(loc, message, helpKeyword, senderName, importance, ts, args...).Record)
}

// Ptr returns a pointer to s, for metadata values.
func Ptr(s string) *string { return &s }
