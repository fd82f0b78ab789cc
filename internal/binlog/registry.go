package binlog

import (
	"fmt"
	"sync"

	"github.com/rzbill/buildlog/internal/event"
)

// KindCodec encodes and decodes the payload of one record kind. version is
// the schema version of the stream being written or read.
type KindCodec struct {
	Encode func(dst []byte, ev event.Event, version uint64) ([]byte, error)
	Decode func(payload []byte, version uint64) (event.Event, error)
}

// Upgrader turns a generic extended message into a specialised event for
// one extended type.
type Upgrader func(m *event.ExtendedMessage) (event.Event, error)

// Registry maps kind tags to codecs and extended types to upgraders. It is
// safe for concurrent use; registration normally happens before any stream
// is opened.
type Registry struct {
	mu        sync.RWMutex
	kinds     map[event.Kind]KindCodec
	upgraders map[string]Upgrader
}

// NewRegistry returns a registry with the message kinds registered.
func NewRegistry() *Registry {
	r := &Registry{
		kinds:     make(map[event.Kind]KindCodec),
		upgraders: make(map[string]Upgrader),
	}
	r.Register(event.KindMessage, KindCodec{Encode: encodeMessageKind, Decode: decodeMessageKind})
	r.Register(event.KindExtendedMessage, KindCodec{Encode: encodeExtendedKind, Decode: decodeExtendedKind})
	return r
}

// Register associates a kind tag with a codec, replacing any previous one.
func (r *Registry) Register(kind event.Kind, c KindCodec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = c
}

// RegisterExtension associates an extended type with an upgrader. Extended
// messages of types without an upgrader are returned as *event.ExtendedMessage.
func (r *Registry) RegisterExtension(typ string, u Upgrader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upgraders[typ] = u
}

// Knows reports whether kind has a registered codec.
func (r *Registry) Knows(kind event.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[kind]
	return ok
}

func (r *Registry) codec(kind event.Kind) (KindCodec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.kinds[kind]
	return c, ok
}

func (r *Registry) upgrader(typ string) (Upgrader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.upgraders[typ]
	return u, ok
}

// encode appends the payload for ev. Unknown placeholders of unregistered
// kinds are passed through; those of registered kinds are refused.
func (r *Registry) encode(dst []byte, ev event.Event, version uint64) ([]byte, error) {
	if u, ok := ev.(*event.Unknown); ok {
		if r.Knows(u.Tag) {
			return nil, fmt.Errorf("%w: %s", ErrOpaqueKnownKind, u.Tag)
		}
		return append(dst, u.Raw...), nil
	}
	c, ok := r.codec(ev.Kind())
	if !ok || c.Encode == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredKind, ev.Kind())
	}
	return c.Encode(dst, ev, version)
}

// decode resolves kind to a concrete event. Unregistered kinds become
// *event.Unknown holding a copy of the payload.
func (r *Registry) decode(kind event.Kind, payload []byte, version uint64) (event.Event, error) {
	c, ok := r.codec(kind)
	if !ok || c.Decode == nil {
		return &event.Unknown{Tag: kind, Raw: append([]byte(nil), payload...)}, nil
	}
	ev, err := c.Decode(payload, version)
	if err != nil {
		return nil, err
	}
	m, ok := ev.(*event.ExtendedMessage)
	if !ok {
		return ev, nil
	}
	up, ok := r.upgrader(m.ExtendedType())
	if !ok {
		return m, nil
	}
	out, err := up(m)
	if err != nil {
		return nil, fmt.Errorf("upgrade %q: %w", m.ExtendedType(), err)
	}
	return out, nil
}

func encodeMessageKind(dst []byte, ev event.Event, version uint64) ([]byte, error) {
	m, ok := ev.(*event.Message)
	if !ok {
		return nil, fmt.Errorf("binlog: %T is not a message", ev)
	}
	return appendMessage(dst, m.Record, nil, version), nil
}

// decodeMessageKind drops extension data: a plain message has no place for it.
func decodeMessageKind(payload []byte, version uint64) (event.Event, error) {
	rec, _, err := decodeMessage(payload, version)
	if err != nil {
		return nil, err
	}
	return &event.Message{Record: rec}, nil
}

func encodeExtendedKind(dst []byte, ev event.Event, version uint64) ([]byte, error) {
	x, ok := ev.(event.Extensible)
	if !ok {
		return nil, fmt.Errorf("binlog: %T does not carry an extension", ev)
	}
	rb, ok := ev.(event.Recorded)
	if !ok {
		return nil, fmt.Errorf("binlog: %T has no base record", ev)
	}
	ext := x.Extension()
	if err := ext.Validate(); err != nil {
		return nil, err
	}
	return appendMessage(dst, rb.Base(), &ext, version), nil
}

func decodeExtendedKind(payload []byte, version uint64) (event.Event, error) {
	rec, ext, err := decodeMessage(payload, version)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, errMissingExtension
	}
	return event.ExtendedFromWire(rec, *ext)
}
