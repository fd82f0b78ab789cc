package event

import "strconv"

// Kind tags the concrete record shape that follows in a binary stream.
type Kind uint8

const (
	// KindMessage is a plain message record.
	KindMessage Kind = 1
	// KindExtendedMessage is a message record carrying extension data.
	KindExtendedMessage Kind = 2
)

// String returns a readable name for known kinds and the numeric tag otherwise.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "Message"
	case KindExtendedMessage:
		return "ExtendedMessage"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Event is one build event. Consumers branch on the concrete type or Kind.
type Event interface {
	Kind() Kind
}

// Recorded is implemented by events built on a base Record.
type Recorded interface {
	Event
	Base() Record
}

// Unknown is the placeholder for a record kind the reader has no decoder for.
// Raw holds the kind-specific payload exactly as read so the record can be
// written back unchanged.
type Unknown struct {
	Tag Kind
	Raw []byte
}

// Kind returns the tag read from the stream.
func (u *Unknown) Kind() Kind { return u.Tag }
