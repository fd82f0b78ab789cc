package event

import "time"

// Location is the optional diagnostic location of a record. Zero numeric
// fields mean "not applicable".
type Location struct {
	Subcategory string
	Code        string
	File        string
	Line        int
	Column      int
	EndLine     int
	EndColumn   int
}

// IsZero reports whether no location detail is set.
func (l Location) IsZero() bool { return l == Location{} }

// HasPosition reports whether any of the line/column fields is set.
func (l Location) HasPosition() bool {
	return l.Line != 0 || l.Column != 0 || l.EndLine != 0 || l.EndColumn != 0
}

// Record holds the fields shared by every message-like event. Empty strings
// mean the field is absent. When Args is non-empty Message is a template;
// use FormattedMessage to obtain the final text.
type Record struct {
	Message     string
	HelpKeyword string
	SenderName  string
	Importance  Importance
	Location    Location
	Timestamp   time.Time
	Args        []any
}

// Base returns a copy of the record.
func (r Record) Base() Record { return r }

// FormattedMessage applies Args to the Message template using Format.
func (r Record) FormattedMessage() string { return r.FormattedMessageWith(Format) }

// FormattedMessageWith applies Args to the Message template using f.
func (r Record) FormattedMessageWith(f Formatter) string {
	if len(r.Args) == 0 || f == nil {
		return r.Message
	}
	return f(r.Message, r.Args)
}

// Now is the clock used for default timestamps.
var Now = time.Now

// stamp normalizes a timestamp so it survives a trip through the codec.
func stamp(ts time.Time) time.Time { return ts.Round(0).UTC() }

func newRecord(loc Location, message, helpKeyword, senderName string, importance Importance, ts time.Time, args []any) Record {
	r := Record{
		Message:     message,
		HelpKeyword: helpKeyword,
		SenderName:  senderName,
		Importance:  importance,
		Location:    loc,
		Timestamp:   stamp(ts),
	}
	if len(args) > 0 {
		r.Args = append([]any(nil), args...)
	}
	return r
}

// Message is a plain message event.
type Message struct {
	Record
}

// Kind returns KindMessage.
func (*Message) Kind() Kind { return KindMessage }

// NewBlankMessage returns a message with every field defaulted: Normal
// importance and the current time.
func NewBlankMessage() *Message {
	return NewImportanceMessage(ImportanceNormal)
}

// NewImportanceMessage returns a message carrying only an importance.
func NewImportanceMessage(importance Importance) *Message {
	return &Message{newRecord(Location{}, "", "", "", importance, Now(), nil)}
}

// NewMessage builds a message stamped with the current time.
func NewMessage(message, helpKeyword, senderName string, importance Importance) *Message {
	return NewMessageAt(message, helpKeyword, senderName, importance, Now())
}

// NewMessageAt builds a message with an explicit timestamp.
func NewMessageAt(message, helpKeyword, senderName string, importance Importance, ts time.Time) *Message {
	return NewMessageArgs(message, helpKeyword, senderName, importance, ts)
}

// NewMessageArgs builds a message whose text is a template for args.
func NewMessageArgs(message, helpKeyword, senderName string, importance Importance, ts time.Time, args ...any) *Message {
	return &Message{newRecord(Location{}, message, helpKeyword, senderName, importance, ts, args)}
}

// NewLocatedMessage builds a message with diagnostic location detail.
func NewLocatedMessage(loc Location, message, helpKeyword, senderName string, importance Importance) *Message {
	return NewLocatedMessageAt(loc, message, helpKeyword, senderName, importance, Now())
}

// NewLocatedMessageAt builds a located message with an explicit timestamp.
func NewLocatedMessageAt(loc Location, message, helpKeyword, senderName string, importance Importance, ts time.Time) *Message {
	return NewLocatedMessageArgs(loc, message, helpKeyword, senderName, importance, ts)
}

// NewLocatedMessageArgs builds a located message whose text is a template for args.
func NewLocatedMessageArgs(loc Location, message, helpKeyword, senderName string, importance Importance, ts time.Time, args ...any) *Message {
	return &Message{newRecord(loc, message, helpKeyword, senderName, importance, ts, args)}
}
