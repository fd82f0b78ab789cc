package event

import (
	"encoding/base64"
	"time"
)

// View is a flat, serializable projection of an event used for display,
// JSON output and filtering. Args are rendered into Message.
type View struct {
	Kind        string            `json:"kind"`
	Tag         uint8             `json:"tag"`
	Importance  string            `json:"importance,omitempty"`
	Level       int               `json:"level"`
	Message     string            `json:"message,omitempty"`
	Template    string            `json:"template,omitempty"`
	HelpKeyword string            `json:"helpKeyword,omitempty"`
	SenderName  string            `json:"senderName,omitempty"`
	Subcategory string            `json:"subcategory,omitempty"`
	Code        string            `json:"code,omitempty"`
	File        string            `json:"file,omitempty"`
	Line        int               `json:"line,omitempty"`
	Column      int               `json:"column,omitempty"`
	EndLine     int               `json:"endLine,omitempty"`
	EndColumn   int               `json:"endColumn,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Extended    bool              `json:"extended,omitempty"`
	Type        string            `json:"extendedType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Data        string            `json:"data,omitempty"`
	HasData     bool              `json:"hasData,omitempty"`
	Raw         string            `json:"raw,omitempty"`
}

// Describe projects ev into a View. Nil metadata values become empty
// strings. Unknown events keep their payload as base64 in Raw.
func Describe(ev Event) View {
	v := View{Kind: ev.Kind().String(), Tag: uint8(ev.Kind())}
	if u, ok := ev.(*Unknown); ok {
		v.Raw = base64.StdEncoding.EncodeToString(u.Raw)
		return v
	}
	if r, ok := ev.(Recorded); ok {
		rec := r.Base()
		v.Importance = rec.Importance.String()
		v.Level = int(rec.Importance)
		v.Message = rec.FormattedMessage()
		if len(rec.Args) > 0 {
			v.Template = rec.Message
		}
		v.HelpKeyword = rec.HelpKeyword
		v.SenderName = rec.SenderName
		loc := rec.Location
		v.Subcategory, v.Code, v.File = loc.Subcategory, loc.Code, loc.File
		v.Line, v.Column, v.EndLine, v.EndColumn = loc.Line, loc.Column, loc.EndLine, loc.EndColumn
		v.Timestamp = rec.Timestamp
	}
	if x, ok := ev.(Extensible); ok {
		ext := x.Extension()
		v.Extended = true
		v.Type = ext.Type
		if len(ext.Metadata) > 0 {
			v.Metadata = make(map[string]string, len(ext.Metadata))
			for k, p := range ext.Metadata {
				if p != nil {
					v.Metadata[k] = *p
				} else {
					v.Metadata[k] = ""
				}
			}
		}
		if ext.Data != nil {
			v.Data, v.HasData = *ext.Data, true
		}
	}
	return v
}
