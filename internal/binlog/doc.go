// Package binlog encodes build events to a compact binary stream and decodes
// them back, tolerating schema skew between the writer and the reader.
//
// # Stream layout
//
//	header: "BLOG" | uvarint schemaVersion
//	record: kind(u8) | uvarint payloadLen | payload
//
// The payload layout is owned by the decoder registered for the kind. Message
// and ExtendedMessage share one layout:
//
//	uvarint presence | importance(u8) | zigzag timestamp (unix ns)
//	[message] [helpKeyword] [senderName] [subcategory] [code] [file]
//	[line col endLine endCol] [argc args...]
//	extPresent(u8) [type | uvarint n {key | hasValue(u8) [value]} | hasData(u8) [data]]
//
// Strings are length-prefixed. hasData exists from schema version 2 on.
//
// # Compatibility
//
// A reader never aborts a stream because of one record:
//   - an unregistered kind yields *event.Unknown carrying the raw payload;
//   - a malformed payload yields a *DecodeError and the reader is positioned
//     at the next record;
//   - when the stream header announces a newer schema than the reader knows,
//     trailing payload bytes are ignored and records that still fail to decode
//     degrade to *event.Unknown.
//
// Only framing problems (bad magic, a payload running past the end of the
// stream, an oversized length) are fatal.
//
// Usage:
//
//	w, _ := binlog.NewWriter(f)
//	ev, _ := event.NewExtendedMessage("TaskParameter", "Building {0}", "", "", event.ImportanceNormal)
//	_ = w.Write(ev)
//
//	r, _ := binlog.NewReader(f)
//	for {
//	    ev, err := r.Next()
//	    if errors.Is(err, io.EOF) { break }
//	    var de *binlog.DecodeError
//	    if errors.As(err, &de) { continue }
//	    if err != nil { return err }
//	    handle(ev)
//	}
package binlog
