// Package eventlog stores encoded build events in Pebble.
//
// Every ingested build gets its own append-only log, addressed by project
// name and build id. Entries carry a small header (timestamp and event kind)
// next to the encoded event frame, checksummed with crc32c:
//
//	l, _ := eventlog.OpenLog(db, "compiler", buildID)
//	seqs, _ := l.Append(ctx, []eventlog.AppendRecord{{Header: h, Payload: frame}})
//	items, next, _ := l.Read(eventlog.ReadOptions{Limit: 100})
//
// Readers may resume with the returned Token, commit it under a group name
// with CommitCursor, or block for new entries with WaitForAppend. Retention
// is applied with TrimOlderThan and TrimToMaxBytes; a TrimHook observes what
// each trim batch removed.
package eventlog
