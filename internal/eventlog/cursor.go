package eventlog

import (
	"encoding/binary"
	"errors"

	pebblestore "github.com/rzbill/buildlog/internal/storage/pebble"
)

// CommitCursor records tok for group. Commits never move a cursor backwards.
func (l *Log) CommitCursor(group string, tok Token) error {
	key := KeyCursor(l.project, l.build, group)
	cur, err := l.db.Get(key)
	if err == nil && len(cur) >= 8 && tok.Seq() <= binary.BigEndian.Uint64(cur[:8]) {
		return nil
	}
	if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
		return err
	}
	return l.db.Set(key, tok[:])
}

// GetCursor returns the committed token of group.
func (l *Log) GetCursor(group string) (Token, bool) {
	cur, err := l.db.Get(KeyCursor(l.project, l.build, group))
	if err != nil || len(cur) < 8 {
		return Token{}, false
	}
	var t Token
	copy(t[:], cur[:8])
	return t, true
}
