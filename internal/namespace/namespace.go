// Package namespace keeps per-project metadata: creation time, record size
// limit and retention.
package namespace

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	pebblestore "github.com/rzbill/buildlog/internal/storage/pebble"
)

// ErrInvalidName is returned for project names outside [A-Za-z0-9._-]{1,64}.
var ErrInvalidName = errors.New("namespace: invalid project name")

// ErrNotFound is returned by Get for unknown projects.
var ErrNotFound = errors.New("namespace: project not found")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Meta describes a project.
type Meta struct {
	Name           string `json:"name"`
	CreatedAtMs    int64  `json:"createdAtMs"`
	MaxRecordBytes int    `json:"maxRecordBytes"`
	RetentionMs    int64  `json:"retentionMs"`
}

// Retention returns the configured retention, zero meaning keep forever.
func (m Meta) Retention() time.Duration {
	return time.Duration(m.RetentionMs) * time.Millisecond
}

// Defaults returns limits applied to new projects.
func Defaults() Meta {
	return Meta{MaxRecordBytes: 1 << 20}
}

var metaPrefix = []byte("nsmeta/")

func metaKey(name string) []byte {
	k := make([]byte, 0, len(metaPrefix)+len(name))
	k = append(k, metaPrefix...)
	return append(k, name...)
}

// ValidateName reports whether name can be used as a project key.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Ensure creates the project with defaults if it does not exist and returns
// the stored metadata. Existing projects are returned unchanged.
func Ensure(db *pebblestore.DB, name string, defaults Meta) (Meta, error) {
	if err := ValidateName(name); err != nil {
		return Meta{}, err
	}
	m, err := Get(db, name)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Meta{}, err
	}
	m = defaults
	m.Name = name
	m.CreatedAtMs = time.Now().UnixMilli()
	b, err := json.Marshal(m)
	if err != nil {
		return Meta{}, err
	}
	if err := db.Set(metaKey(name), b); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Get loads a project's metadata.
func Get(db *pebblestore.DB, name string) (Meta, error) {
	b, err := db.Get(metaKey(name))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("namespace: decode %s: %w", name, err)
	}
	return m, nil
}

// List returns every project in name order.
func List(db *pebblestore.DB) ([]Meta, error) {
	var (
		out  []Meta
		derr error
	)
	err := db.ScanPrefix(metaPrefix, func(_, v []byte) bool {
		var m Meta
		if derr = json.Unmarshal(v, &m); derr != nil {
			return false
		}
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, derr
}
