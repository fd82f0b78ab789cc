package eventlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pebblestore "github.com/rzbill/buildlog/internal/storage/pebble"
	"github.com/rzbill/buildlog/pkg/id"
)

// ErrNotFound is returned when a build has no stored info.
var ErrNotFound = errors.New("eventlog: build not found")

// AppendRecord is one entry to append.
type AppendRecord struct {
	Header  []byte
	Payload []byte
}

// BuildInfo is the stored summary of an ingested build.
type BuildInfo struct {
	ID            string `json:"id"`
	Project       string `json:"project"`
	Source        string `json:"source,omitempty"`
	SchemaVersion uint64 `json:"schemaVersion"`
	CreatedAtMs   int64  `json:"createdAtMs"`
	Records       int    `json:"records"`
	Unknown       int    `json:"unknown"`
	Malformed     int    `json:"malformed"`
	// Error is set when ingest stopped early.
	Error string `json:"error,omitempty"`
}

// Log is the append-only entry log of one build.
type Log struct {
	db      *pebblestore.DB
	project string
	build   id.ID

	mu      sync.Mutex
	lastSeq uint64
	notify  chan struct{}
	hook    TrimHook
}

// OpenLog loads the last sequence of a build, if any, and returns its Log.
func OpenLog(db *pebblestore.DB, project string, build id.ID) (*Log, error) {
	l := &Log{db: db, project: project, build: build, notify: make(chan struct{}), hook: nopTrimHook{}}
	meta, err := db.Get(KeyLogMeta(project, build))
	switch {
	case err == nil && len(meta) >= 8:
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, fmt.Errorf("eventlog: load meta: %w", err)
	}
	return l, nil
}

// Project returns the owning project name.
func (l *Log) Project() string { return l.project }

// Build returns the build identifier.
func (l *Log) Build() id.ID { return l.build }

// LastSeq returns the highest assigned sequence.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// SetTrimHook installs h to observe trimmed ranges. A nil h disables it.
func (l *Log) SetTrimHook(h TrimHook) {
	if h == nil {
		h = nopTrimHook{}
	}
	l.mu.Lock()
	l.hook = h
	l.mu.Unlock()
}

// Append writes recs as one atomic batch and returns their sequences.
func (l *Log) Append(ctx context.Context, recs []AppendRecord) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	seqs := make([]uint64, len(recs))
	next := l.lastSeq
	for i, r := range recs {
		next++
		if err := b.Set(KeyLogEntry(l.project, l.build, next), EncodeRecord(r.Header, r.Payload), nil); err != nil {
			return nil, err
		}
		seqs[i] = next
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], next)
	if err := b.Set(KeyLogMeta(l.project, l.build), meta[:], nil); err != nil {
		return nil, err
	}
	if err := l.db.Commit(ctx, b); err != nil {
		return nil, err
	}
	l.lastSeq = next
	close(l.notify)
	l.notify = make(chan struct{})
	return seqs, nil
}

// PutInfo stores the build summary in the project's build index.
func (l *Log) PutInfo(info BuildInfo) error {
	info.ID = l.build.String()
	info.Project = l.project
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return l.db.Set(KeyBuildIndex(l.project, l.build), b)
}

// Info loads the build summary.
func (l *Log) Info() (BuildInfo, error) {
	return GetInfo(l.db, l.project, l.build)
}

// GetInfo loads the summary of a build without opening its log.
func GetInfo(db *pebblestore.DB, project string, build id.ID) (BuildInfo, error) {
	b, err := db.Get(KeyBuildIndex(project, build))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return BuildInfo{}, fmt.Errorf("%w: %s/%s", ErrNotFound, project, build)
	}
	if err != nil {
		return BuildInfo{}, err
	}
	var info BuildInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return BuildInfo{}, fmt.Errorf("eventlog: decode build info: %w", err)
	}
	return info, nil
}

// ListBuilds returns the summaries of a project's builds, oldest first.
func ListBuilds(db *pebblestore.DB, project string) ([]BuildInfo, error) {
	var (
		out  []BuildInfo
		derr error
	)
	err := db.ScanPrefix(KeyBuildIndexPrefix(project), func(_, v []byte) bool {
		var info BuildInfo
		if derr = json.Unmarshal(v, &info); derr != nil {
			return false
		}
		out = append(out, info)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, derr
}
