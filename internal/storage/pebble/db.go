package pebblestore

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = pebble.ErrNotFound

// SyncPolicy selects when committed writes reach the WAL on disk.
type SyncPolicy int

const (
	// SyncGrouped lets Pebble coalesce WAL syncs within SyncInterval.
	SyncGrouped SyncPolicy = iota
	// SyncEveryWrite syncs the WAL on every commit.
	SyncEveryWrite
	// SyncNone leaves syncing entirely to Pebble.
	SyncNone
)

// ParseSyncPolicy maps a config string to a SyncPolicy. Empty means grouped.
func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch s {
	case "", "grouped", "interval":
		return SyncGrouped, nil
	case "always":
		return SyncEveryWrite, nil
	case "never", "none":
		return SyncNone, nil
	}
	return SyncGrouped, errors.New("pebble: unknown sync policy " + s)
}

// Options configures Open.
type Options struct {
	Dir          string
	Sync         SyncPolicy
	SyncInterval time.Duration
	// Tuning overrides the Pebble options when non-nil.
	Tuning *pebble.Options
	// Observer receives read and commit observations. Optional.
	Observer Observer
}

// Observer is notified after storage operations complete.
type Observer interface {
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveCommit(elapsed time.Duration, ops uint32, bytes int)
}

type nopObserver struct{}

func (nopObserver) ObserveRead(time.Duration, int)           {}
func (nopObserver) ObserveCommit(time.Duration, uint32, int) {}

// DB is a Pebble handle carrying the configured sync policy.
type DB struct {
	inner *pebble.DB
	sync  *pebble.WriteOptions
	obs   Observer
}

// Open creates or opens the database in opts.Dir.
func Open(opts Options) (*DB, error) {
	if opts.Dir == "" {
		return nil, errors.New("pebble: Options.Dir is required")
	}
	po := opts.Tuning
	if po == nil {
		po = &pebble.Options{}
	}

	wo := pebble.NoSync
	switch opts.Sync {
	case SyncEveryWrite:
		wo = pebble.Sync
	case SyncGrouped:
		interval := opts.SyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
		wo = pebble.Sync
	}

	inner, err := pebble.Open(opts.Dir, po)
	if err != nil {
		return nil, err
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &DB{inner: inner, sync: wo, obs: obs}, nil
}

// Close releases the database. Safe on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewBatch starts an atomic multi-key update.
func (db *DB) NewBatch() *pebble.Batch { return db.inner.NewBatch() }

// NewSnapshot returns a consistent read view. Callers close it.
func (db *DB) NewSnapshot() *pebble.Snapshot { return db.inner.NewSnapshot() }

// Commit applies b using the configured sync policy.
func (db *DB) Commit(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	ops, size := b.Count(), b.Len()
	err := b.Commit(db.sync)
	db.obs.ObserveCommit(time.Since(start), ops, size)
	return err
}

// Set writes a single key.
func (db *DB) Set(key, value []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return db.Commit(context.Background(), b)
}

// Delete removes a single key.
func (db *DB) Delete(key []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return db.Commit(context.Background(), b)
}

// Get returns a copy of the value stored under key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := append([]byte(nil), val...)
	db.obs.ObserveRead(time.Since(start), len(out))
	return out, nil
}

// NewIter opens a raw iterator.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}

// ScanPrefix calls fn for every key starting with prefix, in key order.
// Returning false from fn stops the scan.
func (db *DB) ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	it, err := db.inner.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer it.Close()
	for ok := it.First(); ok; ok = it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}

// CompactRange asks Pebble to compact [start, end).
func (db *DB) CompactRange(start, end []byte) error {
	return db.inner.Compact(start, end, true)
}

// PrefixEnd returns the smallest key greater than every key with prefix p,
// or nil when p is all 0xff bytes.
func PrefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
