package pebblestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = pebble.ErrNotFound

// IsNotFound reports whether err is a missing-key error.
func IsNotFound(err error) bool { return errors.Is(err, pebble.ErrNotFound) }

// FsyncMode decides when committed writes reach stable storage.
type FsyncMode int

const (
	// FsyncModeUnspecified syncs every commit, grouping concurrent commits
	// into one WAL sync within a short window.
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every commit. A returned commit is
	// durable.
	FsyncModeAlways
	// FsyncModeInterval syncs every commit but lets Pebble coalesce WAL syncs
	// of concurrent commits within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to Pebble. A crash can lose acknowledged
	// writes.
	FsyncModeNever
)

const defaultGroupCommit = 5 * time.Millisecond

// ParseFsyncMode maps always|interval|never (any case) to a mode.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch strings.ToLower(s) {
	case "always":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	}
	return FsyncModeUnspecified, fmt.Errorf("fsync must be always, interval or never; got %q", s)
}

func (m FsyncMode) String() string {
	switch m {
	case FsyncModeAlways:
		return "always"
	case FsyncModeInterval:
		return "interval"
	case FsyncModeNever:
		return "never"
	}
	return "unspecified"
}

// Options configures Open.
type Options struct {
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning. Open fills in the WAL sync
	// interval and logger.
	PebbleOptions *pebble.Options
	Metrics       MetricsHook
	// Logger receives Pebble's internal messages.
	Logger logpkg.Logger
}

// MetricsHook observes storage latencies and sizes.
type MetricsHook interface {
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveWrite(time.Duration, int)            {}
func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

// DB is a Pebble database with a fixed fsync policy. Both the transaction
// queue and the object store sit on one of these.
type DB struct {
	inner   *pebble.DB
	sync    *pebble.WriteOptions
	metrics MetricsHook
}

// Open creates or opens the database in opts.DataDir.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if window := groupCommitWindow(opts.Fsync, opts.FsyncInterval); window > 0 {
		po.WALMinSyncInterval = func() time.Duration { return window }
	}
	if opts.Logger != nil && po.Logger == nil {
		po.Logger = pebbleLogger{l: opts.Logger.With(logpkg.Component("pebble"))}
	}
	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", opts.DataDir, err)
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	// the sync interval only batches syncs that commits ask for
	wo := pebble.Sync
	if opts.Fsync == FsyncModeNever {
		wo = pebble.NoSync
	}
	return &DB{inner: inner, sync: wo, metrics: opts.Metrics}, nil
}

// groupCommitWindow is the WAL sync interval for mode; zero disables it.
func groupCommitWindow(mode FsyncMode, interval time.Duration) time.Duration {
	switch mode {
	case FsyncModeAlways, FsyncModeNever:
		return 0
	case FsyncModeInterval:
		if interval > 0 {
			return interval
		}
	}
	return defaultGroupCommit
}

// Durable reports whether every commit is synced before returning.
func (db *DB) Durable() bool { return db.sync == pebble.Sync }

func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewBatch creates a batch for atomic multi-key updates.
func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch commits b under the fsync policy. A done context aborts before
// anything is written; once the commit starts it is not interrupted.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	start := time.Now()
	size, ops := b.Len(), int(b.Count())
	err := b.Commit(db.sync)
	db.metrics.ObserveBatchCommit(time.Since(start), ops, size)
	return err
}

// write commits a single-key batch built by fill.
func (db *DB) write(n int, fill func(b *pebble.Batch) error) error {
	start := time.Now()
	b := db.inner.NewBatch()
	defer b.Close()
	if err := fill(b); err != nil {
		return err
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		return err
	}
	db.metrics.ObserveWrite(time.Since(start), n)
	return nil
}

func (db *DB) Set(key, value []byte) error {
	return db.write(len(key)+len(value), func(b *pebble.Batch) error { return b.Set(key, value, nil) })
}

func (db *DB) Delete(key []byte) error {
	return db.write(len(key), func(b *pebble.Batch) error { return b.Delete(key, nil) })
}

// Get returns a copy of the value for key.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := bytes.Clone(val)
	db.metrics.ObserveRead(time.Since(start), len(out))
	return out, nil
}

func (db *DB) Has(key []byte) (bool, error) {
	_, closer, err := db.inner.Get(key)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

// NewIter creates a raw Pebble iterator.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}

func prefixIter(db *pebble.DB, prefix []byte) (*pebble.Iterator, error) {
	return db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: PrefixEnd(prefix)})
}

// LastWithPrefix returns a copy of the greatest key under prefix and its
// value. ok is false when no key carries the prefix.
func (db *DB) LastWithPrefix(prefix []byte) (key, value []byte, ok bool, err error) {
	it, err := prefixIter(db.inner, prefix)
	if err != nil {
		return nil, nil, false, err
	}
	defer it.Close()
	if !it.Last() {
		return nil, nil, false, it.Error()
	}
	return bytes.Clone(it.Key()), bytes.Clone(it.Value()), true, nil
}

// ScanPrefix calls fn for every key under prefix in ascending order until fn
// returns false. Key and value are only valid during the call.
func (db *DB) ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	start := time.Now()
	it, err := prefixIter(db.inner, prefix)
	if err != nil {
		return err
	}
	defer it.Close()
	n := 0
	for it.First(); it.Valid(); it.Next() {
		n += len(it.Value())
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	db.metrics.ObserveRead(time.Since(start), n)
	return it.Error()
}

// PrefixEnd returns the smallest key greater than every key with prefix, or
// nil when there is none.
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// pebbleLogger forwards Pebble's printf-style messages to the facade.
type pebbleLogger struct{ l logpkg.Logger }

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Info(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Fatal(fmt.Sprintf(format, args...))
}
