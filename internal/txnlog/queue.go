package txnlog

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	pebblestore "github.com/EUDAT-DTR/DTR-sub001/internal/storage/pebble"
	"github.com/EUDAT-DTR/DTR-sub001/pkg/id"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

// Queue is an append-only, durable, strictly ordered sequence of records.
// Sequences start at 0 and have no gaps.
type Queue interface {
	// Append assigns the next sequence to rec, persists it and returns the
	// sequence. A failed append leaves no trace.
	Append(ctx context.Context, rec Record) (uint64, error)
	// ReadFrom returns a scanner positioned at the first record whose
	// sequence is >= from.
	ReadFrom(from uint64) Scanner
	// Len is the number of records, which is also the next sequence.
	Len() uint64
	Close() error
}

// Scanner iterates records in sequence order. On an active queue Next blocks
// until a record is appended or ctx is done; on a frozen queue it returns
// io.EOF after the last record.
type Scanner interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

// CursorStore persists per-consumer acknowledged sequences.
type CursorStore interface {
	CommitCursor(consumer string, seq uint64) error
	GetCursor(consumer string) (uint64, bool, error)
}

// Metrics observes queue activity. Optional.
type Metrics interface {
	ObserveAppend(queue string, elapsed time.Duration, err error)
	ObserveAppendRetry(queue string)
	ObserveRead(queue string, records int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAppend(string, time.Duration, error) {}
func (noopMetrics) ObserveAppendRetry(string)                  {}
func (noopMetrics) ObserveRead(string, int)                    {}

const (
	// DefaultLegacySuffix marks legacy queue files in the transaction directory.
	DefaultLegacySuffix = ".q"
	// EmbeddedDirName is the subdirectory holding the embedded queue store.
	EmbeddedDirName = "db"

	defaultMaxAttempts  = 5
	defaultRetryBackoff = 10 * time.Millisecond
	readBatchSize       = 256
)

// Options configures Open and the individual queue constructors.
type Options struct {
	LegacySuffix  string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	// MaxAttempts bounds commits of one append on transient errors.
	MaxAttempts  int
	RetryBackoff time.Duration
	Logger       logpkg.Logger
	Metrics      Metrics
	StoreMetrics pebblestore.MetricsHook
	IDs          *id.Generator
}

func (o Options) withDefaults() Options {
	if o.LegacySuffix == "" {
		o.LegacySuffix = DefaultLegacySuffix
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = defaultRetryBackoff
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewNopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
	if o.IDs == nil {
		o.IDs = id.NewGenerator()
	}
	return o
}

// DetectLegacy reports whether dir contains any file ending in suffix.
func DetectLegacy(dir, suffix string) (bool, error) {
	if suffix == "" {
		suffix = DefaultLegacySuffix
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, doerrors.IOFailure("scan transaction directory", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			return true, nil
		}
	}
	return false, nil
}

// Open opens the transaction log stored in dir. The decision is made once:
// when legacy queue files are present they are opened read-only and
// concatenated in front of the embedded queue at dir/db; otherwise the
// embedded queue is returned alone.
func Open(dir string, opts Options) (Queue, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, doerrors.IOFailure("create transaction directory", err)
	}
	hasLegacy, err := DetectLegacy(dir, opts.LegacySuffix)
	if err != nil {
		return nil, err
	}
	var legacy *LegacyQueue
	if hasLegacy {
		legacy, err = OpenLegacy(dir, opts)
		if err != nil {
			return nil, err
		}
	}
	emb, err := OpenEmbedded(filepath.Join(dir, EmbeddedDirName), opts)
	if err != nil {
		if legacy != nil {
			_ = legacy.Close()
		}
		return nil, err
	}
	if legacy == nil {
		opts.Logger.Info("transaction log opened", logpkg.Str("dir", dir), logpkg.Uint64("records", emb.Len()))
		return emb, nil
	}
	opts.Logger.Info("transaction log opened with legacy queue",
		logpkg.Str("dir", dir),
		logpkg.Uint64("legacy_records", legacy.Len()),
		logpkg.Uint64("embedded_records", emb.Len()),
	)
	return NewConcatenated(legacy, emb), nil
}

// ReadAll returns every record from from up to the queue length observed at
// call time. It does not wait for new appends.
func ReadAll(ctx context.Context, q Queue, from uint64) ([]Record, error) {
	end := q.Len()
	if from >= end {
		return nil, nil
	}
	sc := q.ReadFrom(from)
	defer sc.Close()
	out := make([]Record, 0, end-from)
	for uint64(len(out)) < end-from {
		r, err := sc.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Cursors returns the cursor store of q when it has one.
func Cursors(q Queue) (CursorStore, bool) {
	cs, ok := q.(CursorStore)
	return cs, ok
}
