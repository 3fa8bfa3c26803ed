package txnlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	pebblestore "github.com/EUDAT-DTR/DTR-sub001/internal/storage/pebble"
	"github.com/EUDAT-DTR/DTR-sub001/pkg/id"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

const embeddedName = "embedded"

// EmbeddedQueue is the active queue persisted in Pebble. Each append is one
// atomic batch holding the entry and the updated next-sequence key.
type EmbeddedQueue struct {
	db     *pebblestore.DB
	ownsDB bool

	logger       logpkg.Logger
	metrics      Metrics
	ids          *id.Generator
	maxAttempts  int
	retryBackoff time.Duration

	// commit is swapped in tests to inject store failures.
	commit func(ctx context.Context, b *pebble.Batch) error

	// appendLock serializes sequence assignment; a channel so waiting
	// honors cancellation.
	appendLock chan struct{}

	// readers blocks Close from releasing the store under an iterator.
	readers sync.RWMutex

	mu       sync.Mutex
	next     uint64
	notifyCh chan struct{}
	poisoned error
	closed   bool
}

// OpenEmbedded opens or creates the embedded queue in dir.
func OpenEmbedded(dir string, opts Options) (*EmbeddedQueue, error) {
	opts = opts.withDefaults()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       dir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       opts.StoreMetrics,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, doerrors.IOFailure("open embedded queue", err)
	}
	q, err := NewEmbedded(db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	q.ownsDB = true
	return q, nil
}

// NewEmbedded builds a queue over an already open store. The caller keeps
// ownership of db.
func NewEmbedded(db *pebblestore.DB, opts Options) (*EmbeddedQueue, error) {
	opts = opts.withDefaults()
	q := &EmbeddedQueue{
		db:           db,
		logger:       opts.Logger.With(logpkg.Component("txnlog"), logpkg.Str("queue", embeddedName)),
		metrics:      opts.Metrics,
		ids:          opts.IDs,
		maxAttempts:  opts.MaxAttempts,
		retryBackoff: opts.RetryBackoff,
		appendLock:   make(chan struct{}, 1),
		notifyCh:     make(chan struct{}),
	}
	q.commit = db.CommitBatch
	if err := q.recover(); err != nil {
		return nil, err
	}
	return q, nil
}

// recover loads the next sequence and checks it against the stored entries.
// An inconsistent store is opened read-only: reads work, appends fail.
func (q *EmbeddedQueue) recover() error {
	var next uint64
	hasMeta := false
	meta, err := q.db.Get(metaKey)
	switch {
	case err == nil && len(meta) == 8:
		next = binary.BigEndian.Uint64(meta)
		hasMeta = true
	case err == nil:
		q.poison(doerrors.CorruptionDetected("embedded queue: malformed sequence key", nil))
	case !pebblestore.IsNotFound(err):
		return doerrors.IOFailure("embedded queue: read sequence key", err)
	}

	lastKey, lastVal, ok, err := q.db.LastWithPrefix(entryPrefix)
	if err != nil {
		return doerrors.IOFailure("embedded queue: locate last entry", err)
	}
	if ok {
		last, valid := seqFromEntryKey(lastKey)
		switch {
		case !valid:
			q.poison(doerrors.CorruptionDetected("embedded queue: malformed entry key", nil))
		case !hasMeta || next != last+1:
			q.poison(doerrors.CorruptionDetected(
				fmt.Sprintf("embedded queue: next sequence %d does not follow last entry %d", next, last), nil).
				WithDetail("last_seq", last))
			next = last + 1
		}
		if rec, derr := decodeRecord(last, lastVal); derr != nil {
			q.poison(derr)
		} else {
			q.ids.Observe(rec.ID)
		}
	} else if next != 0 {
		q.poison(doerrors.CorruptionDetected(fmt.Sprintf("embedded queue: next sequence %d but no entries", next), nil))
	}
	q.next = next
	return nil
}

func (q *EmbeddedQueue) poison(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.poisoned == nil {
		q.poisoned = err
		q.logger.Error("embedded queue disabled for appends", logpkg.Err(err))
	}
}

// Poisoned returns the corruption that stopped appends, if any.
func (q *EmbeddedQueue) Poisoned() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.poisoned
}

// Len returns the number of committed records.
func (q *EmbeddedQueue) Len() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.next
}

// DB exposes the underlying store.
func (q *EmbeddedQueue) DB() *pebblestore.DB { return q.db }

// Append persists rec at the next sequence. Transient store errors are
// retried up to the configured attempt count; anything else is returned as
// an IOFailure. Cancellation before the commit returns ctx's error and
// leaves the queue unchanged.
func (q *EmbeddedQueue) Append(ctx context.Context, rec Record) (uint64, error) {
	start := time.Now()
	seq, err := q.append(ctx, rec)
	q.metrics.ObserveAppend(embeddedName, time.Since(start), err)
	return seq, err
}

func (q *EmbeddedQueue) append(ctx context.Context, rec Record) (uint64, error) {
	if !rec.Kind.Valid() {
		return 0, doerrors.InvalidArgument(fmt.Sprintf("invalid record kind %d", rec.Kind))
	}
	select {
	case q.appendLock <- struct{}{}:
	case <-ctx.Done():
		return 0, fmt.Errorf("append: %w", ctx.Err())
	}
	defer func() { <-q.appendLock }()

	q.mu.Lock()
	closed, poisoned, seq := q.closed, q.poisoned, q.next
	q.mu.Unlock()
	if closed {
		return 0, doerrors.Closed("embedded queue")
	}
	if poisoned != nil {
		return 0, doerrors.CorruptionDetected("embedded queue rejects appends", poisoned)
	}

	rec.Seq = seq
	if rec.ID.IsZero() {
		rec.ID = q.ids.Next()
	}
	if rec.ActualTime == 0 {
		rec.ActualTime = time.Now().UnixMilli()
	}
	val, err := encodeRecord(rec)
	if err != nil {
		return 0, err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq+1)

	for attempt := 1; ; attempt++ {
		err = q.commitOnce(ctx, keyEntry(seq), val, meta[:])
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return 0, fmt.Errorf("append: %w", ctx.Err())
		}
		if !isTransient(err) || attempt >= q.maxAttempts {
			return 0, doerrors.IOFailure(fmt.Sprintf("append seq %d", seq), err).WithDetail("attempts", attempt)
		}
		q.metrics.ObserveAppendRetry(embeddedName)
		q.logger.Warn("transient append failure, retrying",
			logpkg.Uint64("seq", seq),
			logpkg.Int("attempt", attempt),
			logpkg.Err(err),
		)
		if werr := sleepCtx(ctx, q.retryBackoff*time.Duration(attempt)); werr != nil {
			return 0, fmt.Errorf("append: %w", werr)
		}
	}

	q.mu.Lock()
	q.next = seq + 1
	close(q.notifyCh)
	q.notifyCh = make(chan struct{})
	q.mu.Unlock()
	return seq, nil
}

func (q *EmbeddedQueue) commitOnce(ctx context.Context, key, val, meta []byte) error {
	b := q.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, val, nil); err != nil {
		return err
	}
	if err := b.Set(metaKey, meta, nil); err != nil {
		return err
	}
	return q.commit(ctx, b)
}

// isTransient reports contention-style errors worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EBUSY) {
		return true
	}
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadFrom returns a tailing scanner starting at from.
func (q *EmbeddedQueue) ReadFrom(from uint64) Scanner {
	return newScanner(q, from)
}

// readBatch returns up to limit committed records starting at from.
func (q *EmbeddedQueue) readBatch(from uint64, limit int) ([]Record, error) {
	q.readers.RLock()
	defer q.readers.RUnlock()
	q.mu.Lock()
	end, closed := q.next, q.closed
	q.mu.Unlock()
	if closed {
		return nil, doerrors.Closed("embedded queue")
	}
	if from >= end {
		return nil, nil
	}
	if n := end - from; uint64(limit) > n {
		limit = int(n)
	}

	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: keyEntry(from), UpperBound: keyEntry(end)})
	if err != nil {
		return nil, doerrors.IOFailure("open entry iterator", err)
	}
	defer iter.Close()

	out := make([]Record, 0, limit)
	want := from
	for iter.First(); iter.Valid() && len(out) < limit; iter.Next() {
		seq, ok := seqFromEntryKey(iter.Key())
		if !ok || seq != want {
			err := doerrors.CorruptionDetected(fmt.Sprintf("embedded queue: gap at sequence %d", want), nil).WithDetail("seq", want)
			q.poison(err)
			return nil, err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			q.poison(err)
			return nil, err
		}
		out = append(out, rec)
		want++
	}
	if err := iter.Error(); err != nil {
		return nil, doerrors.IOFailure("iterate entries", err)
	}
	if len(out) < limit {
		err := doerrors.CorruptionDetected(fmt.Sprintf("embedded queue: missing entry %d", want), nil).WithDetail("seq", want)
		q.poison(err)
		return nil, err
	}
	q.metrics.ObserveRead(embeddedName, len(out))
	return out, nil
}

// Close stops appends, wakes tailing readers and releases the store when the
// queue opened it.
func (q *EmbeddedQueue) Close() error {
	q.appendLock <- struct{}{}
	defer func() { <-q.appendLock }()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.notifyCh)
	q.mu.Unlock()
	q.readers.Lock()
	defer q.readers.Unlock()
	if q.ownsDB {
		return q.db.Close()
	}
	return nil
}
