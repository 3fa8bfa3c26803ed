package replication

import (
	"context"
	"errors"
	"io"
	"time"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

// Metrics observes replication reads. Optional.
type Metrics interface {
	ObserveReplicationRead(mode string, records int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveReplicationRead(string, int) {}

// Options configures the Service.
type Options struct {
	// MaxBatch caps one page.
	MaxBatch int
	// MaxWait bounds how long a page waits for the first record when the
	// caller asks to wait.
	MaxWait time.Duration
	// FlushWindow batches sink flushes while tailing; zero flushes after
	// every record.
	FlushWindow time.Duration
	Logger      logpkg.Logger
	Metrics     Metrics
}

// Service serves transaction records to replicas and auditors.
type Service struct {
	queue       txnlog.Queue
	maxBatch    int
	maxWait     time.Duration
	flushWindow time.Duration
	logger      logpkg.Logger
	metrics     Metrics
}

func New(queue txnlog.Queue, opts Options) *Service {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 256
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Service{
		queue:       queue,
		maxBatch:    opts.MaxBatch,
		maxWait:     opts.MaxWait,
		flushWindow: opts.FlushWindow,
		logger:      opts.Logger.With(logpkg.Component("replication")),
		metrics:     opts.Metrics,
	}
}

// Page is one bounded read. Next is where the following read should start;
// it advances past records the filter rejected.
type Page struct {
	Records []txnlog.Record
	Next    uint64
}

// ReadPage returns up to limit records matching filter starting at from.
// With wait set and nothing to read it blocks up to MaxWait for an append.
func (s *Service) ReadPage(ctx context.Context, from uint64, limit int, filter txnlog.Filter, wait bool) (Page, error) {
	if limit <= 0 || limit > s.maxBatch {
		limit = s.maxBatch
	}
	if wait && s.maxWait > 0 && from >= s.queue.Len() {
		wctx, cancel := context.WithTimeout(ctx, s.maxWait)
		err := waitFor(wctx, s.queue, from)
		cancel()
		if err != nil && ctx.Err() != nil {
			return Page{}, err
		}
	}

	page := Page{Next: from}
	end := s.queue.Len()
	if from >= end {
		return page, nil
	}
	sc := s.queue.ReadFrom(from)
	defer sc.Close()
	for page.Next < end && len(page.Records) < limit {
		rec, err := sc.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return page, err
		}
		page.Next = rec.Seq + 1
		if filter.Match(rec) {
			page.Records = append(page.Records, rec)
		}
	}
	s.metrics.ObserveReplicationRead("page", len(page.Records))
	return page, nil
}

// waitFor blocks until q holds a record at seq or ctx is done.
func waitFor(ctx context.Context, q txnlog.Queue, seq uint64) error {
	sc := q.ReadFrom(seq)
	defer sc.Close()
	_, err := sc.Next(ctx)
	return err
}

// Sink receives tailed records.
type Sink interface {
	Send(txnlog.Record) error
	Context() context.Context
	Flush() error
}

// Tail pushes every record matching filter from from onward to sink until
// the sink's context is done, the sink fails, or a frozen queue ends.
func (s *Service) Tail(from uint64, filter txnlog.Filter, sink Sink) error {
	ctx := sink.Context()
	sc := s.queue.ReadFrom(from)
	defer sc.Close()

	pending := 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		pending = 0
		return sink.Flush()
	}
	s.logger.Debug("tail started", logpkg.Uint64("from", from), logpkg.Str("filter", filter.String()))
	for {
		next := ctx
		cancel := context.CancelFunc(func() {})
		if pending > 0 {
			next, cancel = context.WithTimeout(ctx, s.flushWindow)
		}
		rec, err := sc.Next(next)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return flush()
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// idle after a burst
			if ferr := flush(); ferr != nil {
				return ferr
			}
			continue
		case ctx.Err() != nil:
			_ = flush()
			return nil
		case doerrors.Is(err, doerrors.ErrClosed):
			_ = flush()
			return err
		default:
			return err
		}
		if !filter.Match(rec) {
			continue
		}
		if err := sink.Send(rec); err != nil {
			return err
		}
		s.metrics.ObserveReplicationRead("tail", 1)
		pending++
		if s.flushWindow == 0 || pending >= 64 {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// CommitCursor records that consumer has processed everything before seq.
func (s *Service) CommitCursor(consumer string, seq uint64) error {
	cs, ok := txnlog.Cursors(s.queue)
	if !ok {
		return doerrors.UnsupportedCapability("consumer cursors")
	}
	if seq > s.queue.Len() {
		return doerrors.InvalidArgument("cursor is past the end of the log")
	}
	return cs.CommitCursor(consumer, seq)
}

// GetCursor returns the stored cursor of consumer, or 0 when none exists.
func (s *Service) GetCursor(consumer string) (uint64, bool, error) {
	if consumer == "" {
		return 0, false, doerrors.InvalidArgument("consumer name is required")
	}
	cs, ok := txnlog.Cursors(s.queue)
	if !ok {
		return 0, false, doerrors.UnsupportedCapability("consumer cursors")
	}
	return cs.GetCursor(consumer)
}
