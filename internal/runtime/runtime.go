package runtime

import (
	"context"
	"path/filepath"
	"sync"

	cfgpkg "github.com/EUDAT-DTR/DTR-sub001/internal/config"
	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	"github.com/EUDAT-DTR/DTR-sub001/internal/metrics"
	"github.com/EUDAT-DTR/DTR-sub001/internal/objstore"
	"github.com/EUDAT-DTR/DTR-sub001/internal/storagelog"
	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
	"github.com/EUDAT-DTR/DTR-sub001/pkg/id"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

var _ storagelog.Backend = (*objstore.Store)(nil)

// Options for building the Runtime.
type Options struct {
	Config  cfgpkg.Config
	Logger  logpkg.Logger
	Metrics *metrics.Metrics
}

// Runtime wires storage, the transaction log and the logging facade for a
// single repository instance.
type Runtime struct {
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics

	store *objstore.Store
	queue txnlog.Queue
	log   *storagelog.StorageLog

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// Open initializes the object store and transaction log and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	ids := id.NewGenerator()
	dataDir := cfg.ResolvedDataDir()

	store, err := objstore.Open(objstore.Options{
		DataDir:       filepath.Join(dataDir, "objects"),
		Fsync:         cfg.FsyncMode(),
		FsyncInterval: cfg.FsyncInterval(),
		Metrics:       m.Store(),
		Logger:        logger,
		IDs:           ids,
	})
	if err != nil {
		return nil, err
	}
	queue, err := txnlog.Open(cfg.ResolvedTxnDir(), txnlog.Options{
		LegacySuffix:  cfg.LegacySuffix,
		Fsync:         cfg.FsyncMode(),
		FsyncInterval: cfg.FsyncInterval(),
		MaxAttempts:   cfg.AppendMaxAttempts,
		RetryBackoff:  cfg.AppendRetryBackoff(),
		Logger:        logger,
		Metrics:       m,
		StoreMetrics:  m.Store(),
		IDs:           ids,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rt := &Runtime{
		config:  cfg,
		logger:  logger.With(logpkg.Component("runtime")),
		metrics: m,
		store:   store,
		queue:   queue,
		log:     storagelog.New(store, queue, storagelog.Options{Logger: logger, Observer: m, IDs: ids}),
		closed:  make(chan struct{}),
	}
	rt.logger.Info("repository opened",
		logpkg.Str("data_dir", dataDir),
		logpkg.Str("txn_dir", cfg.ResolvedTxnDir()),
		logpkg.Uint64("txn_records", queue.Len()),
	)
	return rt, nil
}

// Close closes the transaction log, then the object store. Safe to call
// more than once.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
		qerr := r.queue.Close()
		serr := r.store.Close()
		if qerr != nil {
			r.closeErr = qerr
		} else {
			r.closeErr = serr
		}
	})
	return r.closeErr
}

// CheckHealth reports whether the runtime can serve reads and writes.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	select {
	case <-r.closed:
		return doerrors.Closed("runtime")
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if emb := r.Embedded(); emb != nil {
		if err := emb.Poisoned(); err != nil {
			return err
		}
	}
	it, err := r.store.DB().NewIter(nil)
	if err != nil {
		return doerrors.IOFailure("object store iterator", err)
	}
	return it.Close()
}

// Embedded returns the queue that accepts appends.
func (r *Runtime) Embedded() *txnlog.EmbeddedQueue {
	switch q := r.queue.(type) {
	case *txnlog.EmbeddedQueue:
		return q
	case *txnlog.ConcatenatedQueue:
		return q.Embedded()
	}
	return nil
}

// Cursors returns the consumer cursor store of the transaction log.
func (r *Runtime) Cursors() (txnlog.CursorStore, bool) { return txnlog.Cursors(r.queue) }

// Store exposes the raw object store for reads.
func (r *Runtime) Store() *objstore.Store { return r.store }

// Queue returns the transaction log.
func (r *Runtime) Queue() txnlog.Queue { return r.queue }

// StorageLog returns the logging mutation facade.
func (r *Runtime) StorageLog() *storagelog.StorageLog { return r.log }

func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
