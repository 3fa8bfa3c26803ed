package storagelog

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
	"github.com/EUDAT-DTR/DTR-sub001/pkg/id"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

// Backend performs the raw, unlogged mutations. Timestamps are epoch
// milliseconds and are always non-zero when called from StorageLog.
type Backend interface {
	CreateObject(ctx context.Context, objectID, name string, ts int64) (string, error)
	DeleteObject(ctx context.Context, objectID string, ts int64) error
	StoreDataElement(ctx context.Context, objectID, elementID string, r io.Reader, appendData bool, ts int64) (payloadRef string, err error)
	DeleteDataElement(ctx context.Context, objectID, elementID string, ts int64) (existed bool, err error)
	SetAttributes(ctx context.Context, objectID, elementID string, attrs map[string]string, ts int64) (applied map[string]string, err error)
	DeleteAttributes(ctx context.Context, objectID, elementID string, keys []string, ts int64) (removed []string, err error)
}

// Metadata is caller-supplied transaction metadata. A non-nil Metadata, even
// an empty one, requests logging.
type Metadata map[string]string

// Txn is the logging request both call shapes reduce to.
type Txn struct {
	Log      bool
	Metadata Metadata
}

// LogIf is the boolean call shape.
func LogIf(log bool) Txn { return Txn{Log: log} }

// WithMetadata is the metadata call shape: logging is requested when md is
// non-nil.
func WithMetadata(md Metadata) Txn { return Txn{Log: md != nil, Metadata: md} }

// Observer is told about mutations that were applied but not logged.
type Observer interface {
	LoggingFailed(op string, err error)
}

type nopObserver struct{}

func (nopObserver) LoggingFailed(string, error) {}

const defaultStripes = 256

// errUnchanged is returned by a mutation that found nothing to change. apply
// treats it as success and appends no record.
var errUnchanged = errors.New("storagelog: nothing changed")

// Options configures New.
type Options struct {
	Logger   logpkg.Logger
	Observer Observer
	// Stripes is the number of per-object lock stripes.
	Stripes int
	// Now supplies the effective timestamp when callers pass zero.
	Now func() time.Time
	// IDs generates object identifiers for creates without one.
	IDs *id.Generator
}

// StorageLog applies mutations to a Backend and, when asked, appends one
// transaction record per successful mutation. Mutations of the same object
// (case-insensitively) are serialized together with their append.
type StorageLog struct {
	backend  Backend
	queue    txnlog.Queue
	logger   logpkg.Logger
	observer Observer
	now      func() time.Time
	ids      *id.Generator
	stripes  []sync.Mutex
}

// New builds a facade over backend and queue. It does not own either.
func New(backend Backend, queue txnlog.Queue, opts Options) *StorageLog {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Stripes <= 0 {
		opts.Stripes = defaultStripes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IDs == nil {
		opts.IDs = id.NewGenerator()
	}
	return &StorageLog{
		backend:  backend,
		queue:    queue,
		logger:   opts.Logger.With(logpkg.Component("storagelog")),
		observer: opts.Observer,
		now:      opts.Now,
		ids:      opts.IDs,
		stripes:  make([]sync.Mutex, opts.Stripes),
	}
}

// Queue returns the transaction queue records are appended to.
func (s *StorageLog) Queue() txnlog.Queue { return s.queue }

func (s *StorageLog) lockFor(objectID string) *sync.Mutex {
	h := xxhash.Sum64String(strings.ToLower(objectID))
	return &s.stripes[h%uint64(len(s.stripes))]
}

func (s *StorageLog) effective(ts int64) int64 {
	if ts != 0 {
		return ts
	}
	return s.now().UnixMilli()
}

// apply runs mutate under the object's lock and appends the record it
// describes when txn asks for logging. A failed mutation appends nothing.
func (s *StorageLog) apply(ctx context.Context, op, objectID string, txn Txn, ts int64, mutate func(ts int64) (txnlog.Record, error)) (txnlog.Record, error) {
	mu := s.lockFor(objectID)
	mu.Lock()
	defer mu.Unlock()

	ts = s.effective(ts)
	rec, err := mutate(ts)
	if errors.Is(err, errUnchanged) {
		return rec, nil
	}
	if err != nil {
		return txnlog.Record{}, err
	}
	if !txn.Log {
		return rec, nil
	}
	rec.Timestamp = ts
	if len(txn.Metadata) > 0 {
		rec.Metadata = txn.Metadata
	}
	// the mutation is applied; its append is not canceled with the caller
	seq, err := s.queue.Append(context.WithoutCancel(ctx), rec)
	if err != nil {
		lerr := doerrors.ReplicationLoggingFailure(op, rec.ObjectID, err)
		s.logger.Error("mutation applied but not logged",
			logpkg.Str("op", op),
			logpkg.Str("object_id", rec.ObjectID),
			logpkg.Str("element_id", rec.ElementID),
			logpkg.Err(err),
		)
		s.observer.LoggingFailed(op, err)
		return rec, lerr
	}
	rec.Seq = seq
	s.logger.Debug("transaction logged",
		logpkg.Str("op", op),
		logpkg.Str("object_id", rec.ObjectID),
		logpkg.Uint64("seq", seq),
	)
	return rec, nil
}

// CreateObject creates objectID and returns its ID. An empty objectID is
// generated before the object is locked.
func (s *StorageLog) CreateObject(ctx context.Context, objectID, name string, logTxn bool, ts int64) (string, error) {
	return s.CreateObjectTxn(ctx, objectID, name, LogIf(logTxn), ts)
}

// CreateObjectWithMetadata is CreateObject logging md when it is non-nil.
func (s *StorageLog) CreateObjectWithMetadata(ctx context.Context, objectID, name string, md Metadata, ts int64) (string, error) {
	return s.CreateObjectTxn(ctx, objectID, name, WithMetadata(md), ts)
}

// CreateObjectTxn is the form both call shapes reduce to; the other
// ...Txn methods follow the same pattern.
func (s *StorageLog) CreateObjectTxn(ctx context.Context, objectID, name string, txn Txn, ts int64) (string, error) {
	if objectID == "" {
		objectID = s.ids.Next().String()
	}
	rec, err := s.apply(ctx, "create_object", objectID, txn, ts, func(ts int64) (txnlog.Record, error) {
		created, err := s.backend.CreateObject(ctx, objectID, name, ts)
		if err != nil {
			return txnlog.Record{}, err
		}
		return txnlog.Record{Kind: txnlog.KindCreateObject, ObjectID: created}, nil
	})
	return rec.ObjectID, err
}

func (s *StorageLog) DeleteObject(ctx context.Context, objectID string, logTxn bool, ts int64) error {
	return s.DeleteObjectTxn(ctx, objectID, LogIf(logTxn), ts)
}

func (s *StorageLog) DeleteObjectWithMetadata(ctx context.Context, objectID string, md Metadata, ts int64) error {
	return s.DeleteObjectTxn(ctx, objectID, WithMetadata(md), ts)
}

func (s *StorageLog) DeleteObjectTxn(ctx context.Context, objectID string, txn Txn, ts int64) error {
	_, err := s.apply(ctx, "delete_object", objectID, txn, ts, func(ts int64) (txnlog.Record, error) {
		if err := s.backend.DeleteObject(ctx, objectID, ts); err != nil {
			return txnlog.Record{}, err
		}
		return txnlog.Record{Kind: txnlog.KindDeleteObject, ObjectID: objectID}, nil
	})
	return err
}

// StoreDataElement writes r into the element; the record references the
// stored bytes instead of carrying them.
func (s *StorageLog) StoreDataElement(ctx context.Context, objectID, elementID string, r io.Reader, appendData, logTxn bool, ts int64) error {
	return s.StoreDataElementTxn(ctx, objectID, elementID, r, appendData, LogIf(logTxn), ts)
}

func (s *StorageLog) StoreDataElementWithMetadata(ctx context.Context, objectID, elementID string, r io.Reader, appendData bool, md Metadata, ts int64) error {
	return s.StoreDataElementTxn(ctx, objectID, elementID, r, appendData, WithMetadata(md), ts)
}

func (s *StorageLog) StoreDataElementTxn(ctx context.Context, objectID, elementID string, r io.Reader, appendData bool, txn Txn, ts int64) error {
	_, err := s.apply(ctx, "store_element", objectID, txn, ts, func(ts int64) (txnlog.Record, error) {
		ref, err := s.backend.StoreDataElement(ctx, objectID, elementID, r, appendData, ts)
		if err != nil {
			return txnlog.Record{}, err
		}
		return txnlog.Record{Kind: txnlog.KindStoreElement, ObjectID: objectID, ElementID: elementID, PayloadRef: ref}, nil
	})
	return err
}

// DeleteDataElement reports whether the element existed. Deleting a missing
// element appends no record.
func (s *StorageLog) DeleteDataElement(ctx context.Context, objectID, elementID string, logTxn bool, ts int64) (bool, error) {
	return s.DeleteDataElementTxn(ctx, objectID, elementID, LogIf(logTxn), ts)
}

func (s *StorageLog) DeleteDataElementWithMetadata(ctx context.Context, objectID, elementID string, md Metadata, ts int64) (bool, error) {
	return s.DeleteDataElementTxn(ctx, objectID, elementID, WithMetadata(md), ts)
}

func (s *StorageLog) DeleteDataElementTxn(ctx context.Context, objectID, elementID string, txn Txn, ts int64) (bool, error) {
	var existed bool
	_, err := s.apply(ctx, "delete_element", objectID, txn, ts, func(ts int64) (txnlog.Record, error) {
		var err error
		existed, err = s.backend.DeleteDataElement(ctx, objectID, elementID, ts)
		if err != nil {
			return txnlog.Record{}, err
		}
		if !existed {
			return txnlog.Record{}, errUnchanged
		}
		return txnlog.Record{Kind: txnlog.KindDeleteElement, ObjectID: objectID, ElementID: elementID}, nil
	})
	return existed, err
}

// SetAttributes sets attributes on the object, or on an element when
// elementID is non-empty. The record carries the attributes the backend
// actually applied.
func (s *StorageLog) SetAttributes(ctx context.Context, objectID, elementID string, attrs map[string]string, logTxn bool, ts int64) error {
	return s.SetAttributesTxn(ctx, objectID, elementID, attrs, LogIf(logTxn), ts)
}

func (s *StorageLog) SetAttributesWithMetadata(ctx context.Context, objectID, elementID string, attrs map[string]string, md Metadata, ts int64) error {
	return s.SetAttributesTxn(ctx, objectID, elementID, attrs, WithMetadata(md), ts)
}

func (s *StorageLog) SetAttributesTxn(ctx context.Context, objectID, elementID string, attrs map[string]string, txn Txn, ts int64) error {
	_, err := s.apply(ctx, "set_attributes", objectID, txn, ts, func(ts int64) (txnlog.Record, error) {
		applied, err := s.backend.SetAttributes(ctx, objectID, elementID, attrs, ts)
		if err != nil {
			return txnlog.Record{}, err
		}
		return txnlog.Record{Kind: txnlog.KindSetAttributes, ObjectID: objectID, ElementID: elementID, Attributes: applied}, nil
	})
	return err
}

func (s *StorageLog) DeleteAttributes(ctx context.Context, objectID, elementID string, keys []string, logTxn bool, ts int64) error {
	return s.DeleteAttributesTxn(ctx, objectID, elementID, keys, LogIf(logTxn), ts)
}

func (s *StorageLog) DeleteAttributesWithMetadata(ctx context.Context, objectID, elementID string, keys []string, md Metadata, ts int64) error {
	return s.DeleteAttributesTxn(ctx, objectID, elementID, keys, WithMetadata(md), ts)
}

func (s *StorageLog) DeleteAttributesTxn(ctx context.Context, objectID, elementID string, keys []string, txn Txn, ts int64) error {
	if keys == nil {
		return doerrors.InvalidArgument("attribute keys are required")
	}
	_, err := s.apply(ctx, "delete_attributes", objectID, txn, ts, func(ts int64) (txnlog.Record, error) {
		removed, err := s.backend.DeleteAttributes(ctx, objectID, elementID, keys, ts)
		if err != nil {
			return txnlog.Record{}, err
		}
		return txnlog.Record{Kind: txnlog.KindDeleteAttributes, ObjectID: objectID, ElementID: elementID, Keys: removed}, nil
	})
	return err
}
