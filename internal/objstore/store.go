package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"

	"github.com/EUDAT-DTR/DTR-sub001/internal/bstream"
	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	pebblestore "github.com/EUDAT-DTR/DTR-sub001/internal/storage/pebble"
	"github.com/EUDAT-DTR/DTR-sub001/pkg/id"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

// ObjectInfo is the stored state of one digital object.
type ObjectInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Created  int64  `json:"created"`
	Modified int64  `json:"modified"`
	Deleted  int64  `json:"deleted,omitempty"`
}

// Exists reports whether the object was created and not deleted since.
func (o ObjectInfo) Exists() bool { return o.Created > 0 && o.Deleted <= o.Created }

// ElementInfo describes a stored data element.
type ElementInfo struct {
	Size     int64  `json:"size"`
	Created  int64  `json:"created"`
	Modified int64  `json:"modified"`
	Digest   string `json:"digest"`
}

type attrValue struct {
	Value   string `json:"v"`
	TS      int64  `json:"ts"`
	Deleted bool   `json:"d,omitempty"`
}

// Options configures Open.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Metrics       pebblestore.MetricsHook
	Logger        logpkg.Logger
	IDs           *id.Generator
}

// Store is the raw, unlogged object store. Mutations of one object must be
// serialized by the caller; different objects may be written concurrently.
type Store struct {
	db     *pebblestore.DB
	ownsDB bool
	logger logpkg.Logger
	ids    *id.Generator
}

// Open opens or creates a store in opts.DataDir.
func Open(opts Options) (*Store, error) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       opts.Metrics,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, doerrors.IOFailure("open object store", err)
	}
	s := New(db, opts.Logger, opts.IDs)
	s.ownsDB = true
	return s, nil
}

// New builds a store over an open database. The caller keeps ownership of db.
func New(db *pebblestore.DB, logger logpkg.Logger, ids *id.Generator) *Store {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	if ids == nil {
		ids = id.NewGenerator()
	}
	return &Store{db: db, logger: logger.With(logpkg.Component("objstore")), ids: ids}
}

// DB exposes the underlying database (internal use only).
func (s *Store) DB() *pebblestore.DB { return s.db }

func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func validID(what, v string) error {
	if strings.IndexByte(v, sep) >= 0 {
		return doerrors.InvalidArgument(what + " must not contain NUL bytes")
	}
	return nil
}

func nowOr(ts int64) int64 {
	if ts != 0 {
		return ts
	}
	return time.Now().UnixMilli()
}

func (s *Store) getJSON(key []byte, v interface{}) (bool, error) {
	b, err := s.db.Get(key)
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return false, nil
		}
		return false, doerrors.IOFailure("read "+string(key), err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, doerrors.CorruptionDetected(fmt.Sprintf("decode %q", key), err)
	}
	return true, nil
}

func setJSON(b *pebble.Batch, key []byte, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return doerrors.Internal("encode "+string(key), err)
	}
	return b.Set(key, buf, nil)
}

func (s *Store) commit(ctx context.Context, b *pebble.Batch, what string) error {
	if err := s.db.CommitBatch(ctx, b); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", what, ctx.Err())
		}
		return doerrors.IOFailure(what, err)
	}
	return nil
}

// ObjectInfo returns the stored info of objectID. The zero value with the ID
// filled in is returned for objects never created.
func (s *Store) ObjectInfo(objectID string) (ObjectInfo, error) {
	info := ObjectInfo{ID: objectID}
	if _, err := s.getJSON(keyObject(objectID), &info); err != nil {
		return ObjectInfo{}, err
	}
	return info, nil
}

// ObjectExists reports whether objectID currently exists.
func (s *Store) ObjectExists(objectID string) (bool, error) {
	info, err := s.ObjectInfo(objectID)
	if err != nil {
		return false, err
	}
	return info.Exists(), nil
}

func (s *Store) requireObject(objectID string) (ObjectInfo, error) {
	info, err := s.ObjectInfo(objectID)
	if err != nil {
		return ObjectInfo{}, err
	}
	if !info.Exists() {
		return ObjectInfo{}, doerrors.NotFound("object", objectID)
	}
	return info, nil
}

// CreateObject creates objectID, generating an identifier when it is empty,
// and returns the identifier used.
func (s *Store) CreateObject(ctx context.Context, objectID, name string, ts int64) (string, error) {
	if objectID == "" {
		objectID = s.ids.Next().String()
	}
	if err := validID("object id", objectID); err != nil {
		return "", err
	}
	info, err := s.ObjectInfo(objectID)
	if err != nil {
		return "", err
	}
	if info.Exists() {
		return "", doerrors.AlreadyExists("object", objectID)
	}
	created := nowOr(ts)
	if info.Created > created {
		created = info.Created
	}
	if info.Deleted >= created {
		created = info.Deleted + 1
	}
	info.Name = name
	info.Created = created
	info.Modified = created

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, keyObject(objectID), info); err != nil {
		return "", err
	}
	if err := s.commit(ctx, b, "create object"); err != nil {
		return "", err
	}
	return objectID, nil
}

// DeleteObject removes objectID with its elements and attributes.
func (s *Store) DeleteObject(ctx context.Context, objectID string, ts int64) error {
	info, err := s.requireObject(objectID)
	if err != nil {
		return err
	}
	deleted := nowOr(ts)
	if deleted <= info.Created {
		deleted = info.Created + 1
	}
	info.Deleted = deleted
	info.Modified = deleted

	b := s.db.NewBatch()
	defer b.Close()
	for _, prefix := range [][]byte{elemPrefix, dataPrefix, attrPrefix} {
		scope := keyScoped(prefix, objectID)
		if err := b.DeleteRange(scope, pebblestore.PrefixEnd(scope), nil); err != nil {
			return doerrors.IOFailure("delete object contents", err)
		}
	}
	if err := setJSON(b, keyObject(objectID), info); err != nil {
		return err
	}
	return s.commit(ctx, b, "delete object")
}

// ListObjects calls fn with every existing object in key order until fn
// returns false.
func (s *Store) ListObjects(fn func(ObjectInfo) bool) error {
	var derr error
	err := s.db.ScanPrefix(objPrefix, func(key, value []byte) bool {
		var info ObjectInfo
		if err := json.Unmarshal(value, &info); err != nil {
			derr = doerrors.CorruptionDetected(fmt.Sprintf("decode %q", key), err)
			return false
		}
		if !info.Exists() {
			return true
		}
		return fn(info)
	})
	if err != nil {
		return doerrors.IOFailure("list objects", err)
	}
	return derr
}

// StoreDataElement writes the bytes of r as element elementID of objectID,
// appending to the existing content when appendData is set. It returns a
// payload reference naming the stored content.
func (s *Store) StoreDataElement(ctx context.Context, objectID, elementID string, r io.Reader, appendData bool, ts int64) (string, error) {
	if err := validID("element id", elementID); err != nil {
		return "", err
	}
	info, err := s.requireObject(objectID)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if appendData {
		old, err := s.db.Get(keyData(objectID, elementID))
		if err != nil && !pebblestore.IsNotFound(err) {
			return "", doerrors.IOFailure("read element", err)
		}
		buf.Write(old)
	}
	if r != nil {
		if _, err := io.Copy(&buf, r); err != nil {
			return "", doerrors.IOFailure("read element input", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("store element: %w", err)
	}

	now := nowOr(ts)
	var el ElementInfo
	found, err := s.getJSON(keyElement(objectID, elementID), &el)
	if err != nil {
		return "", err
	}
	if !found {
		el.Created = now
	}
	el.Size = int64(buf.Len())
	el.Modified = now
	el.Digest = fmt.Sprintf("xxh64:%016x", xxhash.Sum64(buf.Bytes()))
	info.Modified = now

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyData(objectID, elementID), buf.Bytes(), nil); err != nil {
		return "", doerrors.IOFailure("store element", err)
	}
	if err := setJSON(b, keyElement(objectID, elementID), el); err != nil {
		return "", err
	}
	if err := setJSON(b, keyObject(objectID), info); err != nil {
		return "", err
	}
	if err := s.commit(ctx, b, "store element"); err != nil {
		return "", err
	}
	return payloadRef(objectID, elementID, el.Digest), nil
}

func payloadRef(objectID, elementID, digest string) string {
	return fmt.Sprintf("%s/%s#%s", objectID, elementID, digest)
}

// DeleteDataElement removes an element and its attributes. It reports whether
// the element existed.
func (s *Store) DeleteDataElement(ctx context.Context, objectID, elementID string, ts int64) (bool, error) {
	info, err := s.requireObject(objectID)
	if err != nil {
		return false, err
	}
	existed, err := s.db.Has(keyElement(objectID, elementID))
	if err != nil {
		return false, doerrors.IOFailure("check element", err)
	}
	if !existed {
		return false, nil
	}
	info.Modified = nowOr(ts)

	b := s.db.NewBatch()
	defer b.Close()
	_ = b.Delete(keyElement(objectID, elementID), nil)
	_ = b.Delete(keyData(objectID, elementID), nil)
	scope := attrScope(objectID, elementID)
	if err := b.DeleteRange(scope, pebblestore.PrefixEnd(scope), nil); err != nil {
		return false, doerrors.IOFailure("delete element attributes", err)
	}
	if err := setJSON(b, keyObject(objectID), info); err != nil {
		return false, err
	}
	if err := s.commit(ctx, b, "delete element"); err != nil {
		return false, err
	}
	return true, nil
}

// ElementInfo returns the description of one element.
func (s *Store) ElementInfo(objectID, elementID string) (ElementInfo, error) {
	var el ElementInfo
	found, err := s.getJSON(keyElement(objectID, elementID), &el)
	if err != nil {
		return ElementInfo{}, err
	}
	if !found {
		return ElementInfo{}, doerrors.NotFound("element", objectID+"/"+elementID)
	}
	return el, nil
}

// ListDataElements returns the element IDs of objectID in sorted order.
func (s *Store) ListDataElements(objectID string) ([]string, error) {
	if _, err := s.requireObject(objectID); err != nil {
		return nil, err
	}
	scope := keyScoped(elemPrefix, objectID)
	var out []string
	if err := s.db.ScanPrefix(scope, func(key, _ []byte) bool {
		out = append(out, string(key[len(scope):]))
		return true
	}); err != nil {
		return nil, doerrors.IOFailure("list elements", err)
	}
	return out, nil
}

// GetDataElement returns the bytes [start, start+length) of an element. A
// negative length reads to the end. The stream supports Mark and Reset.
func (s *Store) GetDataElement(objectID, elementID string, start, length int64) (*bstream.Stream, error) {
	data, err := s.db.Get(keyData(objectID, elementID))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return nil, doerrors.NotFound("element", objectID+"/"+elementID)
		}
		return nil, doerrors.IOFailure("read element", err)
	}
	return bstream.New(bstream.NewMarkable(bytes.NewReader(data)), start, length), nil
}

// SetAttributes stores attrs on the object, or on one of its elements when
// elementID is set. An attribute whose stored timestamp is newer than ts is
// left alone. The attributes actually written are returned.
func (s *Store) SetAttributes(ctx context.Context, objectID, elementID string, attrs map[string]string, ts int64) (map[string]string, error) {
	info, err := s.requireObject(objectID)
	if err != nil {
		return nil, err
	}
	ts = nowOr(ts)
	applied := make(map[string]string, len(attrs))

	b := s.db.NewBatch()
	defer b.Close()
	for _, name := range sortedKeys(attrs) {
		if err := validID("attribute name", name); err != nil {
			return nil, err
		}
		key := keyAttr(objectID, elementID, name)
		var old attrValue
		if _, err := s.getJSON(key, &old); err != nil {
			return nil, err
		}
		if old.TS > ts {
			s.logger.Warn("attempt to overwrite newer attribute ignored",
				logpkg.Str("object_id", objectID),
				logpkg.Str("element_id", elementID),
				logpkg.Str("attribute", name),
				logpkg.Int64("stored_ts", old.TS),
				logpkg.Int64("ts", ts),
			)
			continue
		}
		if err := setJSON(b, key, attrValue{Value: attrs[name], TS: ts}); err != nil {
			return nil, err
		}
		applied[name] = attrs[name]
	}
	info.Modified = ts
	if err := setJSON(b, keyObject(objectID), info); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, b, "set attributes"); err != nil {
		return nil, err
	}
	return applied, nil
}

// DeleteAttributes removes the named attributes. Deletions are remembered
// with ts so that an older write cannot bring a value back. The keys actually
// removed are returned.
func (s *Store) DeleteAttributes(ctx context.Context, objectID, elementID string, keys []string, ts int64) ([]string, error) {
	info, err := s.requireObject(objectID)
	if err != nil {
		return nil, err
	}
	ts = nowOr(ts)
	var removed []string

	b := s.db.NewBatch()
	defer b.Close()
	for _, name := range keys {
		key := keyAttr(objectID, elementID, name)
		var old attrValue
		if _, err := s.getJSON(key, &old); err != nil {
			return nil, err
		}
		if old.TS > ts {
			s.logger.Warn("attempt to delete newer attribute ignored",
				logpkg.Str("object_id", objectID),
				logpkg.Str("element_id", elementID),
				logpkg.Str("attribute", name),
				logpkg.Int64("stored_ts", old.TS),
			)
			continue
		}
		if err := setJSON(b, key, attrValue{TS: ts, Deleted: true}); err != nil {
			return nil, err
		}
		removed = append(removed, name)
	}
	info.Modified = ts
	if err := setJSON(b, keyObject(objectID), info); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, b, "delete attributes"); err != nil {
		return nil, err
	}
	return removed, nil
}

// GetAttributes returns the live attributes of the object or of one element.
func (s *Store) GetAttributes(objectID, elementID string) (map[string]string, error) {
	scope := attrScope(objectID, elementID)
	out := map[string]string{}
	var derr error
	err := s.db.ScanPrefix(scope, func(key, value []byte) bool {
		var v attrValue
		if err := json.Unmarshal(value, &v); err != nil {
			derr = doerrors.CorruptionDetected(fmt.Sprintf("decode %q", key), err)
			return false
		}
		if !v.Deleted {
			out[string(key[len(scope):])] = v.Value
		}
		return true
	})
	if err != nil {
		return nil, doerrors.IOFailure("read attributes", err)
	}
	return out, derr
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
