package txnlog

import (
	"encoding/binary"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	pebblestore "github.com/EUDAT-DTR/DTR-sub001/internal/storage/pebble"
)

// CommitCursor stores the next sequence a consumer wants idempotently.
// If seq is lower than the stored value the commit is ignored.
func (q *EmbeddedQueue) CommitCursor(consumer string, seq uint64) error {
	if consumer == "" {
		return doerrors.InvalidArgument("consumer name is required")
	}
	q.appendLock <- struct{}{}
	defer func() { <-q.appendLock }()

	key := keyCursor(consumer)
	cur, err := q.db.Get(key)
	if err == nil && len(cur) >= 8 {
		if seq <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
	} else if err != nil && !pebblestore.IsNotFound(err) {
		return doerrors.IOFailure("read cursor", err)
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	if err := q.db.Set(key, b[:]); err != nil {
		return doerrors.IOFailure("write cursor", err)
	}
	return nil
}

// GetCursor loads the stored cursor of a consumer.
func (q *EmbeddedQueue) GetCursor(consumer string) (uint64, bool, error) {
	cur, err := q.db.Get(keyCursor(consumer))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, doerrors.IOFailure("read cursor", err)
	}
	if len(cur) < 8 {
		return 0, false, doerrors.CorruptionDetected("malformed cursor for "+consumer, nil)
	}
	return binary.BigEndian.Uint64(cur[:8]), true, nil
}
