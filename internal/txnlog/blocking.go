package txnlog

import (
	"context"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
)

// changed returns a channel closed by the next append or by Close.
func (q *EmbeddedQueue) changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.notifyCh
}

// WaitForAppend blocks until the queue holds more than n records. It returns
// ctx's error on cancellation and a Closed error if the queue shuts down.
func (q *EmbeddedQueue) WaitForAppend(ctx context.Context, n uint64) error {
	for {
		q.mu.Lock()
		next, closed, ch := q.next, q.closed, q.notifyCh
		q.mu.Unlock()
		if next > n {
			return nil
		}
		if closed {
			return doerrors.Closed("embedded queue")
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
