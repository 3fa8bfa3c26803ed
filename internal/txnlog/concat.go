package txnlog

import (
	"context"
	"errors"
)

// ConcatenatedQueue presents a frozen legacy queue followed by the active
// embedded queue as one sequence space. Legacy records keep their sequence;
// embedded record s is presented as legacy.Len()+s. The boundary is fixed
// when the queue is built.
type ConcatenatedQueue struct {
	legacy   *LegacyQueue
	embedded *EmbeddedQueue
	boundary uint64
}

// NewConcatenated takes ownership of both queues.
func NewConcatenated(legacy *LegacyQueue, embedded *EmbeddedQueue) *ConcatenatedQueue {
	return &ConcatenatedQueue{legacy: legacy, embedded: embedded, boundary: legacy.Len()}
}

// Boundary is the number of legacy records, the first embedded sequence.
func (c *ConcatenatedQueue) Boundary() uint64 { return c.boundary }

// Legacy returns the frozen front queue.
func (c *ConcatenatedQueue) Legacy() *LegacyQueue { return c.legacy }

// Embedded returns the active back queue.
func (c *ConcatenatedQueue) Embedded() *EmbeddedQueue { return c.embedded }

// Append always targets the embedded queue.
func (c *ConcatenatedQueue) Append(ctx context.Context, rec Record) (uint64, error) {
	seq, err := c.embedded.Append(ctx, rec)
	if err != nil {
		return 0, err
	}
	return c.boundary + seq, nil
}

func (c *ConcatenatedQueue) Len() uint64 { return c.boundary + c.embedded.Len() }

func (c *ConcatenatedQueue) ReadFrom(from uint64) Scanner { return newScanner(c, from) }

func (c *ConcatenatedQueue) changed() <-chan struct{} { return c.embedded.changed() }

// readBatch serves from the legacy queue below the boundary and from the
// embedded queue above it, never mixing both in one batch.
func (c *ConcatenatedQueue) readBatch(from uint64, limit int) ([]Record, error) {
	if from < c.boundary {
		return c.legacy.readBatch(from, limit)
	}
	recs, err := c.embedded.readBatch(from-c.boundary, limit)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Seq += c.boundary
	}
	return recs, nil
}

// CommitCursor stores seq in the presented sequence space.
func (c *ConcatenatedQueue) CommitCursor(consumer string, seq uint64) error {
	return c.embedded.CommitCursor(consumer, seq)
}

func (c *ConcatenatedQueue) GetCursor(consumer string) (uint64, bool, error) {
	return c.embedded.GetCursor(consumer)
}

func (c *ConcatenatedQueue) Close() error {
	return errors.Join(c.legacy.Close(), c.embedded.Close())
}
