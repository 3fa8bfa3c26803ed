package txnlog

import (
	"context"
	"fmt"
	"io"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
)

// source is what a scanner pulls from. A nil changed channel marks a frozen
// source: running out of records means the end.
type source interface {
	readBatch(from uint64, limit int) ([]Record, error)
	changed() <-chan struct{}
}

type scanner struct {
	src    source
	next   uint64
	buf    []Record
	closed bool
}

func newScanner(src source, from uint64) *scanner {
	return &scanner{src: src, next: from}
}

func (s *scanner) Next(ctx context.Context) (Record, error) {
	for {
		if s.closed {
			return Record{}, doerrors.Closed("scanner")
		}
		if len(s.buf) > 0 {
			r := s.buf[0]
			s.buf = s.buf[1:]
			s.next = r.Seq + 1
			return r, nil
		}
		if err := ctx.Err(); err != nil {
			return Record{}, fmt.Errorf("scan: %w", err)
		}
		// take the channel before reading so an append in between still wakes us
		ch := s.src.changed()
		recs, err := s.src.readBatch(s.next, readBatchSize)
		if err != nil {
			return Record{}, err
		}
		if len(recs) > 0 {
			s.buf = recs
			continue
		}
		if ch == nil {
			return Record{}, io.EOF
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return Record{}, fmt.Errorf("scan: %w", ctx.Err())
		}
	}
}

func (s *scanner) Close() error {
	s.closed = true
	s.buf = nil
	return nil
}
