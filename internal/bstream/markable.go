package bstream

import (
	"io"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
)

// Markable adds Mark and Reset to a forward-only reader by recording the
// bytes read since the last mark. The mark is dropped once more than the read
// limit has been consumed past it.
type Markable struct {
	r      io.Reader
	buf    []byte
	off    int
	limit  int
	marked bool
}

// NewMarkable wraps r. If r already supports mark/reset it is still wrapped
// so that the replay buffer semantics are uniform.
func NewMarkable(r io.Reader) *Markable {
	return &Markable{r: r}
}

// Read implements io.Reader.
func (m *Markable) Read(p []byte) (int, error) {
	if m.off < len(m.buf) {
		n := copy(p, m.buf[m.off:])
		m.off += n
		return n, nil
	}
	n, err := m.r.Read(p)
	if n > 0 && m.marked {
		m.buf = append(m.buf, p[:n]...)
		m.off = len(m.buf)
		if len(m.buf) > m.limit {
			m.marked = false
			m.buf = nil
			m.off = 0
		}
	}
	return n, err
}

// Mark remembers the current position. Up to readLimit bytes may be read
// before Reset stops working.
func (m *Markable) Mark(readLimit int) {
	if m.off < len(m.buf) {
		rest := append([]byte(nil), m.buf[m.off:]...)
		m.buf = rest
	} else {
		m.buf = m.buf[:0]
	}
	m.off = 0
	m.limit = readLimit
	m.marked = true
}

// Reset rewinds to the last mark.
func (m *Markable) Reset() error {
	if !m.marked {
		return doerrors.MarkNotSet()
	}
	m.off = 0
	return nil
}

// Skip discards up to n bytes, keeping the replay buffer consistent.
func (m *Markable) Skip(n int64) (int64, error) {
	var skipped int64
	var scratch [4096]byte
	for skipped < n {
		want := n - skipped
		if want > int64(len(scratch)) {
			want = int64(len(scratch))
		}
		k, err := m.Read(scratch[:want])
		skipped += int64(k)
		if err != nil {
			return skipped, err
		}
		if k == 0 {
			return skipped, io.EOF
		}
	}
	return skipped, nil
}

// Buffered returns the number of bytes readable without touching the source.
func (m *Markable) Buffered() int {
	n := len(m.buf) - m.off
	switch src := m.r.(type) {
	case interface{ Buffered() int }:
		n += src.Buffered()
	case interface{ Len() int }:
		n += src.Len()
	}
	return n
}

// Close closes the wrapped reader when it is an io.Closer.
func (m *Markable) Close() error {
	if c, ok := m.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
