package bstream

import (
	"io"
	"math"
	"sync"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
)

// MarkResetter is implemented by sources that can replay bytes after a mark.
type MarkResetter interface {
	Mark(readLimit int)
	Reset() error
}

// Skipper is implemented by sources with a cheaper skip than reading.
type Skipper interface {
	Skip(n int64) (int64, error)
}

// Unbounded is the length that makes a window extend to the end of the source.
const Unbounded int64 = -1

// Stream is a read-only view over the bytes [start, start+length) of a
// forward-only source. The skip to start is deferred until first access.
//
// A Stream is not safe for concurrent reads; Mark and Reset are serialized.
type Stream struct {
	src   io.Reader
	start int64
	end   int64
	pos   int64

	// exhausted is set when the source ended before start was reached.
	exhausted bool

	mu            sync.Mutex
	mark          int64
	lastReadLimit int
}

// New returns a Stream over src restricted to [start, start+length). A
// negative start is treated as zero and a negative length as Unbounded. The
// end saturates at math.MaxInt64.
func New(src io.Reader, start, length int64) *Stream {
	if start < 0 {
		start = 0
	}
	end := int64(math.MaxInt64)
	if length >= 0 {
		if length > math.MaxInt64-start {
			length = math.MaxInt64 - start
		}
		end = start + length
	}
	return &Stream{src: src, start: start, end: end, mark: -1}
}

// Start returns the window start offset.
func (s *Stream) Start() int64 { return s.start }

// End returns the exclusive window end offset.
func (s *Stream) End() int64 { return s.end }

// Position returns the current offset within the source. It is zero until the
// skip to start happens.
func (s *Stream) Position() int64 { return s.pos }

// skipStart advances the source to start. A partial skip that returns an error
// leaves pos at the bytes actually skipped so a retry resumes from there.
func (s *Stream) skipStart() error {
	if s.pos >= s.start {
		return nil
	}
	for s.pos < s.start {
		n, err := skipSource(s.src, s.start-s.pos)
		s.pos += n
		if err == io.EOF || (err == nil && n <= 0) {
			s.pos = s.start
			s.exhausted = true
			break
		}
		if err != nil {
			return doerrors.IOFailure("skip to window start", err)
		}
	}
	s.mu.Lock()
	if s.mark >= 0 {
		if m, ok := s.src.(MarkResetter); ok {
			m.Mark(s.lastReadLimit)
		}
		s.mark = s.pos
	}
	s.mu.Unlock()
	return nil
}

func (s *Stream) remaining() int64 {
	if s.exhausted || s.pos >= s.end {
		return 0
	}
	return s.end - s.pos
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.skipStart(); err != nil {
		return 0, err
	}
	rem := s.remaining()
	if rem == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := s.src.Read(p)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// ReadByte implements io.ByteReader.
func (s *Stream) ReadByte() (byte, error) {
	var b [1]byte
	for {
		n, err := s.Read(b[:])
		if n == 1 {
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Available returns how many bytes can be read without blocking, bounded by
// the remaining window. Sources that expose Len or Buffered report their
// estimate; others report zero.
func (s *Stream) Available() (int64, error) {
	if err := s.skipStart(); err != nil {
		return 0, err
	}
	var est int64
	switch src := s.src.(type) {
	case interface{ Buffered() int }:
		est = int64(src.Buffered())
	case interface{ Len() int }:
		est = int64(src.Len())
	}
	if rem := s.remaining(); est > rem {
		est = rem
	}
	return est, nil
}

// Skip advances up to n bytes within the window and returns how many were
// skipped.
func (s *Stream) Skip(n int64) (int64, error) {
	if err := s.skipStart(); err != nil {
		return 0, err
	}
	if rem := s.remaining(); n > rem {
		n = rem
	}
	if n <= 0 {
		return 0, nil
	}
	skipped, err := skipSource(s.src, n)
	s.pos += skipped
	if err == io.EOF {
		err = nil
	}
	return skipped, err
}

// Mark records the current position for Reset. Called before the skip to
// start, the read limit is remembered and the source is marked once the skip
// completes.
func (s *Stream) Mark(readLimit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= s.start {
		if m, ok := s.src.(MarkResetter); ok {
			m.Mark(readLimit)
		}
	} else {
		s.lastReadLimit = readLimit
	}
	s.mark = s.pos
}

// Reset rewinds to the last Mark.
func (s *Stream) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.src.(MarkResetter)
	if !ok {
		return doerrors.UnsupportedCapability("mark/reset")
	}
	if s.mark < 0 {
		return doerrors.MarkNotSet()
	}
	if s.pos < s.start {
		// marked before anything was read; nothing to rewind
		return nil
	}
	if err := m.Reset(); err != nil {
		return err
	}
	s.pos = s.mark
	return nil
}

// MarkSupported reports whether Reset can succeed.
func (s *Stream) MarkSupported() bool {
	_, ok := s.src.(MarkResetter)
	return ok
}

// Close closes the source when it is an io.Closer.
func (s *Stream) Close() error {
	if c, ok := s.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// skipSource discards up to n bytes from r. Seekers are clamped to their size
// so a short source reports the bytes it really had.
func skipSource(r io.Reader, n int64) (int64, error) {
	switch src := r.(type) {
	case Skipper:
		return src.Skip(n)
	case io.Seeker:
		cur, err := src.Seek(0, io.SeekCurrent)
		if err != nil {
			break
		}
		size, err := src.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		target := cur + n
		if target > size || target < cur {
			target = size
		}
		if _, err := src.Seek(target, io.SeekStart); err != nil {
			return 0, err
		}
		if target-cur < n {
			return target - cur, io.EOF
		}
		return n, nil
	}
	return io.CopyN(io.Discard, r, n)
}
