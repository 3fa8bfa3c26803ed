package bstream

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forwardOnly hides any Seek/Len methods of the wrapped reader.
type forwardOnly struct{ r io.Reader }

func (f *forwardOnly) Read(p []byte) (int, error) { return f.r.Read(p) }

// countingReader records how many bytes were pulled from it.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

const content = "0123456789abcdefghijklmnopqrstuvwxyz"

func TestWindowMatchesSlice(t *testing.T) {
	cases := []struct {
		name        string
		start, len  int64
		want        string
		wrapForward bool
	}{
		{"whole", 0, Unbounded, content, false},
		{"prefix", 0, 5, "01234", false},
		{"middle", 10, 6, "abcdef", true},
		{"tail clamps", 30, 100, content[30:], true},
		{"start past end", 100, 5, "", true},
		{"start past end seeker", 100, 5, "", false},
		{"zero length", 4, 0, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var src io.Reader = strings.NewReader(content)
			if tc.wrapForward {
				src = &forwardOnly{r: src}
			}
			got, err := io.ReadAll(New(src, tc.start, tc.len))
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestSkipToStartIsLazy(t *testing.T) {
	src := &countingReader{r: strings.NewReader(content)}
	s := New(src, 10, 3)
	assert.Equal(t, 0, src.n)
	assert.Equal(t, int64(0), s.Position())

	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('a'), b)
	assert.Equal(t, int64(11), s.Position())
}

func TestEndSaturates(t *testing.T) {
	s := New(strings.NewReader(content), 5, math.MaxInt64)
	assert.Equal(t, int64(math.MaxInt64), s.End())
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, content[5:], string(got))
}

func TestReadByteAndEOF(t *testing.T) {
	s := New(&forwardOnly{r: strings.NewReader(content)}, 34, Unbounded)
	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('y'), b)
	_, err = s.ReadByte()
	require.NoError(t, err)
	_, err = s.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestSkipClampsToWindow(t *testing.T) {
	s := New(&forwardOnly{r: strings.NewReader(content)}, 2, 6)
	n, err := s.Skip(4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	n, err = s.Skip(10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = s.Read(make([]byte, 4))
	assert.Equal(t, io.EOF, err)
}

func TestAvailable(t *testing.T) {
	s := New(strings.NewReader(content), 30, 4)
	n, err := s.Available()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	s = New(&forwardOnly{r: strings.NewReader(content)}, 0, 4)
	n, err = s.Available()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	s = New(strings.NewReader(content), 100, 4)
	n, err = s.Available()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestResetWithoutCapability(t *testing.T) {
	s := New(&forwardOnly{r: strings.NewReader(content)}, 0, Unbounded)
	s.Mark(10)
	err := s.Reset()
	require.Error(t, err)
	assert.True(t, doerrors.Is(err, doerrors.ErrUnsupportedCapability))
	assert.False(t, s.MarkSupported())
}

func TestResetWithoutMark(t *testing.T) {
	s := New(NewMarkable(strings.NewReader(content)), 0, Unbounded)
	err := s.Reset()
	require.Error(t, err)
	assert.True(t, doerrors.Is(err, doerrors.ErrMarkNotSet))
}

func TestMarkResetReplays(t *testing.T) {
	s := New(NewMarkable(&forwardOnly{r: strings.NewReader(content)}), 3, 20)
	first := make([]byte, 2)
	_, err := io.ReadFull(s, first)
	require.NoError(t, err)
	assert.Equal(t, "34", string(first))

	s.Mark(8)
	k := make([]byte, 5)
	_, err = io.ReadFull(s, k)
	require.NoError(t, err)
	require.NoError(t, s.Reset())

	again := make([]byte, 5)
	_, err = io.ReadFull(s, again)
	require.NoError(t, err)
	assert.Equal(t, k, again)
	assert.Equal(t, "56789", string(again))

	rest, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, content[10:23], string(rest))
}

func TestMarkBeforeSkipAppliesAfterSkip(t *testing.T) {
	s := New(NewMarkable(&forwardOnly{r: strings.NewReader(content)}), 10, 10)
	s.Mark(4)
	// reset before any read leaves the window untouched
	require.NoError(t, s.Reset())

	got := make([]byte, 3)
	_, err := io.ReadFull(s, got)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	require.NoError(t, s.Reset())
	assert.Equal(t, int64(10), s.Position())
	_, err = io.ReadFull(s, got)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMarkInvalidatedPastLimit(t *testing.T) {
	m := NewMarkable(&forwardOnly{r: strings.NewReader(content)})
	m.Mark(2)
	_, err := io.ReadFull(m, make([]byte, 3))
	require.NoError(t, err)
	assert.True(t, doerrors.Is(m.Reset(), doerrors.ErrMarkNotSet))
}

// flakySkipper fails the first skip after moving part of the way.
type flakySkipper struct {
	r      *bytes.Reader
	failed bool
}

func (f *flakySkipper) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *flakySkipper) Skip(n int64) (int64, error) {
	if !f.failed {
		f.failed = true
		k := n / 2
		_, _ = f.r.Seek(k, io.SeekCurrent)
		return k, io.ErrUnexpectedEOF
	}
	_, _ = f.r.Seek(n, io.SeekCurrent)
	return n, nil
}

func TestPartialSkipResumes(t *testing.T) {
	src := &flakySkipper{r: bytes.NewReader([]byte(content))}
	s := New(src, 10, 3)
	_, err := s.Read(make([]byte, 3))
	require.Error(t, err)
	assert.True(t, doerrors.Is(err, doerrors.ErrIOFailure))
	assert.Equal(t, int64(5), s.Position())

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileSourceAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "el")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)

	s := New(f, 26, 4)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "qrst", string(got))
	require.NoError(t, s.Close())
	_, err = f.Read(make([]byte, 1))
	assert.Error(t, err)
}
