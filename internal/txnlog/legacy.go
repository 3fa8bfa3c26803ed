package txnlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/EUDAT-DTR/DTR-sub001/internal/bstream"
	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

const (
	legacyName      = "legacy"
	legacyIndexName = "index"
	// checkpointEvery records a byte offset every so many records so reads
	// can start near their target.
	checkpointEvery = 128
)

// LegacyFileInfo describes one legacy queue file.
type LegacyFileInfo struct {
	Number    int64  `json:"number"`
	FirstTime int64  `json:"firstTime"`
	Path      string `json:"path"`
	FirstSeq  uint64 `json:"firstSeq"`
	Records   uint64 `json:"records"`
}

type legacyFile struct {
	LegacyFileInfo
	size        int64
	checkpoints []int64
}

// LegacyQueue is a frozen, read-only view over legacy queue files. All files
// are scanned once at open to count records and validate them.
type LegacyQueue struct {
	dir           string
	files         []legacyFile
	total         uint64
	lastTimestamp int64
	metrics       Metrics

	mu     sync.Mutex
	closed bool
}

// OpenLegacy opens the legacy queue files in dir. Files are ordered by the
// index file when one is present and by numeric file name otherwise. A record
// that cannot be decoded fails the open with CorruptionDetected.
func OpenLegacy(dir string, opts Options) (*LegacyQueue, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With(logpkg.Component("txnlog"), logpkg.Str("queue", legacyName))

	files, err := listLegacyFiles(dir, opts.LegacySuffix)
	if err != nil {
		return nil, err
	}
	q := &LegacyQueue{dir: dir, metrics: opts.Metrics}
	for i := range files {
		f := &files[i]
		f.FirstSeq = q.total
		last, err := scanLegacyFile(f)
		if err != nil {
			logger.Error("legacy queue file rejected", logpkg.Str("file", f.Path), logpkg.Err(err))
			return nil, err
		}
		if last > q.lastTimestamp {
			q.lastTimestamp = last
		}
		q.total += f.Records
		logger.Debug("legacy queue file scanned",
			logpkg.Str("file", f.Path),
			logpkg.Uint64("records", f.Records),
		)
	}
	q.files = files
	return q, nil
}

func listLegacyFiles(dir, suffix string) ([]legacyFile, error) {
	idx, err := os.ReadFile(filepath.Join(dir, legacyIndexName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, doerrors.IOFailure("read legacy index", err)
	}
	var files []legacyFile
	if len(strings.TrimSpace(string(idx))) > 0 {
		for n, line := range strings.Split(string(idx), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			parts := strings.Split(line, "\t")
			if len(parts) < 2 {
				return nil, doerrors.CorruptionDetected(fmt.Sprintf("legacy index line %d: %q", n+1, line), nil)
			}
			first, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
			num, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
			if err1 != nil || err2 != nil {
				return nil, doerrors.CorruptionDetected(fmt.Sprintf("legacy index line %d: %q", n+1, line), errors.Join(err1, err2))
			}
			files = append(files, legacyFile{LegacyFileInfo: LegacyFileInfo{
				Number:    num,
				FirstTime: first,
				Path:      filepath.Join(dir, strconv.FormatInt(num, 10)+suffix),
			}})
		}
		return files, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, doerrors.IOFailure("list legacy queue files", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		num, err := strconv.ParseInt(strings.TrimSuffix(name, suffix), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, legacyFile{LegacyFileInfo: LegacyFileInfo{
			Number: num,
			Path:   filepath.Join(dir, name),
		}})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Number < files[j].Number })
	return files, nil
}

// scanLegacyFile counts and validates the records of f and fills in its
// checkpoints. It returns the largest timestamp seen.
func scanLegacyFile(f *legacyFile) (int64, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return 0, doerrors.IOFailure("open legacy queue file", err).WithDetail("file", f.Path)
	}
	defer fh.Close()

	var lastTS int64
	var off int64
	br := bufio.NewReader(fh)
	for {
		line, err := br.ReadString('\n')
		start := off
		off += int64(len(line))
		if text := strings.TrimRight(line, "\r\n"); text != "" {
			rec, derr := decodeLegacyLine(text)
			if derr != nil {
				return 0, legacyCorruption(f.Path, start, derr)
			}
			if f.Records%checkpointEvery == 0 {
				f.checkpoints = append(f.checkpoints, start)
			}
			if f.FirstTime == 0 {
				f.FirstTime = rec.Timestamp
			}
			if rec.Timestamp > lastTS {
				lastTS = rec.Timestamp
			}
			f.Records++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, doerrors.IOFailure("read legacy queue file", err).WithDetail("file", f.Path)
		}
	}
	f.size = off
	return lastTS, nil
}

// Len returns the number of legacy records.
func (q *LegacyQueue) Len() uint64 { return q.total }

// LastTimestamp returns the largest record timestamp in the queue.
func (q *LegacyQueue) LastTimestamp() int64 { return q.lastTimestamp }

// Files describes the queue files in sequence order.
func (q *LegacyQueue) Files() []LegacyFileInfo {
	out := make([]LegacyFileInfo, len(q.files))
	for i, f := range q.files {
		out[i] = f.LegacyFileInfo
	}
	return out
}

// Append always fails: legacy queues never grow.
func (q *LegacyQueue) Append(context.Context, Record) (uint64, error) {
	return 0, doerrors.Frozen("legacy queue")
}

// ReadFrom returns a finite scanner.
func (q *LegacyQueue) ReadFrom(from uint64) Scanner { return newScanner(q, from) }

func (q *LegacyQueue) changed() <-chan struct{} { return nil }

func (q *LegacyQueue) readBatch(from uint64, limit int) ([]Record, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return nil, doerrors.Closed("legacy queue")
	}
	if from >= q.total {
		return nil, nil
	}
	i := sort.Search(len(q.files), func(i int) bool {
		f := q.files[i]
		return f.FirstSeq+f.Records > from
	})
	out := make([]Record, 0, limit)
	for ; i < len(q.files) && len(out) < limit; i++ {
		recs, err := q.files[i].read(from, limit-len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
		from += uint64(len(recs))
	}
	q.metrics.ObserveRead(legacyName, len(out))
	return out, nil
}

// read decodes up to limit records of f starting at sequence from. The file
// is windowed from the nearest checkpoint to its scanned size.
func (f *legacyFile) read(from uint64, limit int) ([]Record, error) {
	if f.Records == 0 || from >= f.FirstSeq+f.Records {
		return nil, nil
	}
	rel := from - f.FirstSeq
	cp := rel / checkpointEvery
	off := f.checkpoints[cp]
	skip := rel % checkpointEvery

	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, doerrors.IOFailure("open legacy queue file", err).WithDetail("file", f.Path)
	}
	win := bstream.New(fh, off, f.size-off)
	defer win.Close()

	seq := f.FirstSeq + cp*checkpointEvery
	pos := off
	br := bufio.NewReader(win)
	out := make([]Record, 0, limit)
	for len(out) < limit && seq < f.FirstSeq+f.Records {
		line, err := br.ReadString('\n')
		start := pos
		pos += int64(len(line))
		if text := strings.TrimRight(line, "\r\n"); text != "" {
			if skip > 0 {
				skip--
				seq++
			} else {
				rec, derr := decodeLegacyLine(text)
				if derr != nil {
					return nil, legacyCorruption(f.Path, start, derr)
				}
				rec.Seq = seq
				out = append(out, rec)
				seq++
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, doerrors.IOFailure("read legacy queue file", err).WithDetail("file", f.Path)
		}
	}
	return out, nil
}

// Close releases the queue. Files are only held open during reads.
func (q *LegacyQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
