package txnlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

const (
	migrateProgressEvery = 1000
	// OldDirSuffix is appended to the transaction directory moved aside by Migrate.
	OldDirSuffix = ".old"
)

// MigrateResult summarizes a migration.
type MigrateResult struct {
	OldDir   string `json:"oldDir"`
	Legacy   uint64 `json:"legacy"`
	Embedded uint64 `json:"embedded"`
	Copied   uint64 `json:"copied"`
	Cursors  int    `json:"cursors"`
}

// Migrate rewrites the transaction log in dir into a single embedded queue.
// The existing directory is moved to dir+".old" and every record is copied,
// in order, into a fresh queue at dir so sequences are unchanged. It must run
// while no server has the directory open. progress, when set, is called every
// 1000 records.
func Migrate(ctx context.Context, dir string, opts Options, progress func(copied, total uint64)) (MigrateResult, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With(logpkg.Component("txnlog"), logpkg.Str("op", "migrate"))

	hasLegacy, err := DetectLegacy(dir, opts.LegacySuffix)
	if err != nil {
		return MigrateResult{}, err
	}
	if !hasLegacy {
		return MigrateResult{}, doerrors.InvalidArgument(fmt.Sprintf("%s holds no legacy queue files", dir))
	}
	oldDir := dir + OldDirSuffix
	if _, err := os.Stat(oldDir); err == nil {
		return MigrateResult{}, doerrors.InvalidArgument(oldDir + " already exists")
	} else if !errors.Is(err, os.ErrNotExist) {
		return MigrateResult{}, doerrors.IOFailure("stat "+oldDir, err)
	}
	if err := os.Rename(dir, oldDir); err != nil {
		return MigrateResult{}, doerrors.IOFailure("move transaction directory aside", err)
	}
	logger.Info("transaction directory moved aside", logpkg.Str("from", dir), logpkg.Str("to", oldDir))

	src, err := Open(oldDir, opts)
	if err != nil {
		return MigrateResult{OldDir: oldDir}, err
	}
	defer src.Close()

	res := MigrateResult{OldDir: oldDir}
	if c, ok := src.(*ConcatenatedQueue); ok {
		res.Legacy = c.Boundary()
		res.Embedded = c.Embedded().Len()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, doerrors.IOFailure("create transaction directory", err)
	}
	dst, err := OpenEmbedded(filepath.Join(dir, EmbeddedDirName), opts)
	if err != nil {
		return res, err
	}
	defer dst.Close()
	if dst.Len() != 0 {
		return res, doerrors.InvalidArgument(dir + " already holds an embedded queue")
	}

	total := src.Len()
	start := time.Now()
	sc := src.ReadFrom(0)
	defer sc.Close()
	for res.Copied < total {
		rec, err := sc.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}
		if rec.ActualTime == 0 {
			rec.ActualTime = rec.Timestamp
		}
		seq, err := dst.Append(ctx, rec)
		if err != nil {
			return res, err
		}
		if seq != rec.Seq {
			return res, doerrors.Internal(fmt.Sprintf("migrated record %d landed at %d", rec.Seq, seq), nil)
		}
		res.Copied++
		if res.Copied%migrateProgressEvery == 0 {
			logger.Info("migration progress", logpkg.Uint64("copied", res.Copied), logpkg.Uint64("total", total))
			if progress != nil {
				progress(res.Copied, total)
			}
		}
	}
	if res.Copied != total {
		return res, doerrors.CorruptionDetected(fmt.Sprintf("copied %d of %d records", res.Copied, total), nil)
	}
	if c, ok := src.(*ConcatenatedQueue); ok {
		n, err := copyCursors(c.Embedded(), dst)
		if err != nil {
			return res, err
		}
		res.Cursors = n
	}
	logger.Info("migration complete",
		logpkg.Uint64("records", res.Copied),
		logpkg.Int("cursors", res.Cursors),
		logpkg.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// copyCursors carries consumer cursors from src to dst. Sequences are
// preserved by the copy, so cursor values move over unchanged.
func copyCursors(src, dst *EmbeddedQueue) (int, error) {
	var (
		n    int
		cerr error
	)
	err := src.DB().ScanPrefix(cursorPrefix, func(key, value []byte) bool {
		if len(value) < 8 {
			cerr = doerrors.CorruptionDetected(fmt.Sprintf("cursor %q has %d value bytes", key, len(value)), nil)
			return false
		}
		consumer := string(key[len(cursorPrefix):])
		if cerr = dst.CommitCursor(consumer, binary.BigEndian.Uint64(value[:8])); cerr != nil {
			return false
		}
		n++
		return true
	})
	if err != nil {
		return n, doerrors.IOFailure("scan consumer cursors", err)
	}
	return n, cerr
}
