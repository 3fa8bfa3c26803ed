package pebblestore

import (
	"context"
	"strings"
	"testing"
	"time"
)

type testMetrics struct {
	wrote        int
	read         int
	batchCommits int
	batchBytes   int
}

func (m *testMetrics) ObserveWrite(d time.Duration, bytes int) { m.wrote += bytes }
func (m *testMetrics) ObserveRead(d time.Duration, bytes int)  { m.read += bytes }
func (m *testMetrics) ObserveBatchCommit(d time.Duration, numOps int, bytes int) {
	m.batchCommits++
	m.batchBytes += bytes
}

func newTestDB(t *testing.T) (*DB, *testMetrics) {
	t.Helper()
	dir := t.TempDir()
	metrics := &testMetrics{}
	db, err := Open(Options{
		DataDir:       dir,
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       metrics,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, metrics
}

func TestCRUD(t *testing.T) {
	db, metrics := newTestDB(t)

	key := []byte("k1")
	val := []byte("v1")
	if err := db.Set(key, val); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(val) {
		t.Fatalf("got %q want %q", got, val)
	}

	if metrics.read == 0 {
		t.Fatalf("expected read metrics to record bytes")
	}

	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); err == nil {
		t.Fatalf("expected not found after delete")
	}
}

func TestBatchCommitMetrics(t *testing.T) {
	db, metrics := newTestDB(t)

	b := db.NewBatch()
	if err := b.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := b.Set([]byte("b"), []byte("2"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	if metrics.batchCommits != 1 {
		t.Fatalf("want 1 batch commit, got %d", metrics.batchCommits)
	}
	if metrics.batchBytes <= 0 {
		t.Fatalf("expected positive batch bytes")
	}
}

func TestFsyncModes(t *testing.T) {
	for in, want := range map[string]FsyncMode{"always": FsyncModeAlways, "Interval": FsyncModeInterval, "NEVER": FsyncModeNever} {
		got, err := ParseFsyncMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseFsyncMode(%q) = %v, %v", in, got, err)
		}
		if got.String() != strings.ToLower(in) {
			t.Fatalf("String() = %q", got.String())
		}
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}

	if w := groupCommitWindow(FsyncModeAlways, time.Second); w != 0 {
		t.Fatalf("always must not group-commit, got %v", w)
	}
	if w := groupCommitWindow(FsyncModeInterval, 0); w != defaultGroupCommit {
		t.Fatalf("interval default = %v", w)
	}
	if w := groupCommitWindow(FsyncModeInterval, 7*time.Millisecond); w != 7*time.Millisecond {
		t.Fatalf("interval = %v", w)
	}

	for _, tc := range []struct {
		mode    FsyncMode
		durable bool
	}{
		{FsyncModeUnspecified, true},
		{FsyncModeAlways, true},
		{FsyncModeInterval, true},
		{FsyncModeNever, false},
	} {
		db, err := Open(Options{DataDir: t.TempDir(), Fsync: tc.mode, FsyncInterval: 3 * time.Millisecond})
		if err != nil {
			t.Fatalf("open %v: %v", tc.mode, err)
		}
		if db.Durable() != tc.durable {
			t.Fatalf("%v: Durable() = %v, want %v", tc.mode, db.Durable(), tc.durable)
		}
		_ = db.Close()
	}
}

func TestDeleteObservesWrite(t *testing.T) {
	db, metrics := newTestDB(t)
	if err := db.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	before := metrics.wrote
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if metrics.wrote != before+1 {
		t.Fatalf("delete should record key bytes: %d -> %d", before, metrics.wrote)
	}
	if ok, err := db.Has([]byte("k")); err != nil || ok {
		t.Fatalf("has after delete: %v %v", ok, err)
	}
}

func TestCommitBatchHonorsCanceledContext(t *testing.T) {
	db, metrics := newTestDB(t)

	b := db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte("x"), []byte("1"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.CommitBatch(ctx, b); err != context.Canceled {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if ok, _ := db.Has([]byte("x")); ok {
		t.Fatalf("canceled batch must not be visible")
	}
	if metrics.batchCommits != 0 {
		t.Fatalf("canceled commit should not be observed")
	}
}

func TestPrefixHelpers(t *testing.T) {
	db, _ := newTestDB(t)

	for _, k := range []string{"q/e/1", "q/e/2", "q/e/3", "q/m", "r/e/9"} {
		if err := db.Set([]byte(k), []byte("v"+k)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	key, val, ok, err := db.LastWithPrefix([]byte("q/e/"))
	if err != nil || !ok {
		t.Fatalf("last: ok=%v err=%v", ok, err)
	}
	if string(key) != "q/e/3" || string(val) != "vq/e/3" {
		t.Fatalf("last = %q/%q", key, val)
	}

	var seen []string
	if err := db.ScanPrefix([]byte("q/e/"), func(k, _ []byte) bool {
		seen = append(seen, string(k))
		return len(seen) < 2
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != 2 || seen[0] != "q/e/1" || seen[1] != "q/e/2" {
		t.Fatalf("scan saw %v", seen)
	}

	if _, _, ok, _ := db.LastWithPrefix([]byte("z/")); ok {
		t.Fatalf("expected no keys under z/")
	}
	if _, err := db.Get([]byte("missing")); !IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
	if got := PrefixEnd([]byte{'a', 0xff}); string(got) != "b" {
		t.Fatalf("PrefixEnd = %q", got)
	}
}
