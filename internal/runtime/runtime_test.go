package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "github.com/EUDAT-DTR/DTR-sub001/internal/config"
	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
)

func testConfig(dir string) cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.DataDir = dir
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t.TempDir())})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); !doerrors.Is(err, doerrors.ErrClosed) {
		t.Fatalf("expected closed after close, got %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Fsync = "sometimes"
	if _, err := Open(Options{Config: cfg}); doerrors.CodeOf(err) != doerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestMutationsAreLogged(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(Options{Config: testConfig(dir)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	sl := rt.StorageLog()
	if _, err := sl.CreateObject(ctx, "obj", "", true, 1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := sl.StoreDataElement(ctx, "obj", "content", strings.NewReader("abc"), false, true, 1001); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := sl.SetAttributesWithMetadata(ctx, "obj", "", map[string]string{"k": "v"}, nil, 1002); err != nil {
		t.Fatalf("set attrs: %v", err)
	}
	if got := rt.Queue().Len(); got != 2 {
		t.Fatalf("expected 2 records, got %d", got)
	}
	if _, ok := rt.Queue().(*txnlog.EmbeddedQueue); !ok {
		t.Fatalf("fresh directory must open an embedded queue, got %T", rt.Queue())
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt, err = Open(Options{Config: testConfig(dir)})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt.Close()
	recs, err := txnlog.ReadAll(ctx, rt.Queue(), 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 2 || recs[1].Kind != txnlog.KindStoreElement {
		t.Fatalf("unexpected records after reopen: %+v", recs)
	}
	attrs, err := rt.Store().GetAttributes("obj", "")
	if err != nil || attrs["k"] != "v" {
		t.Fatalf("unlogged mutation must still apply: %v %v", attrs, err)
	}
}

func TestOpenWithLegacyQueue(t *testing.T) {
	dir := t.TempDir()
	txnDir := filepath.Join(dir, "txns")
	if err := os.MkdirAll(txnDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := "1000|0|a|\n1001|1|a|\n"
	if err := os.WriteFile(filepath.Join(txnDir, "0.q"), []byte(body), 0o644); err != nil {
		t.Fatalf("write legacy: %v", err)
	}
	rt, err := Open(Options{Config: testConfig(dir)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.Queue().(*txnlog.ConcatenatedQueue); !ok {
		t.Fatalf("expected concatenated queue, got %T", rt.Queue())
	}
	if rt.Embedded() == nil {
		t.Fatalf("embedded queue must be reachable")
	}
	if _, err := rt.StorageLog().CreateObject(context.Background(), "b", "", true, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := rt.Queue().Len(); got != 3 {
		t.Fatalf("expected 3 records, got %d", got)
	}
	cs, ok := rt.Cursors()
	if !ok {
		t.Fatalf("expected cursor store")
	}
	if err := cs.CommitCursor("replica-1", 3); err != nil {
		t.Fatalf("commit cursor: %v", err)
	}
}
