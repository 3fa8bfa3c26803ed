package txnlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDecodeLegacyLines(t *testing.T) {
	r, err := decodeLegacyLine(`1700000000000|2|obj\n1|content`)
	if err != nil {
		t.Fatalf("pipe line: %v", err)
	}
	if r.Kind != KindStoreElement || r.Timestamp != 1700000000000 || r.ObjectID != "obj\n1" || r.ElementID != "content" {
		t.Fatalf("pipe line decoded to %+v", r)
	}

	r, err = decodeLegacyLine("txn:a=5&at=1700000000009&oid=obj%2F1&ts=1700000000001&kv.title=Hello%20World&md.user=alice")
	if err != nil {
		t.Fatalf("header line: %v", err)
	}
	if r.Kind != KindSetAttributes || r.ObjectID != "obj/1" || r.Timestamp != 1700000000001 || r.ActualTime != 1700000000009 {
		t.Fatalf("header line decoded to %+v", r)
	}
	if r.Attributes["title"] != "Hello World" || r.Metadata["user"] != "alice" || r.Keys != nil {
		t.Fatalf("header maps decoded to %+v", r)
	}

	r, err = decodeLegacyLine("txn:a=6&oid=o&ts=5&kv.a=&kv.b=")
	if err != nil {
		t.Fatalf("delete attributes: %v", err)
	}
	if r.Kind != KindDeleteAttributes || strings.Join(r.Keys, ",") != "a,b" || r.Attributes != nil {
		t.Fatalf("delete attributes decoded to %+v", r)
	}

	for _, bad := range []string{
		"1700000000000|2|obj",
		"abc|2|o|e",
		"1|99|o|e",
		"txn:oid=o&ts=1",
		"txn:a=1&ts=nope",
	} {
		if _, err := decodeLegacyLine(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLegacyQueueReadsInIndexOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index"), "100\t10\t\n200\t2\t\n")
	writeFile(t, filepath.Join(dir, "10.q"), "100|0|a|\n\n101|2|a|x\n")
	writeFile(t, filepath.Join(dir, "2.q"), "200|1|a|\n")

	q, err := OpenLegacy(dir, Options{})
	if err != nil {
		t.Fatalf("open legacy: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	if q.Len() != 3 || q.LastTimestamp() != 200 {
		t.Fatalf("len = %d last = %d", q.Len(), q.LastTimestamp())
	}
	files := q.Files()
	if len(files) != 2 || files[0].Number != 10 || files[1].FirstSeq != 2 {
		t.Fatalf("files = %+v", files)
	}

	all, err := ReadAll(context.Background(), q, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	kinds := []Kind{KindCreateObject, KindStoreElement, KindDeleteObject}
	for i, r := range all {
		if r.Seq != uint64(i) || r.Kind != kinds[i] {
			t.Fatalf("record %d: %+v", i, r)
		}
	}

	sc := q.ReadFrom(3)
	if _, err := sc.Next(context.Background()); err != io.EOF {
		t.Fatalf("expected EOF at end of frozen queue, got %v", err)
	}
	if _, err := q.Append(context.Background(), rec(KindCreateObject, "o")); doerrors.CodeOf(err) != doerrors.CodeFrozen {
		t.Fatalf("expected frozen, got %v", err)
	}
}

func TestLegacyQueueNumericOrderWithoutIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "10.q"), "300|0|late|\n")
	writeFile(t, filepath.Join(dir, "9.q"), "100|0|early|\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	q, err := OpenLegacy(dir, Options{})
	if err != nil {
		t.Fatalf("open legacy: %v", err)
	}
	all, err := ReadAll(context.Background(), q, 0)
	if err != nil || len(all) != 2 {
		t.Fatalf("read: %v %d", err, len(all))
	}
	if all[0].ObjectID != "early" || all[1].ObjectID != "late" {
		t.Fatalf("order: %+v", all)
	}
}

func TestLegacyQueueSeeksPastCheckpoints(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&b, "%d|4|obj-%d|\n", 1000+i, i)
	}
	writeFile(t, filepath.Join(dir, "0.q"), b.String())

	q, err := OpenLegacy(dir, Options{})
	if err != nil {
		t.Fatalf("open legacy: %v", err)
	}
	recs, err := q.readBatch(200, 10)
	if err != nil {
		t.Fatalf("read batch: %v", err)
	}
	if len(recs) != 10 || recs[0].Seq != 200 || recs[0].ObjectID != "obj-200" || recs[9].ObjectID != "obj-209" {
		t.Fatalf("unexpected batch: %+v", recs)
	}
	recs, err = q.readBatch(295, 100)
	if err != nil || len(recs) != 5 || recs[4].Seq != 299 {
		t.Fatalf("tail batch: %v %+v", err, recs)
	}
}

func TestLegacyCorruptionFailsOpen(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "0.q"), "100|0|a|\nthis is not a record\n")
	_, err := OpenLegacy(dir, Options{})
	var e *doerrors.Error
	if !doerrors.As(err, &e) || e.Code != doerrors.CodeCorruptionDetected {
		t.Fatalf("expected corruption, got %v", err)
	}
	if e.Details["offset"] != int64(len("100|0|a|\n")) {
		t.Fatalf("offset detail = %v", e.Details["offset"])
	}

	if _, err := Open(dir, testOptions()); doerrors.CodeOf(err) != doerrors.CodeCorruptionDetected {
		t.Fatalf("open should fail on corrupt legacy data, got %v", err)
	}
}

func TestLegacyIndexPointsAtMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index"), "100\t7\t\n")
	writeFile(t, filepath.Join(dir, "1.q"), "100|0|a|\n")
	if _, err := OpenLegacy(dir, Options{}); doerrors.CodeOf(err) != doerrors.CodeIOFailure {
		t.Fatalf("expected io failure, got %v", err)
	}
}
