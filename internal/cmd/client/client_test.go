package client

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	transports "github.com/EUDAT-DTR/DTR-sub001/internal/cmd/client/transports"
	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
)

type fakeTxn struct {
	records []txnlog.Record
	cursors map[string]uint64
	lastReq transports.PageRequest
}

func newFakeTxn(n int) *fakeTxn {
	f := &fakeTxn{cursors: map[string]uint64{}}
	for i := 0; i < n; i++ {
		f.records = append(f.records, txnlog.Record{Seq: uint64(i), Kind: txnlog.KindCreateObject, ObjectID: "o"})
	}
	return f
}

func (f *fakeTxn) Page(_ context.Context, req transports.PageRequest) (transports.Page, error) {
	f.lastReq = req
	var p transports.Page
	for _, r := range f.records {
		if r.Seq < req.From {
			continue
		}
		if req.Limit > 0 && len(p.Records) >= req.Limit {
			break
		}
		p.Records = append(p.Records, r)
	}
	p.Next = req.From + uint64(len(p.Records))
	return p, nil
}

func (f *fakeTxn) Follow(ctx context.Context, from uint64, _ string, onRecord func(txnlog.Record) error) error {
	for _, r := range f.records {
		if r.Seq < from {
			continue
		}
		if err := onRecord(r); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func (f *fakeTxn) CommitCursor(_ context.Context, consumer string, seq uint64) error {
	f.cursors[consumer] = seq
	return nil
}

func (f *fakeTxn) GetCursor(_ context.Context, consumer string) (uint64, bool, error) {
	seq, ok := f.cursors[consumer]
	return seq, ok, nil
}

type fakeHealth struct{ status string }

func (h fakeHealth) Check(context.Context, string) (string, error) { return h.status, nil }

func (h fakeHealth) CheckJSON(context.Context, string) ([]byte, error) {
	return []byte(`{"status":"` + h.status + `"}`), nil
}

func run(t *testing.T, ctx context.Context, f *fakeTxn, args ...string) (string, error) {
	t.Helper()
	cmd := NewTxnCommand(f)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func decodeLines(t *testing.T, s string) []txnlog.Record {
	t.Helper()
	var recs []txnlog.Record
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line == "" {
			continue
		}
		var r txnlog.Record
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		recs = append(recs, r)
	}
	return recs
}

func TestTxnPagePrintsJSONLines(t *testing.T) {
	f := newFakeTxn(5)
	out, err := run(t, context.Background(), f, "page", "--from", "2", "--limit", "2", "--filter", `kind == "CREATE_OBJECT"`, "--wait")
	require.NoError(t, err)
	recs := decodeLines(t, out)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(2), recs[0].Seq)
	assert.Equal(t, uint64(3), recs[1].Seq)
	assert.True(t, f.lastReq.Wait)
	assert.Equal(t, `kind == "CREATE_OBJECT"`, f.lastReq.Filter)
}

func TestTxnTailResumesAndCommitsCursor(t *testing.T) {
	f := newFakeTxn(6)
	f.cursors["c"] = 2

	out, err := run(t, context.Background(), f, "tail", "--consumer", "c", "--limit", "3", "--commit-every", "2")
	require.NoError(t, err)
	recs := decodeLines(t, out)
	require.Len(t, recs, 3)
	assert.Equal(t, uint64(2), recs[0].Seq)
	assert.Equal(t, uint64(5), f.cursors["c"])
}

func TestTxnTailStopsOnCancel(t *testing.T) {
	f := newFakeTxn(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := run(t, ctx, f, "tail")
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, out), 2)
}

func TestTxnCursorCommitAndShow(t *testing.T) {
	f := newFakeTxn(0)
	out, err := run(t, context.Background(), f, "cursor", "--consumer", "c")
	require.NoError(t, err)
	assert.Contains(t, out, "no cursor")

	out, err = run(t, context.Background(), f, "cursor", "--consumer", "c", "--commit", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "c: 7")
}

func TestHealthCommand(t *testing.T) {
	cmd := NewHealthCommand(fakeHealth{status: "SERVING"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "SERVING")

	cmd = NewHealthCommand(fakeHealth{status: "SERVING"})
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json"})
	require.NoError(t, cmd.Execute())
	assert.JSONEq(t, `{"status":"SERVING"}`, strings.TrimSpace(out.String()))

	cmd = NewHealthCommand(fakeHealth{status: "NOT_SERVING"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)
	assert.Error(t, cmd.Execute())
}
