package transports

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/EUDAT-DTR/DTR-sub001/internal/config"
	"github.com/EUDAT-DTR/DTR-sub001/internal/runtime"
	httpserver "github.com/EUDAT-DTR/DTR-sub001/internal/server/http"
	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
)

func newTransport(t *testing.T) (*HTTPTransport, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Replication.MaxWaitMs = 50
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	ts := httptest.NewServer(httpserver.New(rt, nil).Handler())
	t.Cleanup(ts.Close)
	return NewHTTPTransport(func() string { return ts.URL }, nil), rt
}

func TestHTTPTransportPageAndCursor(t *testing.T) {
	tr, rt := newTransport(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := rt.StorageLog().CreateObject(ctx, id, "", true, 0)
		require.NoError(t, err)
	}
	require.NoError(t, rt.StorageLog().DeleteObject(ctx, "b", true, 0))

	page, err := tr.Page(ctx, PageRequest{From: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "b", page.Records[0].ObjectID)
	assert.Equal(t, uint64(3), page.Next)

	page, err = tr.Page(ctx, PageRequest{Filter: `kind == "DELETE_OBJECT"`})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, txnlog.KindDeleteObject, page.Records[0].Kind)

	_, found, err := tr.GetCursor(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, tr.CommitCursor(ctx, "c1", 2))
	seq, found, err := tr.GetCursor(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(2), seq)
}

func TestHTTPTransportSurfacesErrors(t *testing.T) {
	tr, _ := newTransport(t)
	_, err := tr.Page(context.Background(), PageRequest{Filter: "kind =="})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	err = tr.CommitCursor(context.Background(), "c1", 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_ARGUMENT")
}

func TestHTTPTransportFollow(t *testing.T) {
	tr, rt := newTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = rt.StorageLog().CreateObject(context.Background(), "x", "", true, 0)
		_, _ = rt.StorageLog().CreateObject(context.Background(), "y", "", true, 0)
	}()

	stop := errors.New("stop")
	var got []string
	err := tr.Follow(ctx, 0, "", func(r txnlog.Record) error {
		got = append(got, r.ObjectID)
		if len(got) == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"x", "y"}, got)
}
