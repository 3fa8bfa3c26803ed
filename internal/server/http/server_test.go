package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/EUDAT-DTR/DTR-sub001/internal/config"
	"github.com/EUDAT-DTR/DTR-sub001/internal/runtime"
	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

func newServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Replication.MaxWaitMs = 50
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text", Outputs: []string{"null"}})
	require.NoError(t, err)
	return New(rt, logger), rt
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newServer(t)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestMetricsHandler(t *testing.T) {
	s, _ := newServer(t)
	do(t, s, http.MethodPost, "/v1/ops", `{"op":"create_object","objectID":"a","logTxn":true}`)
	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dorepo_txnlog_appends_total")
}

func TestOpsAndTxnPaging(t *testing.T) {
	s, _ := newServer(t)
	ops := []string{
		`{"op":"create_object","objectID":"obj","logTxn":true,"timestamp":1000}`,
		`{"op":"store_element","objectID":"obj","elementID":"content","data":"aGVsbG8gd29ybGQ=","metadata":{"user":"alice"}}`,
		`{"op":"set_attributes","objectID":"obj","attributes":{"title":"t"}}`,
		`{"op":"delete_attributes","objectID":"obj","keys":["title"],"metadata":{}}`,
	}
	for _, body := range ops {
		w := do(t, s, http.MethodPost, "/v1/ops", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := do(t, s, http.MethodGet, "/v1/txns?from=0&limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Records []txnlog.Record `json:"records"`
		Next    uint64          `json:"next"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Records, 2)
	assert.Equal(t, uint64(2), page.Next)
	assert.Equal(t, txnlog.KindCreateObject, page.Records[0].Kind)
	assert.Equal(t, int64(1000), page.Records[0].Timestamp)
	assert.Equal(t, "alice", page.Records[1].Metadata["user"])

	// the unlogged set_attributes is absent: the next page holds only the delete
	w = do(t, s, http.MethodGet, "/v1/txns?from=2", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Records, 1)
	assert.Equal(t, txnlog.KindDeleteAttributes, page.Records[0].Kind)
	assert.Equal(t, []string{"title"}, page.Records[0].Keys)
	assert.Equal(t, uint64(3), page.Next)
}

func TestTxnFilter(t *testing.T) {
	s, _ := newServer(t)
	for _, id := range []string{"a", "b", "c"} {
		do(t, s, http.MethodPost, "/v1/ops", `{"op":"create_object","objectID":"`+id+`","logTxn":true}`)
	}
	w := do(t, s, http.MethodGet, `/v1/txns?filter=object_id+%3D%3D+%22b%22`, "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Records []txnlog.Record `json:"records"`
		Next    uint64          `json:"next"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Records, 1)
	assert.Equal(t, "b", page.Records[0].ObjectID)
	assert.Equal(t, uint64(3), page.Next)

	w = do(t, s, http.MethodGet, `/v1/txns?filter=object_id+%2B+1`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpErrorsMapToStatus(t *testing.T) {
	s, _ := newServer(t)
	w := do(t, s, http.MethodPost, "/v1/ops", `{"op":"delete_object","objectID":"missing","logTxn":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")

	do(t, s, http.MethodPost, "/v1/ops", `{"op":"create_object","objectID":"x"}`)
	w = do(t, s, http.MethodPost, "/v1/ops", `{"op":"create_object","objectID":"x"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodPost, "/v1/ops", `{"op":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestElementRange(t *testing.T) {
	s, _ := newServer(t)
	do(t, s, http.MethodPost, "/v1/ops", `{"op":"create_object","objectID":"obj"}`)
	do(t, s, http.MethodPost, "/v1/ops", `{"op":"store_element","objectID":"obj","elementID":"content","data":"aGVsbG8gd29ybGQ="}`)

	w := do(t, s, http.MethodGet, "/v1/objects/obj/elements/content?start=6&len=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wor", w.Body.String())
	assert.Equal(t, "11", w.Header().Get("X-Element-Size"))

	w = do(t, s, http.MethodGet, "/v1/objects/obj/elements/content", "")
	assert.Equal(t, "hello world", w.Body.String())

	w = do(t, s, http.MethodGet, "/v1/objects/obj/elements/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodGet, "/v1/objects/obj", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"content"`)
}

func TestCursorEndpoints(t *testing.T) {
	s, _ := newServer(t)
	do(t, s, http.MethodPost, "/v1/ops", `{"op":"create_object","objectID":"a","logTxn":true}`)

	w := do(t, s, http.MethodPost, "/v1/txns/cursor", `{"consumer":"replica-1","seq":1}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, http.MethodGet, "/v1/txns/cursor?consumer=replica-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"consumer":"replica-1","seq":1,"found":true}`, w.Body.String())

	w = do(t, s, http.MethodPost, "/v1/txns/cursor", `{"consumer":"","seq":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFollowStreamsSSE(t *testing.T) {
	s, rt := newServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/txns?follow=true", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	_, err = rt.StorageLog().CreateObject(context.Background(), "tailed", "", true, 0)
	require.NoError(t, err)

	sc := bufio.NewScanner(resp.Body)
	var id, data string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "id: ") {
			id = strings.TrimPrefix(line, "id: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, data)
	assert.Equal(t, "0", id)
	var rec txnlog.Record
	require.NoError(t, json.Unmarshal([]byte(data), &rec))
	assert.Equal(t, "tailed", rec.ObjectID)
}
