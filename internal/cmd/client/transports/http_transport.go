package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
)

// HTTPTransport implements TxnTransport over the server's REST API.
type HTTPTransport struct {
	baseURL func() string
	client  *http.Client
}

// NewHTTPTransport constructs a transport for the API at baseURL().
func NewHTTPTransport(baseURL func() string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: baseURL, client: client}
}

func (t *HTTPTransport) do(req *http.Request, out any) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Code != "" {
		return fmt.Errorf("%s: %s (%s)", resp.Status, body.Error, body.Code)
	}
	if body.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, body.Error)
	}
	return errors.New(resp.Status)
}

func txnQuery(from uint64, filter string) url.Values {
	q := url.Values{}
	q.Set("from", strconv.FormatUint(from, 10))
	if filter != "" {
		q.Set("filter", filter)
	}
	return q
}

// Page reads one page via GET /v1/txns.
func (t *HTTPTransport) Page(ctx context.Context, req PageRequest) (Page, error) {
	q := txnQuery(req.From, req.Filter)
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Wait {
		q.Set("wait", "true")
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL()+"/v1/txns?"+q.Encode(), nil)
	if err != nil {
		return Page{}, err
	}
	var page Page
	err = t.do(hreq, &page)
	return page, err
}

// Follow reads the SSE stream of GET /v1/txns?follow=true.
func (t *HTTPTransport) Follow(ctx context.Context, from uint64, filter string, onRecord func(txnlog.Record) error) error {
	q := txnQuery(from, filter)
	q.Set("follow", "true")
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL()+"/v1/txns?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	hreq.Header.Set("Accept", "text/event-stream")
	resp, err := t.client.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var rec txnlog.Record
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		if err := onRecord(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// CommitCursor posts to /v1/txns/cursor.
func (t *HTTPTransport) CommitCursor(ctx context.Context, consumer string, seq uint64) error {
	b, err := json.Marshal(map[string]any{"consumer": consumer, "seq": seq})
	if err != nil {
		return err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL()+"/v1/txns/cursor", bytes.NewReader(b))
	if err != nil {
		return err
	}
	hreq.Header.Set("Content-Type", "application/json")
	return t.do(hreq, nil)
}

// GetCursor reads /v1/txns/cursor.
func (t *HTTPTransport) GetCursor(ctx context.Context, consumer string) (uint64, bool, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL()+"/v1/txns/cursor?consumer="+url.QueryEscape(consumer), nil)
	if err != nil {
		return 0, false, err
	}
	var out struct {
		Seq   uint64 `json:"seq"`
		Found bool   `json:"found"`
	}
	if err := t.do(hreq, &out); err != nil {
		return 0, false, err
	}
	return out.Seq, out.Found, nil
}
