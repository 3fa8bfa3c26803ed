package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/EUDAT-DTR/DTR-sub001/internal/services/replication"
	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

const maxFilterLen = 2048

// TxnsController serves the transaction log to replicas: paged reads,
// SSE tailing and consumer cursors.
type TxnsController struct {
	svc    *replication.Service
	logger logpkg.Logger
}

// NewTxnsController creates a new transaction log controller.
func NewTxnsController(svc *replication.Service, logger logpkg.Logger) *TxnsController {
	return &TxnsController{svc: svc, logger: logger}
}

// RegisterRoutes registers transaction log routes with the given mux.
func (c *TxnsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/txns", c.handleTxns)
	mux.HandleFunc("/v1/txns/cursor", c.handleCursor)
}

// handleTxns returns a page of records, or tails with follow=true.
//
// Query: from (default 0), limit, filter (CEL), wait, follow. A follow
// request honours Last-Event-ID when from is absent.
func (c *TxnsController) handleTxns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	from, err := parseUint(q.Get("from"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from")
		return
	}
	if q.Get("from") == "" {
		if last := r.Header.Get("Last-Event-ID"); last != "" {
			if n, err := strconv.ParseUint(last, 10, 64); err == nil {
				from = n + 1
			}
		}
	}
	expr := q.Get("filter")
	if len(expr) > maxFilterLen {
		writeError(w, http.StatusBadRequest, "Filter too long")
		return
	}
	filter, err := txnlog.CompileFilter(expr)
	if err != nil {
		writeErr(w, err)
		return
	}

	if parseBool(q.Get("follow")) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if err := c.svc.Tail(from, filter, sseSink{w: w, r: r}); err != nil {
			c.logger.Warn("tail ended", logpkg.Uint64("from", from), logpkg.Err(err))
		}
		return
	}

	page, err := c.svc.ReadPage(r.Context(), from, parseLimit(q.Get("limit")), filter, parseBool(q.Get("wait")))
	if err != nil {
		writeErr(w, err)
		return
	}
	if page.Records == nil {
		page.Records = []txnlog.Record{}
	}
	writeJSON(w, txnPageResp{Records: page.Records, Next: page.Next})
}

// handleCursor commits (POST) or reads (GET) a consumer cursor.
func (c *TxnsController) handleCursor(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req cursorReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := c.svc.CommitCursor(req.Consumer, req.Seq); err != nil {
			writeErr(w, err)
			return
		}
		writeNoContent(w)
	case http.MethodGet:
		consumer := r.URL.Query().Get("consumer")
		seq, found, err := c.svc.GetCursor(consumer)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, cursorResp{Consumer: consumer, Seq: seq, Found: found})
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
