package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
)

// sseSink implements replication.Sink for Server-Sent Events.
//
// Each record is sent as a data event whose id is the record sequence, so
// a reconnecting client can resume from Last-Event-ID + 1.
type sseSink struct {
	w http.ResponseWriter
	r *http.Request
}

// Send formats and sends a record as an SSE data event.
func (s sseSink) Send(rec txnlog.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("id: " + strconv.FormatUint(rec.Seq, 10) + "\ndata: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return nil
}

// Context returns the request context for cancellation.
func (s sseSink) Context() context.Context {
	return s.r.Context()
}

// Flush flushes the HTTP response writer if it supports flushing.
func (s sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
