// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"

	"github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"
)

// PageRequest describes one bounded read of the transaction log.
type PageRequest struct {
	From   uint64
	Limit  int
	Filter string
	Wait   bool
}

// Page is a page of records and where to continue.
type Page struct {
	Records []txnlog.Record `json:"records"`
	Next    uint64          `json:"next"`
}

// TxnTransport reads the transaction log of a repository server.
type TxnTransport interface {
	Page(ctx context.Context, req PageRequest) (Page, error)
	// Follow streams records from from onward until ctx is done or onRecord
	// fails.
	Follow(ctx context.Context, from uint64, filter string, onRecord func(txnlog.Record) error) error
	CommitCursor(ctx context.Context, consumer string, seq uint64) error
	GetCursor(ctx context.Context, consumer string) (seq uint64, found bool, err error)
}

// HealthTransport checks server health.
type HealthTransport interface {
	Check(ctx context.Context, service string) (string, error)
	CheckJSON(ctx context.Context, service string) ([]byte, error)
}
