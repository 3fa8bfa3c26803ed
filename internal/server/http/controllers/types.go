package controllers

import "github.com/EUDAT-DTR/DTR-sub001/internal/txnlog"

// Common request/response types for HTTP controllers

// txnPageResp is one page of transaction records.
type txnPageResp struct {
	Records []txnlog.Record `json:"records"`
	Next    uint64          `json:"next"`
}

// cursorReq commits a consumer cursor.
type cursorReq struct {
	Consumer string `json:"consumer"`
	Seq      uint64 `json:"seq"`
}

// cursorResp reports a stored consumer cursor.
type cursorResp struct {
	Consumer string `json:"consumer"`
	Seq      uint64 `json:"seq"`
	Found    bool   `json:"found"`
}

// opReq is the operation envelope accepted by /v1/ops. A non-null metadata
// object selects the metadata call shape and logTxn is ignored.
type opReq struct {
	Op         string            `json:"op"`
	ObjectID   string            `json:"objectID"`
	ElementID  string            `json:"elementID"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
	Keys       []string          `json:"keys"`
	Data       []byte            `json:"data"`
	Append     bool              `json:"append"`
	LogTxn     bool              `json:"logTxn"`
	Metadata   map[string]string `json:"metadata"`
	Timestamp  int64             `json:"timestamp"`
}

// opResp is the result of one operation.
type opResp struct {
	ObjectID string `json:"objectID,omitempty"`
	Existed  *bool  `json:"existed,omitempty"`
}

// objectResp describes an object with its attributes and elements.
type objectResp struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Created    int64             `json:"created"`
	Modified   int64             `json:"modified"`
	Attributes map[string]string `json:"attributes"`
	Elements   []string          `json:"elements"`
}
