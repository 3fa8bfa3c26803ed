package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/EUDAT-DTR/DTR-sub001/internal/storagelog"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

const maxOpBody = 64 << 20

// OpsController applies mutations through the logging facade.
type OpsController struct {
	sl     *storagelog.StorageLog
	logger logpkg.Logger
}

// NewOpsController creates a new operations controller.
func NewOpsController(sl *storagelog.StorageLog, logger logpkg.Logger) *OpsController {
	return &OpsController{sl: sl, logger: logger}
}

// RegisterRoutes registers operation routes with the given mux.
func (c *OpsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/ops", c.handleOp)
}

// handleOp decodes one operation envelope and dispatches it.
//
// Ops: create_object, delete_object, store_element, delete_element,
// set_attributes, delete_attributes.
func (c *OpsController) handleOp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req opReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOpBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	txn := storagelog.LogIf(req.LogTxn)
	if req.Metadata != nil {
		txn = storagelog.WithMetadata(req.Metadata)
	}
	ctx := r.Context()

	var (
		resp opResp
		err  error
	)
	switch req.Op {
	case "create_object":
		resp.ObjectID, err = c.sl.CreateObjectTxn(ctx, req.ObjectID, req.Name, txn, req.Timestamp)
	case "delete_object":
		err = c.sl.DeleteObjectTxn(ctx, req.ObjectID, txn, req.Timestamp)
	case "store_element":
		err = c.sl.StoreDataElementTxn(ctx, req.ObjectID, req.ElementID, bytes.NewReader(req.Data), req.Append, txn, req.Timestamp)
	case "delete_element":
		var existed bool
		existed, err = c.sl.DeleteDataElementTxn(ctx, req.ObjectID, req.ElementID, txn, req.Timestamp)
		resp.Existed = &existed
	case "set_attributes":
		err = c.sl.SetAttributesTxn(ctx, req.ObjectID, req.ElementID, req.Attributes, txn, req.Timestamp)
	case "delete_attributes":
		err = c.sl.DeleteAttributesTxn(ctx, req.ObjectID, req.ElementID, req.Keys, txn, req.Timestamp)
	default:
		writeError(w, http.StatusBadRequest, "Unknown op "+req.Op)
		return
	}
	if err != nil {
		c.logger.Debug("operation failed", logpkg.Str("op", req.Op), logpkg.Str("object_id", req.ObjectID), logpkg.Err(err))
		writeErr(w, err)
		return
	}
	writeJSON(w, resp)
}
