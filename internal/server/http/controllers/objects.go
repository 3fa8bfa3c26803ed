package controllers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/EUDAT-DTR/DTR-sub001/internal/objstore"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

// ObjectsController serves read access to stored objects and ranged reads
// of their data elements.
type ObjectsController struct {
	store  *objstore.Store
	logger logpkg.Logger
}

// NewObjectsController creates a new objects controller.
func NewObjectsController(store *objstore.Store, logger logpkg.Logger) *ObjectsController {
	return &ObjectsController{store: store, logger: logger}
}

// RegisterRoutes registers object routes with the given mux.
func (c *ObjectsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/objects/{id}", c.handleGetObject)
	mux.HandleFunc("GET /v1/objects/{id}/elements/{el}", c.handleGetElement)
}

// handleGetObject returns object info, object attributes and element names.
func (c *ObjectsController) handleGetObject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, err := c.store.ObjectInfo(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	attrs, err := c.store.GetAttributes(id, "")
	if err != nil {
		writeErr(w, err)
		return
	}
	elements, err := c.store.ListDataElements(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if elements == nil {
		elements = []string{}
	}
	writeJSON(w, objectResp{
		ID:         info.ID,
		Name:       info.Name,
		Created:    info.Created,
		Modified:   info.Modified,
		Attributes: attrs,
		Elements:   elements,
	})
}

// handleGetElement streams a window of an element's bytes.
//
// Query: start (default 0) and len (default -1, to the end).
func (c *ObjectsController) handleGetElement(w http.ResponseWriter, r *http.Request) {
	id, el := r.PathValue("id"), r.PathValue("el")
	start, err := parseInt64(r.URL.Query().Get("start"), 0)
	if err != nil || start < 0 {
		writeError(w, http.StatusBadRequest, "Invalid start")
		return
	}
	length, err := parseInt64(r.URL.Query().Get("len"), -1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid len")
		return
	}
	info, err := c.store.ElementInfo(id, el)
	if err != nil {
		writeErr(w, err)
		return
	}
	st, err := c.store.GetDataElement(id, el, start, length)
	if err != nil {
		writeErr(w, err)
		return
	}
	defer st.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Element-Size", strconv.FormatInt(info.Size, 10))
	if info.Digest != "" {
		w.Header().Set("ETag", `"`+info.Digest+`"`)
	}
	if _, err := io.Copy(w, st); err != nil {
		c.logger.Warn("element copy failed", logpkg.Str("object_id", id), logpkg.Str("element_id", el), logpkg.Err(err))
	}
}
