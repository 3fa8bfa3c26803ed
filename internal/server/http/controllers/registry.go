package controllers

import (
	"net/http"

	"github.com/EUDAT-DTR/DTR-sub001/internal/runtime"
	"github.com/EUDAT-DTR/DTR-sub001/internal/services/replication"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	txns    *TxnsController
	objects *ObjectsController
	ops     *OpsController
}

// NewControllerRegistry creates a new controller registry.
//
// It initializes all controllers with the provided runtime and services.
func NewControllerRegistry(rt *runtime.Runtime, repl *replication.Service, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		txns:    NewTxnsController(repl, logger),
		objects: NewObjectsController(rt.Store(), logger),
		ops:     NewOpsController(rt.StorageLog(), logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.txns.RegisterRoutes(mux)
	r.objects.RegisterRoutes(mux)
	r.ops.RegisterRoutes(mux)
}
