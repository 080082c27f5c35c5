package admin

import (
	"errors"
	"net/http"

	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/workers"
	"go.uber.org/zap"
)

// Reconcile handles POST /reconcile: one counter reconciliation pass, now.
// Per-document failures still answer 200; they are in the report's Failed
// count and the log.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reconciler.Run(r.Context())
	if errors.Is(err, workers.ErrAlreadyRunning) {
		h.fail(w, r, apperr.Conflict("a reconciliation pass is already running"))
		return
	}
	if err != nil {
		h.Log.Warn("reconcile finished with errors", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, rep)
}
