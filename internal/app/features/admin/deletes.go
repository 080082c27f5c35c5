package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/cascade"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type deleteFunc func(ctx context.Context, id, adminID primitive.ObjectID, c cascade.Confirmation) (*cascade.Receipt, error)

// partialResponse is the 207 body: the receipt plus the error summary.
type partialResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code"`
	Receipt *cascade.Receipt `json:"receipt"`
}

// remove adapts a cascade into a handler. The body must carry the
// confirmation for the root. A cascade that finished with failures answers
// 207 with its receipt so the caller can see what is left.
func (h *Handler) remove(fn deleteFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, id, err := target(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		var c cascade.Confirmation
		if err := decode(r, &c); err != nil {
			h.fail(w, r, err)
			return
		}
		rec, err := fn(r.Context(), id, adminID, c)
		var pf *cascade.PartialFailure
		switch {
		case errors.As(err, &pf):
			writeJSON(w, http.StatusMultiStatus, partialResponse{
				Error:   err.Error(),
				Code:    apperr.Code(err),
				Receipt: pf.Receipt,
			})
		case err != nil:
			h.fail(w, r, err)
		default:
			writeJSON(w, http.StatusOK, rec)
		}
	}
}

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	h.remove(h.Lifecycle.DeleteProject)(w, r)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	h.remove(h.Lifecycle.DeleteEvent)(w, r)
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	h.remove(h.Cascade.DeleteGroup)(w, r)
}

func (h *Handler) DeleteCompany(w http.ResponseWriter, r *http.Request) {
	h.remove(h.Cascade.DeleteCompany)(w, r)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	h.remove(h.Cascade.DeletePost)(w, r)
}
