package admin

import (
	"context"
	"net/http"

	"github.com/dalemusser/collabhub/internal/app/system/lifecycle"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type approveFunc func(ctx context.Context, id, adminID primitive.ObjectID) (*lifecycle.Outcome, error)
type rejectFunc func(ctx context.Context, id, adminID primitive.ObjectID, reason string) (*lifecycle.Outcome, error)

// approve adapts an engine approval into a handler.
func (h *Handler) approve(fn approveFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, id, err := target(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out, err := fn(r.Context(), id, adminID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// reject adapts an engine rejection into a handler. The body is
// {"reason": "..."}; the engine rejects a blank reason.
func (h *Handler) reject(fn rejectFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, id, err := target(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		var req rejectRequest
		if err := decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		out, err := fn(r.Context(), id, adminID, req.Reason)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (h *Handler) ApproveProject(w http.ResponseWriter, r *http.Request) {
	h.approve(h.Lifecycle.ApproveProject)(w, r)
}

func (h *Handler) RejectProject(w http.ResponseWriter, r *http.Request) {
	h.reject(h.Lifecycle.RejectProject)(w, r)
}

func (h *Handler) ApproveEvent(w http.ResponseWriter, r *http.Request) {
	h.approve(h.Lifecycle.ApproveEvent)(w, r)
}

func (h *Handler) RejectEvent(w http.ResponseWriter, r *http.Request) {
	h.reject(h.Lifecycle.RejectEvent)(w, r)
}

func (h *Handler) ApproveCompletion(w http.ResponseWriter, r *http.Request) {
	h.approve(h.Lifecycle.ApproveCompletion)(w, r)
}

func (h *Handler) RejectCompletion(w http.ResponseWriter, r *http.Request) {
	h.reject(h.Lifecycle.RejectCompletion)(w, r)
}

func (h *Handler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	h.approve(h.Lifecycle.ApproveApplication)(w, r)
}

func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	h.reject(h.Lifecycle.RejectApplication)(w, r)
}

type endCompanyResponse struct {
	CompanyID            string `json:"company_id"`
	Ended                bool   `json:"ended"`
	NotificationsWritten int    `json:"notifications_written"`
	NotificationsFailed  int    `json:"notifications_failed"`
}

// EndCompany handles POST /companies/{id}/end.
func (h *Handler) EndCompany(w http.ResponseWriter, r *http.Request) {
	adminID, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Community.EndCompany(r.Context(), id, adminID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, endCompanyResponse{
		CompanyID:            id.Hex(),
		Ended:                true,
		NotificationsWritten: res.Written,
		NotificationsFailed:  res.Failed,
	})
}
