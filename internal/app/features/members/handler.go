// Package members is the JSON API signed-in users call to join and leave
// groups and companies, post, comment, like, and ask for a group's
// completion review. The caller is always the acting user; there is no
// way to act for someone else here.
package members

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/authz"
	"github.com/dalemusser/collabhub/internal/app/system/community"
	"github.com/dalemusser/collabhub/internal/app/system/lifecycle"
	"github.com/dalemusser/collabhub/internal/app/system/limits"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type Handler struct {
	Community *community.Service
	Lifecycle *lifecycle.Engine
	Log       *zap.Logger
}

func NewHandler(cm *community.Service, lc *lifecycle.Engine, logger *zap.Logger) *Handler {
	return &Handler{Community: cm, Lifecycle: lc, Log: logger}
}

type contentRequest struct {
	Content string `json:"content"`
}

type companyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type likeResponse struct {
	Liked bool `json:"liked"`
}

// caller resolves the signed-in user and, when the route has one, the {id}
// path parameter.
func caller(r *http.Request) (userID, id primitive.ObjectID, err error) {
	_, userID, ok := authz.UserCtx(r)
	if !ok {
		return primitive.NilObjectID, primitive.NilObjectID, apperr.ErrUnauthenticated
	}
	raw := chi.URLParam(r, "id")
	if raw == "" {
		return userID, primitive.NilObjectID, nil
	}
	id, err = primitive.ObjectIDFromHex(raw)
	if err != nil {
		return userID, primitive.NilObjectID, apperr.Validation("invalid id %q", raw)
	}
	return userID, id, nil
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, limits.MaxMemberBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validation("malformed request body: %v", err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("member request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	if status == http.StatusInternalServerError {
		err = fmt.Errorf("internal error")
	}
	apperr.WriteJSON(w, err)
}

// act runs fn for the caller and the {id} parameter and writes its result.
func act[T any](h *Handler, status int, fn func(r *http.Request, userID, id primitive.ObjectID) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, id, err := caller(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out, err := fn(r, userID, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, status, out)
	}
}

func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	act(h, http.StatusOK, func(r *http.Request, userID, id primitive.ObjectID) (community.Membership, error) {
		return h.Community.JoinGroup(r.Context(), id, userID)
	})(w, r)
}

func (h *Handler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	act(h, http.StatusOK, func(r *http.Request, userID, id primitive.ObjectID) (map[string]bool, error) {
		return map[string]bool{"left": true}, h.Community.LeaveGroup(r.Context(), id, userID)
	})(w, r)
}

func (h *Handler) CreateGroupPost(w http.ResponseWriter, r *http.Request) {
	act(h, http.StatusCreated, func(r *http.Request, userID, id primitive.ObjectID) (any, error) {
		var req contentRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return h.Community.CreateGroupPost(r.Context(), id, userID, req.Content)
	})(w, r)
}

func (h *Handler) SubmitCompletion(w http.ResponseWriter, r *http.Request) {
	act(h, http.StatusCreated, func(r *http.Request, userID, id primitive.ObjectID) (any, error) {
		return h.Lifecycle.SubmitCompletion(r.Context(), id, userID)
	})(w, r)
}

func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	act(h, http.StatusCreated, func(r *http.Request, userID, _ primitive.ObjectID) (any, error) {
		var req companyRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return h.Community.CreateCompany(r.Context(), req.Name, req.Description, userID)
	})(w, r)
}

func (h *Handler) JoinCompany(w http.ResponseWriter, r *http.Request) {
	act(h, http.StatusOK, func(r *http.Request, userID, id primitive.ObjectID) (community.Membership, error) {
		return h.Community.JoinCompany(r.Context(), id, userID)
	})(w, r)
}

func (h *Handler) LeaveCompany(w http.ResponseWriter, r *http.Request) {
	act(h, http.StatusOK, func(r *http.Request, userID, id primitive.ObjectID) (map[string]bool, error) {
		return map[string]bool{"left": true}, h.Community.LeaveCompany(r.Context(), id, userID)
	})(w, r)
}

func (h *Handler) CreateCompanyPost(w http.ResponseWriter, r *http.Request) {
	act(h, http.StatusCreated, func(r *http.Request, userID, id primitive.ObjectID) (any, error) {
		var req contentRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return h.Community.CreateCompanyPost(r.Context(), id, userID, req.Content)
	})(w, r)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	act(h, http.StatusCreated, func(r *http.Request, userID, id primitive.ObjectID) (any, error) {
		var req contentRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return h.Community.AddComment(r.Context(), id, userID, req.Content)
	})(w, r)
}

func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	act(h, http.StatusOK, func(r *http.Request, userID, id primitive.ObjectID) (likeResponse, error) {
		liked, err := h.Community.ToggleLike(r.Context(), id, userID)
		return likeResponse{Liked: liked}, err
	})(w, r)
}
