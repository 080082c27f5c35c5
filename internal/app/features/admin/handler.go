// Package admin is the JSON API administrators use to moderate projects,
// events, completion reviews, and applications, and to delete or end
// community entities. Every route requires an active admin; the router in
// routes.go applies authz.RequireAdmin.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/authz"
	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/dalemusser/collabhub/internal/app/system/cascade"
	"github.com/dalemusser/collabhub/internal/app/system/community"
	"github.com/dalemusser/collabhub/internal/app/system/lifecycle"
	"github.com/dalemusser/collabhub/internal/app/system/limits"
	"github.com/dalemusser/collabhub/internal/app/system/workers"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler holds the services the admin routes dispatch into.
type Handler struct {
	Lifecycle  *lifecycle.Engine
	Cascade    *cascade.Engine
	Community  *community.Service
	Reconciler *workers.Reconciler
	Broker     *broker.Broker
	Log        *zap.Logger
}

func NewHandler(lc *lifecycle.Engine, cs *cascade.Engine, cm *community.Service, rec *workers.Reconciler, b *broker.Broker, logger *zap.Logger) *Handler {
	return &Handler{
		Lifecycle:  lc,
		Cascade:    cs,
		Community:  cm,
		Reconciler: rec,
		Broker:     b,
		Log:        logger,
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// actor returns the admin's user id. RequireAdmin guarantees it is present.
func actor(r *http.Request) (primitive.ObjectID, error) {
	a, ok := authz.AdminFrom(r.Context())
	if !ok {
		return primitive.NilObjectID, apperr.ErrUnauthenticated
	}
	return a.UserID, nil
}

func pathID(r *http.Request) (primitive.ObjectID, error) {
	raw := chi.URLParam(r, "id")
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("invalid id %q", raw)
	}
	return id, nil
}

// target resolves the caller and the {id} path parameter together.
func target(r *http.Request) (adminID, id primitive.ObjectID, err error) {
	if adminID, err = actor(r); err != nil {
		return
	}
	id, err = pathID(r)
	return
}

// decode reads a JSON body into v. An empty body leaves v at its zero value.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, limits.MaxAdminBody)).Decode(v)
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

// fail writes err with its mapped status. Unexpected errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("admin request failed",
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
