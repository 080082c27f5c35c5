package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/dalemusser/collabhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Pinger is the store's liveness check. entitystore.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Store   Pinger
	Backend string
	Broker  *broker.Broker
	Log     *zap.Logger
}

// NewHandler constructs a health Handler. backend names the store
// ("mongo" or "memory") for the response body.
func NewHandler(store Pinger, backend string, b *broker.Broker, logger *zap.Logger) *Handler {
	return &Handler{
		Store:   store,
		Backend: backend,
		Broker:  b,
		Log:     logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string        `json:"status"`
	Database string        `json:"database"`
	Backend  string        `json:"backend"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Stream   *streamStatus `json:"stream,omitempty"`
}

type streamStatus struct {
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "backend":"mongo", "stream":{"subscribers":1,"dropped":0} }
//
// On store failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
		Backend:  h.Backend,
	}

	if err := h.Store.Ping(ctx); err != nil {
		h.Log.Error("health-check: store ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	if h.Broker != nil {
		resp.Stream = &streamStatus{
			Subscribers: h.Broker.Subscribers(),
			Dropped:     h.Broker.Dropped(),
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}
