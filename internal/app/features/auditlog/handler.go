// Package auditlog serves the audit trail written by lifecycle transitions,
// cascades, and the reconciler as a paged JSON list for administrators.
package auditlog

import (
	"github.com/dalemusser/collabhub/internal/app/store/audit"
	userstore "github.com/dalemusser/collabhub/internal/app/store/users"
	"go.uber.org/zap"
)

type Handler struct {
	Audit *audit.Store
	Users *userstore.Store
	Log   *zap.Logger
}

// NewHandler constructs an Audit Log feature handler bound to
// the given stores and logger.
func NewHandler(events *audit.Store, users *userstore.Store, logger *zap.Logger) *Handler {
	return &Handler{
		Audit: events,
		Users: users,
		Log:   logger,
	}
}
