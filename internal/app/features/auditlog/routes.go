// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/collabhub/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes mounts all audit log routes under the path where this
// router is mounted (typically "/api/audit" from bootstrap).
//
// Access is restricted to active admins.
func Routes(h *Handler, admins authz.AdminLookup, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(authz.RequireAdmin(admins, logger))

	r.Get("/", h.ServeList)
	r.Get("/types", h.ServeTypes)

	return r
}
