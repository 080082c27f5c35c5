// internal/app/features/admin/routes.go
package admin

import (
	"github.com/dalemusser/collabhub/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes returns the admin API router, mounted at /api/admin. The caller
// must already be identified (session or API key) by an outer middleware.
func Routes(h *Handler, admins authz.AdminLookup, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(authz.RequireAdmin(admins, logger))

	r.Route("/projects/{id}", func(r chi.Router) {
		r.Post("/approve", h.ApproveProject)
		r.Post("/reject", h.RejectProject)
		r.Delete("/", h.DeleteProject)
	})
	r.Route("/events/{id}", func(r chi.Router) {
		r.Post("/approve", h.ApproveEvent)
		r.Post("/reject", h.RejectEvent)
		r.Delete("/", h.DeleteEvent)
	})
	r.Post("/completions/{id}/approve", h.ApproveCompletion)
	r.Post("/completions/{id}/reject", h.RejectCompletion)
	r.Post("/applications/{id}/approve", h.ApproveApplication)
	r.Post("/applications/{id}/reject", h.RejectApplication)

	r.Delete("/groups/{id}", h.DeleteGroup)
	r.Delete("/companies/{id}", h.DeleteCompany)
	r.Post("/companies/{id}/end", h.EndCompany)
	r.Delete("/posts/{id}", h.DeletePost)

	r.Post("/reconcile", h.Reconcile)
	r.Get("/stream", h.Stream)
	return r
}
