// internal/app/features/members/routes.go
package members

import (
	"github.com/dalemusser/collabhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the member API router, mounted at /api/me.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Route("/groups/{id}", func(r chi.Router) {
		r.Post("/join", h.JoinGroup)
		r.Post("/leave", h.LeaveGroup)
		r.Post("/posts", h.CreateGroupPost)
		r.Post("/completion", h.SubmitCompletion)
	})
	r.Post("/companies", h.CreateCompany)
	r.Route("/companies/{id}", func(r chi.Router) {
		r.Post("/join", h.JoinCompany)
		r.Post("/leave", h.LeaveCompany)
		r.Post("/posts", h.CreateCompanyPost)
	})
	r.Post("/posts/{id}/comments", h.AddComment)
	r.Post("/posts/{id}/like", h.ToggleLike)
	return r
}
