package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes mounts the debug API under /api/v1. Unlike the teacher's
// tree of /users, /tenants, /applications, /devices, /gateways, there is
// exactly one device here, so nothing needs to be addressed by ID.
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/status", s.handleStatus)
		r.Post("/send", s.handleSend)
		r.Get("/events", s.handleEvents)
	})
}
