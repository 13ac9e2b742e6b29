// Package api exposes a small chi-routed debug/control HTTP API in front of
// the controller façade: device status, a one-shot send, and a recent-events
// feed. Grounded on internal/api/server.go's middleware stack and
// request-scoped-then-delegate shape, trimmed from a multi-tenant CRUD
// surface (users, tenants, applications, gateways) to the three routes an
// operator needs for one end device.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-enddevice/internal/auth"
	"github.com/lorawan-server/lorawan-enddevice/internal/controller"
)

// RESTServer is the debug API server fronting a single Controller.
type RESTServer struct {
	ctrl   *controller.Controller
	auth   *auth.Manager
	events *eventRing
	router chi.Router
	server *http.Server
}

// NewRESTServer wires the debug API to ctrl, recording settled events into a
// bounded ring buffer that GET /api/v1/events serves.
func NewRESTServer(ctrl *controller.Controller, authMgr *auth.Manager, corsOrigins []string) *RESTServer {
	s := &RESTServer{
		ctrl:   ctrl,
		auth:   authMgr,
		events: newEventRing(128),
		router: chi.NewRouter(),
	}

	ctrl.OnEvent(func(devEUI string, event controller.Event, payload interface{}) {
		s.events.add(eventRecord{DevEUI: devEUI, Event: event.String(), Payload: payload, At: time.Now()})
	})

	s.setupRoutes(corsOrigins)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *RESTServer) setupRoutes(corsOrigins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the debug API server.
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("starting debug API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type claimsContextKey struct{}

// authMiddleware validates the bearer token against the single operator
// principal; there is no per-request tenant/user to resolve.
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			s.respondError(w, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}

		claims, err := s.auth.ValidateToken(header[len(prefix):])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
