/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/v1/resources/*   Resource, allocation, calendar, KPI endpoints

SECURITY NOTE:
  No authentication middleware currently. Caller identity is the
  X-Provider-ID header, trusted as-is.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Provider-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api/v1/resources", func(r chi.Router) {
		r.Get("/", h.ListResources)
		r.Post("/", h.CreateResource)
		r.Get("/my", h.ListMyResources)
		r.Post("/search/geo", h.SearchGeo)

		r.Get("/calendar", h.GetCalendar)

		r.Route("/kpis", func(r chi.Router) {
			r.Get("/", h.GetKPIs)
			r.Post("/calculate", h.CalculateKPIs)
		})

		r.Get("/notifications", h.ListNotifications)

		r.Route("/allocations", func(r chi.Router) {
			r.Get("/", h.ListAllocations)
			r.Post("/", h.CreateAllocation)
			r.Post("/bulk", h.CreateAllocationsBulk)
			r.Get("/{id}", h.GetAllocation)
			r.Put("/{id}/status", h.UpdateAllocationStatus)
			r.Post("/{id}/invite", h.InviteAllocation)
			r.Post("/{id}/view", h.MarkInvitationViewed)
			r.Delete("/{id}", h.DeleteAllocation)
		})

		// Parameterized routes last so fixed paths above win.
		r.Get("/{id}", h.GetResource)
		r.Put("/{id}", h.UpdateResource)
		r.Delete("/{id}", h.DeleteResource)
	})

	return r
}
