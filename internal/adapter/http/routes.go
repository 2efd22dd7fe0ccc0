package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, wsHandler http.HandlerFunc) {
	r.Get("/health", h.Health)
	if wsHandler != nil {
		r.Get("/ws", wsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Runtime inventory
		r.Get("/servers", h.ListServers)

		r.Route("/users/{userID}", func(r chi.Router) {
			// Boot and sync
			r.Post("/autostart", h.AutoStart)
			r.Post("/sync", h.ForceSync)
			r.Get("/consistency", h.CheckConsistency)

			r.Route("/agents", func(r chi.Router) {
				r.Post("/", h.CreateAgent)
				r.Get("/", h.ListAgents)
				r.Get("/search", h.SearchAgents)

				r.Route("/{agentID}", func(r chi.Router) {
					r.Get("/", h.GetAgent)
					r.Put("/", h.UpdateAgent)
					r.Delete("/", h.DeleteAgent)

					// Publish lifecycle
					r.Post("/publish", h.PublishAgent)
					r.Post("/stop", h.StopAgent)
					r.Post("/restart", h.RestartAgent)
					r.Get("/status", h.AgentStatus)

					// Todos
					r.Post("/todos", h.AddTodo)
					r.Put("/todos/{todoID}", h.UpdateTodo)
					r.Delete("/todos/{todoID}", h.DeleteTodo)
				})
			})
		})
	})
}
