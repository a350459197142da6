package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. The
// WebSocket handler is passed separately so tests can mount the API
// without a hub.
func MountRoutes(r chi.Router, h *Handlers, wsHandler http.HandlerFunc) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Assistant
		r.Post("/assistant/messages", h.HandleMessage)

		// Workflows
		r.Get("/workflows", h.ListSuspendedWorkflows)
		r.Get("/workflows/{sessionID}", h.GetWorkflow)
		r.Post("/workflows/{sessionID}/confirmation", h.ResolveConfirmation)
		r.Post("/workflows/{sessionID}/cancel", h.CancelWorkflow)
		r.Get("/workflows/{sessionID}/events", h.ListWorkflowEvents)

		// Credits
		r.Get("/credits/balance", h.GetCreditBalance)
		r.Get("/credits/{sessionID}/operations", h.ListCreditOperations)
		r.Get("/credits/{sessionID}/summary", h.GetCreditSummary)
	})

	if wsHandler != nil {
		r.Get("/ws", wsHandler)
	}
}
