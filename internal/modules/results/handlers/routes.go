package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers results and run routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/vehicles", func(r chi.Router) {
		r.Get("/", h.HandleListVehicles)
		r.Get("/{year}/{name}", h.HandleGetVehicle)
	})
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.HandleTriggerRun)
		r.Get("/status", h.HandleRunStatus)
	})
}
