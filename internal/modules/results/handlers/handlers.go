// Package handlers provides HTTP handlers for collection results and runs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aristath/carmarket/internal/modules/results"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// RunTrigger starts a collection run in the background.
type RunTrigger interface {
	TriggerRun() error
}

// Handler handles results HTTP requests
type Handler struct {
	store   *results.Store
	trigger RunTrigger
	log     zerolog.Logger
}

// NewHandler creates a new results handler. trigger may be nil, which
// disables POST /runs.
func NewHandler(store *results.Store, trigger RunTrigger, log zerolog.Logger) *Handler {
	return &Handler{
		store:   store,
		trigger: trigger,
		log:     log.With().Str("handler", "results").Logger(),
	}
}

// HandleListVehicles handles GET /api/vehicles
func (h *Handler) HandleListVehicles(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.store.Latest()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no completed run yet")
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// HandleGetVehicle handles GET /api/vehicles/{year}/{name}
func (h *Handler) HandleGetVehicle(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "year must be a number")
		return
	}

	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid vehicle name")
		return
	}

	result, ok := h.store.Find(year, name)
	if !ok {
		h.writeError(w, http.StatusNotFound, "vehicle not found")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleTriggerRun handles POST /api/runs
func (h *Handler) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		h.writeError(w, http.StatusServiceUnavailable, "runs cannot be triggered in this mode")
		return
	}

	if err := h.trigger.TriggerRun(); err != nil {
		if errors.Is(err, results.ErrRunInProgress) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to trigger run")
		h.writeError(w, http.StatusInternalServerError, "failed to trigger run")
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "accepted",
		"message": "collection run started",
	})
}

// HandleRunStatus handles GET /api/runs/status
func (h *Handler) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.Status())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
