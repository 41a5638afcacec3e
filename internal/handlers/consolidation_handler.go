package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loopcard/backend/internal/services"
)

type ConsolidationHandler struct {
	service   *services.ConsolidationService
	validator *services.ValidationHelper
}

func NewConsolidationHandler(service *services.ConsolidationService) *ConsolidationHandler {
	return &ConsolidationHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Append creates the next consolidation in a card's chain
// @Summary Append consolidation
// @Description Reconcile a batch of new entries into the next consolidation version
// @Tags consolidations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.AppendRequest true "Consolidation request"
// @Success 201 {object} models.Consolidation
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /consolidations [post]
func (h *ConsolidationHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req services.AppendRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	req.Actor = actor(r)
	consolidation, err := h.service.Append(r.Context(), req)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(consolidation)
}

// Get returns a single consolidation snapshot
// @Summary Get consolidation
// @Tags consolidations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Consolidation ID"
// @Success 200 {object} models.Consolidation
// @Failure 404 {object} services.ErrorResponse
// @Router /consolidations/{id} [get]
func (h *ConsolidationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	consolidation, err := h.service.Get(r.Context(), id)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(consolidation)
}

// ListChain lists a card's consolidation chain oldest first
// @Summary List consolidation chain
// @Tags consolidations
// @Produce json
// @Security BearerAuth
// @Param userId query string true "User ID"
// @Param cardId query string true "Card ID"
// @Success 200 {array} models.Consolidation
// @Router /consolidations [get]
func (h *ConsolidationHandler) ListChain(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	cardID := r.URL.Query().Get("cardId")
	if userID == "" || cardID == "" {
		services.SendErrorResponse(w, "userId and cardId query parameters are required", http.StatusBadRequest, nil)
		return
	}

	chain, err := h.service.ListChain(r.Context(), userID, cardID)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"consolidations": chain,
		"count":          len(chain),
	})
}

// Delete rejects deletion of a consolidation
// @Summary Delete consolidation
// @Description Always fails; consolidations are immutable audit records
// @Tags consolidations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Consolidation ID"
// @Failure 400 {object} services.ErrorResponse
// @Router /consolidations/{id} [delete]
func (h *ConsolidationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		services.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PurgeChain removes a card's whole consolidation chain
// @Summary Purge consolidation chain
// @Description Admin operation: delete every consolidation for a card and reset entry reconciliation flags
// @Tags consolidations
// @Produce json
// @Security BearerAuth
// @Param userId query string true "User ID"
// @Param cardId query string true "Card ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} services.ErrorResponse
// @Router /consolidations [delete]
func (h *ConsolidationHandler) PurgeChain(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	cardID := r.URL.Query().Get("cardId")
	if userID == "" || cardID == "" {
		services.SendErrorResponse(w, "userId and cardId query parameters are required", http.StatusBadRequest, nil)
		return
	}

	removed, err := h.service.Purge(r.Context(), userID, cardID, actor(r))
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"removed": removed,
	})
}
