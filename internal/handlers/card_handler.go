package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loopcard/backend/internal/models"
	"github.com/loopcard/backend/internal/services"
)

type CardHandler struct {
	service   *services.CardService
	validator *services.ValidationHelper
}

func NewCardHandler(service *services.CardService) *CardHandler {
	return &CardHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// IssueCard issues a new card for a user
// @Summary Issue card
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CardIssueRequest true "Card issue request"
// @Success 201 {object} models.Card
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /cards [post]
func (h *CardHandler) IssueCard(w http.ResponseWriter, r *http.Request) {
	var req models.CardIssueRequest

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

	card, err := h.service.Issue(r.Context(), req)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(card)
}

// GetCard returns a card with its current stats
// @Summary Get card
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param cardId path string true "Card ID"
// @Success 200 {object} models.Card
// @Failure 404 {object} services.ErrorResponse
// @Router /cards/{cardId} [get]
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")

	card, err := h.service.Get(r.Context(), cardID)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(card)
}

// SuspendCard suspends an active card
// @Summary Suspend card
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param cardId path string true "Card ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /cards/{cardId}/suspend [post]
func (h *CardHandler) SuspendCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")

	if err := h.service.Suspend(r.Context(), cardID); err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": models.CardStatusSuspended})
}

// ReinstateCard re-activates a suspended card
// @Summary Reinstate card
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param cardId path string true "Card ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /cards/{cardId}/reinstate [post]
func (h *CardHandler) ReinstateCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")

	if err := h.service.Reinstate(r.Context(), cardID); err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": models.CardStatusActive})
}
