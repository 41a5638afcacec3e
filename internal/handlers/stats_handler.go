package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loopcard/backend/internal/services"
)

type StatsHandler struct {
	stats *services.StatsService
	sync  *services.SupplierSyncService
}

func NewStatsHandler(stats *services.StatsService, sync *services.SupplierSyncService) *StatsHandler {
	return &StatsHandler{stats: stats, sync: sync}
}

// CardStats returns a card's aggregated statistics
// @Summary Get card stats
// @Description Read-through: served from cache when fresh, recomputed otherwise
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Param cardId path string true "Card ID"
// @Success 200 {object} models.StatsSnapshot
// @Failure 404 {object} services.ErrorResponse
// @Router /cards/{cardId}/stats [get]
func (h *StatsHandler) CardStats(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")

	stats, err := h.stats.CardStats(r.Context(), cardID)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// RefreshCard forces a full recompute of one card's stats
// @Summary Refresh card stats
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Param cardId path string true "Card ID"
// @Success 200 {object} models.StatsSnapshot
// @Failure 404 {object} services.ErrorResponse
// @Router /cards/{cardId}/stats/refresh [post]
func (h *StatsHandler) RefreshCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")

	stats, err := h.stats.RefreshCard(r.Context(), cardID)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// RefreshAll recomputes stats for every card
// @Summary Refresh all card stats
// @Description Batch recompute across the fleet; individual card failures do not abort the run
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Param supplier query string false "Restrict to one supplier"
// @Success 200 {object} services.RefreshReport
// @Router /admin/stats/refresh [post]
func (h *StatsHandler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	var (
		report *services.RefreshReport
		err    error
	)
	if supplier := r.URL.Query().Get("supplier"); supplier != "" {
		report, err = h.stats.RefreshBySupplier(r.Context(), supplier)
	} else {
		report, err = h.stats.RefreshAll(r.Context())
	}
	if err != nil && report == nil {
		services.WriteError(w, err)
		return
	}

	// A cancelled run still returns the partial report.
	status := http.StatusOK
	if err != nil {
		status = http.StatusAccepted
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}

// SyncCard imports the supplier feed for one card
// @Summary Sync card from supplier
// @Description Pull the provider transaction feed and import unseen records
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Param cardId path string true "Card ID"
// @Success 200 {object} services.SyncResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /admin/cards/{cardId}/sync [post]
func (h *StatsHandler) SyncCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")

	result, err := h.sync.SyncCard(r.Context(), cardID)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
