package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/pkg/backend"
)

// CompetitorHandler proxies competitor tracking and ad search to the
// upstream backend.
type CompetitorHandler struct {
	backend *backend.Client
	logger  *slog.Logger
}

// NewCompetitorHandler creates a new competitor handler.
func NewCompetitorHandler(client *backend.Client, logger *slog.Logger) *CompetitorHandler {
	return &CompetitorHandler{
		backend: client,
		logger:  logger,
	}
}

// List handles GET /api/v1/competitors
func (h *CompetitorHandler) List(w http.ResponseWriter, r *http.Request) {
	competitors, err := h.backend.ListCompetitors(r.Context())
	if err != nil {
		h.logger.Error("list competitors failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to list competitors")
		return
	}
	if competitors == nil {
		competitors = []backend.Competitor{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"competitors": competitors})
}

// Add handles POST /api/v1/competitors
func (h *CompetitorHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req backend.Competitor
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PageID == "" {
		writeError(w, http.StatusBadRequest, "page_id is required")
		return
	}

	comp, err := h.backend.AddCompetitor(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "upstream rate limited")
			return
		}
		h.logger.Error("add competitor failed", "error", err, "page_id", req.PageID)
		writeError(w, http.StatusBadGateway, "failed to add competitor")
		return
	}
	writeJSON(w, http.StatusCreated, comp)
}

// Delete handles DELETE /api/v1/competitors/{competitorID}
func (h *CompetitorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "competitorID")

	if err := h.backend.DeleteCompetitor(r.Context(), id); err != nil {
		h.logger.Error("delete competitor failed", "error", err, "competitor_id", id)
		writeError(w, http.StatusBadGateway, "failed to delete competitor")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/v1/search/ads. The query string is passed
// through to the upstream untouched and the result returned as-is.
func (h *CompetitorHandler) Search(w http.ResponseWriter, r *http.Request) {
	result, err := h.backend.SearchAds(r.Context(), r.URL.Query())
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "upstream rate limited")
			return
		}
		h.logger.Error("ad search failed", "error", err)
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}
