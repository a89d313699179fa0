package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/service"
)

// AdHandler handles ad fetch and history HTTP requests.
type AdHandler struct {
	mediaSvc *service.MediaService
	logger   *slog.Logger
}

// NewAdHandler creates a new ad handler.
func NewAdHandler(mediaSvc *service.MediaService, logger *slog.Logger) *AdHandler {
	return &AdHandler{
		mediaSvc: mediaSvc,
		logger:   logger,
	}
}

// FetchRequest is the JSON request body for an ad fetch.
type FetchRequest struct {
	Input     string `json:"input"`
	MediaType string `json:"media_type,omitempty"`
	Download  bool   `json:"download,omitempty"`
}

// MediaResponse is one media asset in a fetch response.
type MediaResponse struct {
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url,omitempty"`
	OriginalURL string `json:"original_url,omitempty"`
	Kind        string `json:"kind"`
	Quality     string `json:"quality,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// FetchResponse is the JSON response for an ad fetch.
type FetchResponse struct {
	AdArchiveID string          `json:"ad_archive_id"`
	Source      string          `json:"source"`
	PageID      string          `json:"page_id,omitempty"`
	PageName    string          `json:"page_name,omitempty"`
	AdText      string          `json:"ad_text,omitempty"`
	Media       []MediaResponse `json:"media"`
	EntryID     string          `json:"entry_id"`
	JobIDs      []string        `json:"job_ids,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// EntryResponse is one history entry in list responses.
type EntryResponse struct {
	EntryID         string    `json:"entry_id"`
	AdArchiveID     string    `json:"ad_archive_id"`
	Source          string    `json:"source"`
	InputURL        string    `json:"input_url"`
	PageName        string    `json:"page_name,omitempty"`
	MediaType       string    `json:"media_type"`
	VideoCount      int       `json:"video_count"`
	ImageCount      int       `json:"image_count"`
	AnalysisCount   int       `json:"analysis_count"`
	PromptCount     int       `json:"prompt_count"`
	GenerationCount int       `json:"generation_count"`
	MergeCount      int       `json:"merge_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryResponse contains the paginated history list.
type HistoryResponse struct {
	Entries []EntryResponse `json:"entries"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// Fetch handles POST /api/v1/ads/fetch
func (h *AdHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.mediaSvc.Fetch(r.Context(), service.FetchRequest{
		Input:     req.Input,
		MediaType: domain.MediaType(req.MediaType),
		Download:  req.Download,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "input is not an ad library URL, archive ID, or Instagram URL")
			return
		}
		if service.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "ad not found or deleted")
			return
		}
		h.logger.Error("fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch ad media")
		return
	}

	resp := FetchResponse{
		AdArchiveID: result.Ad.ArchiveID.String(),
		Source:      string(result.Ad.Source),
		PageID:      result.Ad.PageID,
		PageName:    result.Ad.PageName,
		AdText:      result.Ad.AdText,
		EntryID:     result.Entry.ID.String(),
		Message:     result.Message,
	}
	for _, m := range result.Ad.Media {
		resp.Media = append(resp.Media, MediaResponse{
			URL:         m.URL,
			PreviewURL:  m.PreviewURL,
			OriginalURL: m.OriginalURL,
			Kind:        m.Kind,
			Quality:     m.Quality,
			Width:       m.Width,
			Height:      m.Height,
		})
	}
	for _, id := range result.JobIDs {
		resp.JobIDs = append(resp.JobIDs, id.String())
	}

	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /api/v1/ads/history
func (h *AdHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	entries, total, err := h.mediaSvc.History(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("history list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	resp := HistoryResponse{
		Entries: make([]EntryResponse, 0, len(entries)),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, EntryResponse{
			EntryID:         e.ID.String(),
			AdArchiveID:     e.AdArchiveID.String(),
			Source:          string(e.Source),
			InputURL:        e.InputURL,
			PageName:        e.PageName,
			MediaType:       string(e.MediaType),
			VideoCount:      e.VideoCount,
			ImageCount:      e.ImageCount,
			AnalysisCount:   e.AnalysisCount,
			PromptCount:     e.PromptCount,
			GenerationCount: e.GenerationCount,
			MergeCount:      e.MergeCount,
			CreatedAt:       e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Queue handles GET /api/v1/queue - download queue statistics.
func (h *AdHandler) Queue(w http.ResponseWriter, r *http.Request) {
	stats, err := h.mediaSvc.QueueStats(r.Context())
	if err != nil {
		h.logger.Error("queue stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"queued":     stats.Queued,
		"processing": stats.Processing,
		"completed":  stats.Completed,
		"failed":     stats.Failed,
		"retrying":   stats.Retrying,
	})
}

// DeleteEntry handles DELETE /api/v1/ads/history/{entryID}
func (h *AdHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")
	if entryID == "" {
		writeError(w, http.StatusBadRequest, "missing entry ID")
		return
	}

	if err := h.mediaSvc.DeleteEntry(r.Context(), domain.EntryID(entryID)); err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		h.logger.Error("delete entry failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete entry")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
