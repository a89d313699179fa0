package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/service"
)

// MergeHandler handles clip selection and merge HTTP requests.
type MergeHandler struct {
	mergeSvc *service.MergeService
	logger   *slog.Logger
}

// NewMergeHandler creates a new merge handler.
func NewMergeHandler(mergeSvc *service.MergeService, logger *slog.Logger) *MergeHandler {
	return &MergeHandler{
		mergeSvc: mergeSvc,
		logger:   logger,
	}
}

func (h *MergeHandler) adID(r *http.Request) domain.AdArchiveID {
	return domain.AdArchiveID(chi.URLParam(r, "adID"))
}

// ToggleClipRequest selects or deselects one clip for a slot.
type ToggleClipRequest struct {
	SlotIndex int    `json:"slot_index"`
	URL       string `json:"url"`
}

// MergeResponse is one merge record.
type MergeResponse struct {
	ID          string    `json:"id"`
	AdArchiveID string    `json:"ad_archive_id"`
	InputURLs   []string  `json:"input_urls"`
	OutputPath  string    `json:"output_path,omitempty"`
	OutputURL   string    `json:"output_url"`
	Cached      bool      `json:"cached,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func mergeResponse(rec *domain.MergeRecord, cached bool) MergeResponse {
	return MergeResponse{
		ID:          rec.ID.String(),
		AdArchiveID: rec.AdArchiveID.String(),
		InputURLs:   rec.InputURLs,
		OutputPath:  rec.OutputPath,
		OutputURL:   rec.OutputURL,
		Cached:      cached,
		CreatedAt:   rec.CreatedAt,
	}
}

func selectionPayload(sel domain.ClipSelection) map[string]interface{} {
	return map[string]interface{}{
		"selection": sel,
		"count":     len(sel),
	}
}

// ToggleClip handles POST /api/v1/ads/{adID}/selection/toggle
func (h *MergeHandler) ToggleClip(w http.ResponseWriter, r *http.Request) {
	adID := h.adID(r)

	var req ToggleClipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	sel, err := h.mergeSvc.Toggle(r.Context(), adID, req.SlotIndex, req.URL)
	if err != nil {
		h.logger.Error("toggle clip failed", "error", err, "ad_id", adID)
		writeError(w, http.StatusInternalServerError, "failed to persist selection")
		return
	}
	writeJSON(w, http.StatusOK, selectionPayload(sel))
}

// Selection handles GET /api/v1/ads/{adID}/selection
func (h *MergeHandler) Selection(w http.ResponseWriter, r *http.Request) {
	sel := h.mergeSvc.Selection(r.Context(), h.adID(r))
	writeJSON(w, http.StatusOK, selectionPayload(sel))
}

// ClearSelection handles DELETE /api/v1/ads/{adID}/selection
func (h *MergeHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	adID := h.adID(r)
	if err := h.mergeSvc.ClearSelection(r.Context(), adID); err != nil {
		h.logger.Error("clear selection failed", "error", err, "ad_id", adID)
		writeError(w, http.StatusInternalServerError, "failed to clear selection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Merge handles POST /api/v1/ads/{adID}/merge
func (h *MergeHandler) Merge(w http.ResponseWriter, r *http.Request) {
	adID := h.adID(r)

	result, err := h.mergeSvc.Merge(r.Context(), adID)
	if err != nil {
		if errors.Is(err, domain.ErrNotEnoughClips) {
			writeError(w, http.StatusBadRequest, "at least two clips must be selected")
			return
		}
		h.logger.Error("merge failed", "error", err, "ad_id", adID)
		writeError(w, http.StatusBadGateway, "merge failed")
		return
	}
	writeJSON(w, http.StatusOK, mergeResponse(result.Record, result.Cached))
}

// ListMerges handles GET /api/v1/ads/{adID}/merges
func (h *MergeHandler) ListMerges(w http.ResponseWriter, r *http.Request) {
	adID := h.adID(r)

	records, err := h.mergeSvc.ListMerges(r.Context(), adID)
	if err != nil {
		h.logger.Error("list merges failed", "error", err, "ad_id", adID)
		writeError(w, http.StatusInternalServerError, "failed to list merges")
		return
	}

	merges := make([]MergeResponse, 0, len(records))
	for _, rec := range records {
		merges = append(merges, mergeResponse(rec, false))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"merges": merges})
}

// BulkDownload handles POST /api/v1/ads/{adID}/bulk-download
func (h *MergeHandler) BulkDownload(w http.ResponseWriter, r *http.Request) {
	adID := h.adID(r)

	result, err := h.mergeSvc.BulkDownload(r.Context(), adID)
	if err != nil {
		if errors.Is(err, domain.ErrNotEnoughClips) {
			writeError(w, http.StatusBadRequest, "no clips selected")
			return
		}
		h.logger.Error("bulk download failed", "error", err, "ad_id", adID)
		writeError(w, http.StatusBadGateway, "bulk download failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// MergedVideos handles GET /api/v1/merged-videos
func (h *MergeHandler) MergedVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.mergeSvc.MergedVideos(r.Context())
	if err != nil {
		h.logger.Error("list merged videos failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to list merged videos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"videos": videos})
}

// SendToEditor handles POST /api/v1/ads/{adID}/send-to-editor
func (h *MergeHandler) SendToEditor(w http.ResponseWriter, r *http.Request) {
	adID := h.adID(r)

	clips, err := h.mergeSvc.SendToEditor(r.Context(), adID)
	if err != nil {
		if errors.Is(err, domain.ErrNotEnoughClips) {
			writeError(w, http.StatusBadRequest, "no clips selected")
			return
		}
		h.logger.Error("send to editor failed", "error", err, "ad_id", adID)
		writeError(w, http.StatusInternalServerError, "failed to hand off to editor")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"clips": clips})
}
