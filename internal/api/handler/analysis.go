package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/service"
)

// AnalysisHandler handles analysis and session HTTP requests.
type AnalysisHandler struct {
	analysisSvc *service.AnalysisService
	logger      *slog.Logger
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(analysisSvc *service.AnalysisService, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analysisSvc: analysisSvc,
		logger:      logger,
	}
}

// AnalyzeRequest is the JSON request body for an analysis.
type AnalyzeRequest struct {
	VideoURL          string `json:"video_url"`
	OriginalURL       string `json:"original_url,omitempty"`
	CustomInstruction string `json:"custom_instruction,omitempty"`
}

func (h *AnalysisHandler) adID(r *http.Request) domain.AdArchiveID {
	return domain.AdArchiveID(chi.URLParam(r, "adID"))
}

// mapError translates service errors to HTTP status codes.
func (h *AnalysisHandler) mapError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrAdNotFound):
		writeError(w, http.StatusNotFound, "ad not found or deleted")
	case errors.Is(err, domain.ErrAnalysisNotFound):
		writeError(w, http.StatusNotFound, "no analysis for this ad")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "upstream rate limited")
	default:
		h.logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusBadGateway, op+" failed")
	}
}

// Analyze handles POST /api/v1/ads/{adID}/analyze
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VideoURL == "" {
		writeError(w, http.StatusBadRequest, "video_url is required")
		return
	}

	rec, err := h.analysisSvc.Analyze(r.Context(), service.AnalyzeRequest{
		AdArchiveID:       h.adID(r),
		VideoURL:          req.VideoURL,
		OriginalURL:       req.OriginalURL,
		CustomInstruction: req.CustomInstruction,
	})
	if err != nil {
		h.mapError(w, "analyze", err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Current handles GET /api/v1/ads/{adID}/analysis
func (h *AnalysisHandler) Current(w http.ResponseWriter, r *http.Request) {
	rec, err := h.analysisSvc.Current(r.Context(), h.adID(r))
	if err != nil {
		h.mapError(w, "get analysis", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// History handles GET /api/v1/ads/{adID}/analysis/history
func (h *AnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.analysisSvc.History(r.Context(), h.adID(r))
	if err != nil {
		h.mapError(w, "analysis history", err)
		return
	}

	if records == nil {
		records = []*domain.AnalysisRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": records})
}

// Version handles GET /api/v1/ads/{adID}/analysis/version/{version}
func (h *AnalysisHandler) Version(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "invalid version number")
		return
	}

	rec, err := h.analysisSvc.Version(r.Context(), h.adID(r), version)
	if err != nil {
		h.mapError(w, "analysis version", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RegenerateRequest is the JSON request body for a regeneration.
type RegenerateRequest struct {
	Instruction string `json:"instruction,omitempty"`
}

// Regenerate handles POST /api/v1/ads/{adID}/analysis/regenerate
func (h *AnalysisHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	var req RegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.analysisSvc.Regenerate(r.Context(), h.adID(r), req.Instruction)
	if err != nil {
		h.mapError(w, "regenerate", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// FollowupRequest is the JSON request body for a follow-up question.
type FollowupRequest struct {
	Question      string `json:"question"`
	VersionNumber *int   `json:"version_number,omitempty"`
}

// Followup handles POST /api/v1/ads/{adID}/analysis/followup
func (h *AnalysisHandler) Followup(w http.ResponseWriter, r *http.Request) {
	var req FollowupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ans, err := h.analysisSvc.Followup(r.Context(), h.adID(r), req.Question, req.VersionNumber)
	if err != nil {
		h.mapError(w, "followup", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"question":       ans.Question,
		"answer":         ans.Answer,
		"version_number": ans.VersionNumber,
	})
}

// Delete handles DELETE /api/v1/ads/{adID}/analysis
func (h *AnalysisHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.analysisSvc.Delete(r.Context(), h.adID(r)); err != nil {
		h.mapError(w, "delete analysis", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCache handles DELETE /api/v1/ads/{adID}/cache
func (h *AnalysisHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.analysisSvc.ClearCache(r.Context(), h.adID(r)); err != nil {
		h.mapError(w, "clear cache", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/v1/ads/{adID}/session
func (h *AnalysisHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := h.analysisSvc.Session(r.Context(), h.adID(r).String())
	writeJSON(w, http.StatusOK, session)
}

// SelectVideoRequest is the JSON request body for a video selection.
type SelectVideoRequest struct {
	VideoURL string `json:"video_url"`
}

// SelectVideo handles PUT /api/v1/ads/{adID}/session/video
func (h *AnalysisHandler) SelectVideo(w http.ResponseWriter, r *http.Request) {
	var req SelectVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.analysisSvc.SelectVideo(r.Context(), h.adID(r).String(), req.VideoURL); err != nil {
		h.logger.Error("select video failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to persist selection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SavePromptsRequest is the JSON request body for saving edited prompts.
type SavePromptsRequest struct {
	VideoURL string   `json:"video_url"`
	Prompts  []string `json:"prompts"`
}

// SavePrompts handles PUT /api/v1/ads/{adID}/session/prompts
func (h *AnalysisHandler) SavePrompts(w http.ResponseWriter, r *http.Request) {
	var req SavePromptsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VideoURL == "" {
		writeError(w, http.StatusBadRequest, "video_url is required")
		return
	}

	if err := h.analysisSvc.SavePrompts(r.Context(), h.adID(r).String(), req.VideoURL, req.Prompts); err != nil {
		h.logger.Error("save prompts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to persist prompts")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
