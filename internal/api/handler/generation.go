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

// GenerationHandler handles video generation HTTP requests.
type GenerationHandler struct {
	genSvc *service.GenerationService
	logger *slog.Logger
}

// NewGenerationHandler creates a new generation handler.
func NewGenerationHandler(genSvc *service.GenerationService, logger *slog.Logger) *GenerationHandler {
	return &GenerationHandler{
		genSvc: genSvc,
		logger: logger,
	}
}

// SubmitGenerationRequest is one clip generation request.
type SubmitGenerationRequest struct {
	VideoURL    string `json:"video_url"`
	PromptIndex int    `json:"prompt_index"`
	PromptText  string `json:"prompt_text"`
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Seed        int64  `json:"seed,omitempty"`
}

func (r SubmitGenerationRequest) toService() service.SubmitRequest {
	return service.SubmitRequest{
		Slot: domain.SlotKey{
			VideoURL:    r.VideoURL,
			PromptIndex: r.PromptIndex,
		},
		PromptText:  r.PromptText,
		ModelKey:    r.Model,
		AspectRatio: r.AspectRatio,
		Seed:        r.Seed,
	}
}

// GenerationResponse is one generation record.
type GenerationResponse struct {
	ID            string    `json:"id"`
	PromptHash    string    `json:"prompt_hash"`
	PromptText    string    `json:"prompt_text"`
	VideoURL      string    `json:"video_url"`
	OutputURL     string    `json:"output_url"`
	Model         string    `json:"model"`
	AspectRatio   string    `json:"aspect_ratio,omitempty"`
	Seed          int64     `json:"seed,omitempty"`
	VersionNumber int       `json:"version_number"`
	IsCurrent     bool      `json:"is_current"`
	CreatedAt     time.Time `json:"created_at"`
}

func generationResponse(rec *domain.GenerationRecord) GenerationResponse {
	return GenerationResponse{
		ID:            rec.ID.String(),
		PromptHash:    rec.PromptHash,
		PromptText:    rec.PromptText,
		VideoURL:      rec.VideoURL,
		OutputURL:     rec.OutputURL,
		Model:         rec.ModelKey,
		AspectRatio:   rec.AspectRatio,
		Seed:          rec.Seed,
		VersionNumber: rec.VersionNumber,
		IsCurrent:     rec.IsCurrent,
		CreatedAt:     rec.CreatedAt,
	}
}

// PromptSlotResponse is the reconciled state of one prompt slot.
type PromptSlotResponse struct {
	VideoURL    string               `json:"video_url"`
	PromptIndex int                  `json:"prompt_index"`
	PromptText  string               `json:"prompt_text"`
	Generating  bool                 `json:"generating"`
	LastError   string               `json:"last_error,omitempty"`
	Current     *GenerationResponse  `json:"current,omitempty"`
	Archived    []GenerationResponse `json:"archived,omitempty"`
}

func promptSlotResponse(slot domain.PromptSlot) PromptSlotResponse {
	resp := PromptSlotResponse{
		VideoURL:    slot.Key.VideoURL,
		PromptIndex: slot.Key.PromptIndex,
		PromptText:  slot.Text,
		Generating:  slot.Generating,
		LastError:   slot.LastError,
	}
	if slot.Current != nil {
		current := generationResponse(slot.Current)
		resp.Current = &current
	}
	for i := range slot.Archived {
		resp.Archived = append(resp.Archived, generationResponse(&slot.Archived[i]))
	}
	return resp
}

// Models handles GET /api/v1/generations/models
func (h *GenerationHandler) Models(w http.ResponseWriter, r *http.Request) {
	models, err := h.genSvc.Models(r.Context())
	if err != nil {
		h.logger.Error("list models failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to list models")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

// Submit handles POST /api/v1/generations
func (h *GenerationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	taskID, err := h.genSvc.Submit(r.Context(), req.toService())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "prompt_text is required")
		case errors.Is(err, domain.ErrNoModel):
			writeError(w, http.StatusBadRequest, "no model specified and no default configured")
		default:
			h.logger.Error("submit generation failed", "error", err)
			writeError(w, http.StatusBadGateway, "failed to submit generation")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID.String()})
}

// SubmitBatchRequest is a batch of generation requests.
type SubmitBatchRequest struct {
	Requests []SubmitGenerationRequest `json:"requests"`
}

// SubmitBatch handles POST /api/v1/generations/batch
func (h *GenerationHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "requests is required")
		return
	}

	reqs := make([]service.SubmitRequest, 0, len(req.Requests))
	for _, sub := range req.Requests {
		reqs = append(reqs, sub.toService())
	}

	results := h.genSvc.SubmitAll(r.Context(), reqs)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"results": results})
}

// Tasks handles GET /api/v1/generations/tasks
func (h *GenerationHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.genSvc.ActiveTasks()
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

// TaskStatus handles GET /api/v1/generations/tasks/{taskID}
func (h *GenerationHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := domain.TaskID(chi.URLParam(r, "taskID"))

	snapshot, err := h.genSvc.Status(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// CancelTask handles DELETE /api/v1/generations/tasks/{taskID}
func (h *GenerationHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := domain.TaskID(chi.URLParam(r, "taskID"))

	if err := h.genSvc.Cancel(taskID); err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReconcileRequest asks for the generation state of a video's prompts.
type ReconcileRequest struct {
	VideoURL string   `json:"video_url"`
	Prompts  []string `json:"prompts"`
}

// Reconcile handles POST /api/v1/generations/reconcile
func (h *GenerationHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VideoURL == "" {
		writeError(w, http.StatusBadRequest, "video_url is required")
		return
	}

	slots, err := h.genSvc.Reconcile(r.Context(), req.VideoURL, req.Prompts)
	if err != nil {
		h.logger.Error("reconcile failed", "error", err, "video_url", req.VideoURL)
		writeError(w, http.StatusInternalServerError, "failed to reconcile generations")
		return
	}

	resp := make([]PromptSlotResponse, 0, len(slots))
	for _, slot := range slots {
		resp = append(resp, promptSlotResponse(slot))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"slots": resp})
}

// Restore handles POST /api/v1/generations/{generationID}/restore
func (h *GenerationHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id := domain.GenerationID(chi.URLParam(r, "generationID"))

	rec, err := h.genSvc.Restore(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrGenerationNotFound) {
			writeError(w, http.StatusNotFound, "generation not found")
			return
		}
		h.logger.Error("restore generation failed", "error", err, "generation_id", id)
		writeError(w, http.StatusInternalServerError, "failed to restore generation")
		return
	}
	writeJSON(w, http.StatusOK, generationResponse(rec))
}

// Delete handles DELETE /api/v1/generations/{generationID}
func (h *GenerationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := domain.GenerationID(chi.URLParam(r, "generationID"))

	if err := h.genSvc.DeleteGeneration(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrGenerationNotFound) {
			writeError(w, http.StatusNotFound, "generation not found")
			return
		}
		h.logger.Error("delete generation failed", "error", err, "generation_id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete generation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
