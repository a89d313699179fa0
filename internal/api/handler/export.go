package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/service"
)

// ExportHandler handles bundle export HTTP requests.
type ExportHandler struct {
	exportSvc *service.ExportService
	logger    *slog.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(exportSvc *service.ExportService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		exportSvc: exportSvc,
		logger:    logger,
	}
}

// StartExportRequest is the JSON request body for starting an export.
type StartExportRequest struct {
	EntryID  string `json:"entry_id"`
	Encrypt  bool   `json:"encrypt,omitempty"`
	Password string `json:"password,omitempty"`
}

// Start handles POST /api/v1/export
func (h *ExportHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EntryID == "" {
		writeError(w, http.StatusBadRequest, "entry_id is required")
		return
	}

	exportID, err := h.exportSvc.StartExport(service.ExportOptions{
		EntryID:  domain.EntryID(req.EntryID),
		Encrypt:  req.Encrypt,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "password is required for an encrypted export")
		case errors.Is(err, service.ErrExportInProgress):
			writeError(w, http.StatusConflict, "an export is already in progress")
		default:
			h.logger.Error("start export failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to start export")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"export_id": exportID})
}

// Status handles GET /api/v1/export/status
func (h *ExportHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.exportSvc.Status())
}

// Cancel handles POST /api/v1/export/cancel
func (h *ExportHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.exportSvc.Cancel(); err != nil {
		writeError(w, http.StatusConflict, "no export in progress")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download handles GET /api/v1/export/download
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	path, err := h.exportSvc.BundlePath()
	if err != nil {
		writeError(w, http.StatusNotFound, "no completed export available")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}
