package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/adscope/adscope/internal/config"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/internal/service"
)

func exportFixture(t *testing.T) *chi.Mux {
	t.Helper()

	dir := t.TempDir()
	db, err := repository.OpenSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := service.NewExportService(
		repository.NewSQLiteHistoryRepository(db),
		repository.NewSQLiteGenerationRepository(db),
		config.StorageConfig{
			BasePath: filepath.Join(dir, "ads"),
			TempPath: filepath.Join(dir, "temp"),
		},
		testLogger())

	h := NewExportHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Post("/export", h.Start)
	r.Get("/export/status", h.Status)
	r.Post("/export/cancel", h.Cancel)
	r.Get("/export/download", h.Download)

	return r
}

func TestExportHandler_StartRequiresEntryID(t *testing.T) {
	router := exportFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/export", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestExportHandler_StartEncryptRequiresPassword(t *testing.T) {
	router := exportFixture(t)

	body, _ := json.Marshal(StartExportRequest{EntryID: "ent_export01", Encrypt: true})
	req := httptest.NewRequest(http.MethodPost, "/export", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestExportHandler_StartUnknownEntry(t *testing.T) {
	router := exportFixture(t)

	body, _ := json.Marshal(StartExportRequest{EntryID: "ent_missing1"})
	req := httptest.NewRequest(http.MethodPost, "/export", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// The export starts and fails asynchronously; the start itself is accepted.
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["export_id"] == "" {
		t.Error("export_id should be set")
	}
}

func TestExportHandler_StatusIdle(t *testing.T) {
	router := exportFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/export/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Phase string `json:"phase"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Phase != "idle" {
		t.Errorf("phase = %q, want idle", resp.Phase)
	}
}

func TestExportHandler_CancelWithoutExport(t *testing.T) {
	router := exportFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/export/cancel", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestExportHandler_DownloadWithoutBundle(t *testing.T) {
	router := exportFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/export/download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
