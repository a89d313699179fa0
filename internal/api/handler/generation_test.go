package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adscope/adscope/internal/config"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/internal/service"
	"github.com/adscope/adscope/pkg/backend"
)

func generationFixture(t *testing.T) *chi.Mux {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/settings/ai/veo/generate-video-async", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"task_id": "task-http-1"})
	})
	mux.HandleFunc("/settings/ai/veo/models", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]interface{}{
				{"key": "veo-3.0-fast", "name": "Veo 3 Fast", "estimated_seconds": 60},
			},
		})
	})
	mux.HandleFunc("/settings/ai/veo/generations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"generations": []interface{}{}})
	})
	mux.HandleFunc("/settings/ai/veo/tasks/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"state": "PENDING"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	db, err := repository.OpenSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client := backend.NewClient(config.BackendConfig{BaseURL: server.URL, APIKey: "test-key"})
	svc := service.NewGenerationService(client,
		repository.NewSQLiteGenerationRepository(db),
		repository.NewSQLiteHistoryRepository(db),
		config.VeoConfig{
			PollInterval:   time.Hour, // pending tasks stay pending for the test's lifetime
			DefaultModel:   "veo-3.0-fast",
			DefaultAspect:  "9:16",
			ModelsCacheTTL: time.Minute,
		},
		testLogger())
	t.Cleanup(svc.Close)

	h := NewGenerationHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Get("/generations/models", h.Models)
	r.Post("/generations", h.Submit)
	r.Post("/generations/batch", h.SubmitBatch)
	r.Get("/generations/tasks", h.Tasks)
	r.Get("/generations/tasks/{taskID}", h.TaskStatus)
	r.Delete("/generations/tasks/{taskID}", h.CancelTask)
	r.Post("/generations/reconcile", h.Reconcile)

	return r
}

func TestGenerationHandler_Submit(t *testing.T) {
	router := generationFixture(t)

	body, _ := json.Marshal(SubmitGenerationRequest{
		VideoURL:   "https://video.xx.fbcdn.net/v/clip.mp4",
		PromptText: "Opening hook, handheld close-up",
	})
	req := httptest.NewRequest(http.MethodPost, "/generations", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["task_id"] != "task-http-1" {
		t.Errorf("task_id = %q", resp["task_id"])
	}

	// The submitted task is visible on the task list.
	req = httptest.NewRequest(http.MethodGet, "/generations/tasks/task-http-1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("task status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestGenerationHandler_SubmitEmptyPrompt(t *testing.T) {
	router := generationFixture(t)

	body, _ := json.Marshal(SubmitGenerationRequest{
		VideoURL:   "https://video.xx.fbcdn.net/v/clip.mp4",
		PromptText: "   ",
	})
	req := httptest.NewRequest(http.MethodPost, "/generations", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGenerationHandler_SubmitBatchRequiresRequests(t *testing.T) {
	router := generationFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/generations/batch",
		bytes.NewReader([]byte(`{"requests":[]}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGenerationHandler_TaskNotFound(t *testing.T) {
	router := generationFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/generations/tasks/task-missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGenerationHandler_CancelUnknownTask(t *testing.T) {
	router := generationFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/generations/tasks/task-missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGenerationHandler_ReconcileRequiresVideoURL(t *testing.T) {
	router := generationFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/generations/reconcile",
		bytes.NewReader([]byte(`{"prompts":["a"]}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGenerationHandler_Models(t *testing.T) {
	router := generationFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/generations/models", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Models []struct {
			Key string `json:"key"`
		} `json:"models"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Models) != 1 || resp.Models[0].Key != "veo-3.0-fast" {
		t.Errorf("unexpected models: %+v", resp.Models)
	}
}
