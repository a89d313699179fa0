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
	"github.com/adscope/adscope/internal/downloader"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/internal/service"
	"github.com/adscope/adscope/pkg/backend"
)

func mergeFixture(t *testing.T) *chi.Mux {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/settings/ai/veo/merge-videos", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"output_path": "/merged/out.mp4",
			"public_url":  "https://backend.example.com/merged/out.mp4",
		})
	})
	mux.HandleFunc("/settings/ai/veo/merged-videos", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"videos": []interface{}{}})
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
	svc := service.NewMergeService(client,
		repository.NewSQLiteHistoryRepository(db),
		repository.NewFilesystemSessionRepository(filepath.Join(dir, "state")),
		downloader.NewHTTPDownloader(config.DownloadConfig{Timeout: 10 * time.Second, ReadTimeout: 10 * time.Second}),
		config.StorageConfig{BasePath: filepath.Join(dir, "media")},
		testLogger())

	h := NewMergeHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Post("/ads/{adID}/selection/toggle", h.ToggleClip)
	r.Get("/ads/{adID}/selection", h.Selection)
	r.Delete("/ads/{adID}/selection", h.ClearSelection)
	r.Post("/ads/{adID}/merge", h.Merge)
	r.Get("/ads/{adID}/merges", h.ListMerges)
	r.Post("/ads/{adID}/bulk-download", h.BulkDownload)
	r.Get("/merged-videos", h.MergedVideos)
	r.Post("/ads/{adID}/send-to-editor", h.SendToEditor)

	return r
}

func toggleClip(t *testing.T, router *chi.Mux, adID string, slot int, url string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(ToggleClipRequest{SlotIndex: slot, URL: url})
	req := httptest.NewRequest(http.MethodPost, "/ads/"+adID+"/selection/toggle", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMergeHandler_ToggleAndSelection(t *testing.T) {
	router := mergeFixture(t)

	w := toggleClip(t, router, "1165490822069878", 0, "https://cdn.example.com/a.mp4")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Selection map[string]string `json:"selection"`
		Count     int               `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.Selection["0"] != "https://cdn.example.com/a.mp4" {
		t.Errorf("unexpected selection: %+v", resp)
	}

	// Same pair deselects.
	w = toggleClip(t, router, "1165490822069878", 0, "https://cdn.example.com/a.mp4")
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("expected empty selection, got %+v", resp)
	}
}

func TestMergeHandler_ToggleRequiresURL(t *testing.T) {
	router := mergeFixture(t)

	w := toggleClip(t, router, "1165490822069878", 0, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMergeHandler_MergeRequiresTwoClips(t *testing.T) {
	router := mergeFixture(t)

	toggleClip(t, router, "1165490822069878", 0, "https://cdn.example.com/a.mp4")

	req := httptest.NewRequest(http.MethodPost, "/ads/1165490822069878/merge", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMergeHandler_Merge(t *testing.T) {
	router := mergeFixture(t)

	toggleClip(t, router, "1165490822069878", 0, "https://cdn.example.com/a.mp4")
	toggleClip(t, router, "1165490822069878", 1, "https://cdn.example.com/b.mp4")

	req := httptest.NewRequest(http.MethodPost, "/ads/1165490822069878/merge", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp MergeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OutputURL != "https://backend.example.com/merged/out.mp4" {
		t.Errorf("output_url = %q", resp.OutputURL)
	}
	if resp.Cached {
		t.Error("first merge should not be cached")
	}

	// Repeating the merge with the same selection hits the signature cache.
	req = httptest.NewRequest(http.MethodPost, "/ads/1165490822069878/merge", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Cached {
		t.Error("repeat merge should be served from cache")
	}
}

func TestMergeHandler_BulkDownloadWithoutSelection(t *testing.T) {
	router := mergeFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/ads/1165490822069878/bulk-download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMergeHandler_ClearSelection(t *testing.T) {
	router := mergeFixture(t)

	toggleClip(t, router, "1165490822069878", 0, "https://cdn.example.com/a.mp4")

	req := httptest.NewRequest(http.MethodDelete, "/ads/1165490822069878/selection", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	req = httptest.NewRequest(http.MethodGet, "/ads/1165490822069878/selection", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("selection should be empty after clear, got %d", resp.Count)
	}
}

func TestMergeHandler_SendToEditorWithoutSelection(t *testing.T) {
	router := mergeFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/ads/1165490822069878/send-to-editor", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
