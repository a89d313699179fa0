package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/service"
)

func eventsFixture(t *testing.T) (*chi.Mux, *service.EventService) {
	t.Helper()

	svc := service.NewEventService(service.EventServiceConfig{RingBufferSize: 100}, testLogger())
	h := NewEventsHandler(svc, testLogger())

	router := chi.NewRouter()
	router.Get("/events", h.List)
	router.Get("/events/recent", h.Recent)
	router.Get("/events/stats", h.Stats)
	router.Get("/events/stream", h.Stream)
	return router, svc
}

func TestEventsHandler_List_FilterBySeverity(t *testing.T) {
	router, svc := eventsFixture(t)

	svc.EmitInfo(domain.EventCategoryDownload, "media_svc", "download queued", nil)
	svc.EmitError(domain.EventCategoryGeneration, "generation_svc", "submission failed", nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?severity=error", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result domain.EventQueryResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(result.Events))
	}
	if result.Events[0].Message != "submission failed" {
		t.Errorf("expected 'submission failed', got '%s'", result.Events[0].Message)
	}
}

func TestEventsHandler_Recent(t *testing.T) {
	router, svc := eventsFixture(t)

	for i := 0; i < 5; i++ {
		svc.EmitInfo(domain.EventCategorySystem, "test", "event", nil)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/recent?limit=3", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Events []domain.Event `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 3 {
		t.Errorf("expected 3 events, got %d", len(resp.Events))
	}
}

func TestEventsHandler_Stats(t *testing.T) {
	router, svc := eventsFixture(t)

	svc.EmitInfo(domain.EventCategorySystem, "test", "event", nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats service.EventStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.BufferUsed != 1 {
		t.Errorf("expected buffer used 1, got %d", stats.BufferUsed)
	}
	if stats.BufferSize != 100 {
		t.Errorf("expected buffer size 100, got %d", stats.BufferSize)
	}
}

func TestEventsHandler_Stream(t *testing.T) {
	router, svc := eventsFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for the handler to subscribe before emitting.
	deadline := time.Now().Add(2 * time.Second)
	for svc.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("timeout waiting for stream subscription")
		}
		time.Sleep(10 * time.Millisecond)
	}

	svc.EmitSuccess(domain.EventCategoryMerge, "merge_svc", "merge complete", nil)
	time.Sleep(250 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: connected") {
		t.Error("expected connected event in stream")
	}
	if !strings.Contains(body, "merge complete") {
		t.Errorf("expected emitted event in stream, got: %s", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %s", ct)
	}
}
