package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/adscope/adscope/internal/domain"
)

func TestFilesystemSessionRepository_GetEmpty(t *testing.T) {
	repo := NewFilesystemSessionRepository(t.TempDir())

	s := repo.Get(context.Background(), "100")
	if s.AdArchiveID != "100" {
		t.Errorf("AdArchiveID = %q", s.AdArchiveID)
	}
	if s.Prompts == nil || s.Selection == nil {
		t.Error("empty session should have initialized maps")
	}
}

func TestFilesystemSessionRepository_PutPersists(t *testing.T) {
	dir := t.TempDir()
	repo := NewFilesystemSessionRepository(dir)
	ctx := context.Background()

	session := repo.Get(ctx, "100")
	session.SelectedVideoURL = "https://cdn/v.mp4"
	session.Prompts["https://cdn/v.mp4"] = []string{"opening hook", "product shot"}
	session.Selection.Toggle(1, "https://cdn/c1.mp4")

	if err := repo.Put(ctx, session); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// A fresh repository over the same directory sees the state.
	reloaded := NewFilesystemSessionRepository(dir)
	got := reloaded.Get(ctx, "100")
	if got.SelectedVideoURL != "https://cdn/v.mp4" {
		t.Errorf("SelectedVideoURL = %q", got.SelectedVideoURL)
	}
	if len(got.Prompts["https://cdn/v.mp4"]) != 2 {
		t.Errorf("Prompts = %v", got.Prompts)
	}
	if got.Selection[1] != "https://cdn/c1.mp4" {
		t.Errorf("Selection = %v", got.Selection)
	}
}

func TestFilesystemSessionRepository_GetReturnsCopy(t *testing.T) {
	repo := NewFilesystemSessionRepository(t.TempDir())
	ctx := context.Background()

	session := repo.Get(ctx, "100")
	session.Selection.Toggle(1, "https://cdn/c1.mp4")
	if err := repo.Put(ctx, session); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	copy1 := repo.Get(ctx, "100")
	copy1.Selection.Toggle(2, "https://cdn/c2.mp4")

	copy2 := repo.Get(ctx, "100")
	if _, ok := copy2.Selection[2]; ok {
		t.Error("mutating a returned session leaked into the store")
	}
}

func TestFilesystemSessionRepository_Delete(t *testing.T) {
	dir := t.TempDir()
	repo := NewFilesystemSessionRepository(dir)
	ctx := context.Background()

	session := repo.Get(ctx, "100")
	session.SelectedVideoURL = "https://cdn/v.mp4"
	repo.Put(ctx, session)

	if err := repo.Delete(ctx, "100"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := repo.Get(ctx, "100"); got.SelectedVideoURL != "" {
		t.Errorf("session survived delete: %+v", got)
	}

	// Deleting a missing session is a no-op.
	if err := repo.Delete(ctx, "999"); err != nil {
		t.Errorf("Delete of missing session: %v", err)
	}
}

func TestFilesystemSessionRepository_EditorHandoff(t *testing.T) {
	dir := t.TempDir()
	repo := NewFilesystemSessionRepository(dir)
	ctx := context.Background()

	clips := []domain.EditorClip{
		{SlotIndex: 1, URL: "https://cdn/c1.mp4", Prompt: "opening hook"},
		{SlotIndex: 3, URL: "https://cdn/c3.mp4", Prompt: "call to action"},
	}
	if err := repo.WriteEditorHandoff(ctx, clips); err != nil {
		t.Fatalf("WriteEditorHandoff failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "editor_clips.json")); err != nil {
		t.Fatalf("hand-off file not written: %v", err)
	}

	got, err := repo.ReadEditorHandoff(ctx)
	if err != nil {
		t.Fatalf("ReadEditorHandoff failed: %v", err)
	}
	if len(got) != 2 || got[0].SlotIndex != 1 || got[1].URL != "https://cdn/c3.mp4" {
		t.Errorf("clips = %+v", got)
	}
}

func TestFilesystemSessionRepository_ReadEditorHandoff_Missing(t *testing.T) {
	repo := NewFilesystemSessionRepository(t.TempDir())

	got, err := repo.ReadEditorHandoff(context.Background())
	if err != nil {
		t.Fatalf("ReadEditorHandoff failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty payload, got %v", got)
	}
}
