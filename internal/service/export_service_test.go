package service

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adscope/adscope/internal/config"
	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/pkg/crypto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func exportFixture(t *testing.T) (*ExportService, *domain.HistoryEntry, config.StorageConfig) {
	t.Helper()

	dir := t.TempDir()
	db, err := repository.OpenSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	historyRepo := repository.NewSQLiteHistoryRepository(db)
	genRepo := repository.NewSQLiteGenerationRepository(db)

	storageCfg := config.StorageConfig{
		BasePath: filepath.Join(dir, "ads"),
		TempPath: filepath.Join(dir, "temp"),
	}

	entry := &domain.HistoryEntry{
		ID:          "ent_export01",
		AdArchiveID: "1165490822069878",
		Source:      domain.SourceFacebook,
		InputURL:    "https://www.facebook.com/ads/library/?id=1165490822069878",
		PageName:    "Test Page",
		MediaType:   domain.MediaTypeVideo,
		VideoCount:  1,
		CreatedAt:   time.Now(),
	}
	if err := historyRepo.CreateEntry(context.Background(), entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	mediaDir := filepath.Join(storageCfg.BasePath, "1165490822069878")
	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		t.Fatalf("create media dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(mediaDir, "video.mp4"), []byte("fake video bytes"), 0644); err != nil {
		t.Fatalf("write media file: %v", err)
	}
	// Partial downloads must not end up in bundles.
	if err := os.WriteFile(filepath.Join(mediaDir, "video2.mp4.part"), []byte("partial"), 0644); err != nil {
		t.Fatalf("write partial file: %v", err)
	}

	svc := NewExportService(historyRepo, genRepo, storageCfg, testLogger())
	return svc, entry, storageCfg
}

func waitForExport(t *testing.T, svc *ExportService) *ActiveExport {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status := svc.Status()
		if !exportRunning(status.Phase) {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("export did not finish in time")
	return nil
}

func TestExportService_BundleContents(t *testing.T) {
	svc, entry, _ := exportFixture(t)

	id, err := svc.StartExport(ExportOptions{EntryID: entry.ID})
	if err != nil {
		t.Fatalf("StartExport failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty export id")
	}

	status := waitForExport(t, svc)
	if status.Phase != "completed" {
		t.Fatalf("expected phase completed, got %q (error: %s)", status.Phase, status.Error)
	}

	bundlePath, err := svc.BundlePath()
	if err != nil {
		t.Fatalf("BundlePath failed: %v", err)
	}

	zr, err := zip.OpenReader(bundlePath)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["manifest.json"] {
		t.Error("bundle missing manifest.json")
	}
	if !names["media/video.mp4"] {
		t.Error("bundle missing media/video.mp4")
	}
	if names["media/video2.mp4.part"] {
		t.Error("bundle should not contain partial downloads")
	}
}

func TestExportService_Encrypted(t *testing.T) {
	svc, entry, _ := exportFixture(t)

	_, err := svc.StartExport(ExportOptions{EntryID: entry.ID, Encrypt: true, Password: "hunter2"})
	if err != nil {
		t.Fatalf("StartExport failed: %v", err)
	}

	status := waitForExport(t, svc)
	if status.Phase != "completed" {
		t.Fatalf("expected phase completed, got %q (error: %s)", status.Phase, status.Error)
	}

	bundlePath, err := svc.BundlePath()
	if err != nil {
		t.Fatalf("BundlePath failed: %v", err)
	}
	if !crypto.IsEncryptedFile(bundlePath) {
		t.Error("bundle should carry the encrypted header")
	}

	plain, err := crypto.DecryptFile(bundlePath, "hunter2")
	if err != nil {
		t.Fatalf("decrypt bundle: %v", err)
	}
	if len(plain) == 0 {
		t.Error("decrypted bundle is empty")
	}
}

func TestExportService_EncryptRequiresPassword(t *testing.T) {
	svc, entry, _ := exportFixture(t)

	_, err := svc.StartExport(ExportOptions{EntryID: entry.ID, Encrypt: true})
	if err != domain.ErrInvalidInput {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExportService_StatusIdle(t *testing.T) {
	svc, _, _ := exportFixture(t)

	status := svc.Status()
	if status.Phase != "idle" {
		t.Errorf("expected phase idle, got %q", status.Phase)
	}
}

func TestExportService_CancelWithoutExport(t *testing.T) {
	svc, _, _ := exportFixture(t)

	if err := svc.Cancel(); err == nil {
		t.Error("expected error when cancelling with no active export")
	}
}

func TestExportService_RejectsConcurrentExport(t *testing.T) {
	svc, entry, _ := exportFixture(t)

	svc.mu.Lock()
	svc.active = &ActiveExport{ID: "exp_1", Phase: "exporting", cancelFunc: func() {}}
	svc.mu.Unlock()

	_, err := svc.StartExport(ExportOptions{EntryID: entry.ID})
	if err != ErrExportInProgress {
		t.Errorf("expected ErrExportInProgress, got %v", err)
	}
}

func TestExportService_UnknownEntryFails(t *testing.T) {
	svc, _, _ := exportFixture(t)

	_, err := svc.StartExport(ExportOptions{EntryID: "ent_missing"})
	if err != nil {
		t.Fatalf("StartExport failed: %v", err)
	}

	status := waitForExport(t, svc)
	if status.Phase != "failed" {
		t.Errorf("expected phase failed, got %q", status.Phase)
	}
}
