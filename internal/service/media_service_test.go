package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/adscope/adscope/internal/config"
	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/downloader"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/pkg/backend"
)

// stubDownloader serves canned bytes per URL.
type stubDownloader struct {
	content map[string][]byte
	err     error
}

func (d *stubDownloader) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	if d.err != nil {
		return nil, 0, d.err
	}
	data, ok := d.content[url]
	if !ok {
		return nil, 0, errors.New("unknown url")
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (d *stubDownloader) Probe(ctx context.Context, url string) (*downloader.ProbeResult, error) {
	_, ok := d.content[url]
	return &downloader.ProbeResult{Accessible: ok}, nil
}

func adLibraryStub(t *testing.T, status int, body interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ads/library/download" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func mediaFixture(t *testing.T, server *httptest.Server, dl downloader.Downloader) (*MediaService, repository.HistoryRepository, *repository.InMemoryJobRepository, config.StorageConfig) {
	t.Helper()

	dir := t.TempDir()
	db, err := repository.OpenSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	historyRepo := repository.NewSQLiteHistoryRepository(db)
	jobRepo := repository.NewInMemoryJobRepository()
	storageCfg := config.StorageConfig{
		BasePath: filepath.Join(dir, "ads"),
		TempPath: filepath.Join(dir, "temp"),
	}

	client := backend.NewClient(config.BackendConfig{BaseURL: server.URL, APIKey: "test-key"})
	svc := NewMediaService(client, historyRepo, jobRepo, dl, storageCfg,
		config.WorkerConfig{MaxRetries: 3}, testLogger())

	return svc, historyRepo, jobRepo, storageCfg
}

func fetchResponse() map[string]interface{} {
	return map[string]interface{}{
		"ad_archive_id": "1165490822069878",
		"source":        "facebook",
		"page_name":     "Test Page",
		"media": []map[string]interface{}{
			{"kind": "video", "url": "https://video.xx.fbcdn.net/v/clip.mp4?oh=abc"},
			{"kind": "image", "url": "https://scontent.xx.fbcdn.net/image.jpg"},
		},
	}
}

func TestMediaService_FetchRecordsHistoryEntry(t *testing.T) {
	server := adLibraryStub(t, http.StatusOK, fetchResponse())
	svc, historyRepo, jobRepo, _ := mediaFixture(t, server, &stubDownloader{})

	res, err := svc.Fetch(context.Background(), FetchRequest{
		Input: "https://www.facebook.com/ads/library/?id=1165490822069878",
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if res.Ad.ArchiveID != "1165490822069878" {
		t.Errorf("unexpected archive id %s", res.Ad.ArchiveID)
	}
	if res.Entry.VideoCount != 1 || res.Entry.ImageCount != 1 {
		t.Errorf("unexpected media counts: %+v", res.Entry)
	}
	if len(res.JobIDs) != 0 {
		t.Error("no downloads should be queued without the download flag")
	}

	stored, err := historyRepo.GetEntryByAdID(context.Background(), "1165490822069878")
	if err != nil {
		t.Fatalf("entry not recorded: %v", err)
	}
	if stored.PageName != "Test Page" {
		t.Errorf("unexpected page name %q", stored.PageName)
	}

	stats, _ := jobRepo.Stats(context.Background())
	if stats.Queued != 0 {
		t.Errorf("expected empty queue, got %d", stats.Queued)
	}
}

func TestMediaService_FetchQueuesDownloads(t *testing.T) {
	server := adLibraryStub(t, http.StatusOK, fetchResponse())
	svc, _, jobRepo, _ := mediaFixture(t, server, &stubDownloader{})

	res, err := svc.Fetch(context.Background(), FetchRequest{
		Input:    "1165490822069878",
		Download: true,
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(res.JobIDs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(res.JobIDs))
	}

	stats, _ := jobRepo.Stats(context.Background())
	if stats.Queued != 2 {
		t.Errorf("expected 2 queued jobs, got %d", stats.Queued)
	}
}

func TestMediaService_FetchInvalidInput(t *testing.T) {
	server := adLibraryStub(t, http.StatusOK, fetchResponse())
	svc, _, _, _ := mediaFixture(t, server, &stubDownloader{})

	_, err := svc.Fetch(context.Background(), FetchRequest{Input: "not an ad"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMediaService_FetchDeletedAd(t *testing.T) {
	server := adLibraryStub(t, http.StatusNotFound, map[string]string{"detail": "ad not found"})
	svc, _, _, _ := mediaFixture(t, server, &stubDownloader{})

	_, err := svc.Fetch(context.Background(), FetchRequest{Input: "1165490822069878"})
	if !errors.Is(err, domain.ErrAdNotFound) {
		t.Errorf("expected ErrAdNotFound, got %v", err)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound should report true")
	}
}

func TestMediaService_ProcessJobSavesMedia(t *testing.T) {
	server := adLibraryStub(t, http.StatusOK, fetchResponse())
	mediaURL := "https://video.xx.fbcdn.net/v/clip.mp4?oh=abc"
	dl := &stubDownloader{content: map[string][]byte{
		mediaURL: []byte("video bytes"),
	}}
	svc, historyRepo, _, storageCfg := mediaFixture(t, server, dl)

	entry := &domain.HistoryEntry{
		ID:          "ent_dl000001",
		AdArchiveID: "1165490822069878",
		Source:      domain.SourceFacebook,
		InputURL:    "1165490822069878",
		MediaType:   domain.MediaTypeVideo,
	}
	if err := historyRepo.CreateEntry(context.Background(), entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	job := domain.NewJob("job_dl000001", entry.ID, mediaURL, 3)
	if err := svc.ProcessJob(context.Background(), job); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	// Query parameters are dropped from the stored filename.
	dest := filepath.Join(storageCfg.BasePath, "1165490822069878", "clip.mp4")
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("media not saved: %v", err)
	}
	if string(data) != "video bytes" {
		t.Errorf("unexpected file content %q", data)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("partial file should be renamed away")
	}
}

func TestMediaService_ProcessJobDownloadFailure(t *testing.T) {
	server := adLibraryStub(t, http.StatusOK, fetchResponse())
	dl := &stubDownloader{err: domain.ErrURLExpired}
	svc, historyRepo, _, _ := mediaFixture(t, server, dl)

	entry := &domain.HistoryEntry{
		ID:          "ent_dl000002",
		AdArchiveID: "1165490822069878",
		InputURL:    "1165490822069878",
		MediaType:   domain.MediaTypeVideo,
	}
	if err := historyRepo.CreateEntry(context.Background(), entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	job := domain.NewJob("job_dl000002", entry.ID, "https://video.xx.fbcdn.net/v/clip.mp4", 3)
	err := svc.ProcessJob(context.Background(), job)
	if !errors.Is(err, domain.ErrDownloadFailed) {
		t.Errorf("expected ErrDownloadFailed, got %v", err)
	}
}

func TestMediaService_ProcessJobUnknownEntry(t *testing.T) {
	server := adLibraryStub(t, http.StatusOK, fetchResponse())
	svc, _, _, _ := mediaFixture(t, server, &stubDownloader{})

	job := domain.NewJob("job_dl000003", "ent_missing", "https://video.xx.fbcdn.net/v/clip.mp4", 3)
	if err := svc.ProcessJob(context.Background(), job); err == nil {
		t.Error("expected error for unknown entry")
	}
}

func TestFilenameFor(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://video.xx.fbcdn.net/v/clip.mp4?oh=abc&oe=def", "clip.mp4"},
		{"https://scontent.cdninstagram.com/o1/photo.jpg", "photo.jpg"},
		{"https://cdn.example.com/", "media.bin"},
		{"://bad", "media.bin"},
	}
	for _, tc := range tests {
		if got := filenameFor(tc.url); got != tc.want {
			t.Errorf("filenameFor(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
