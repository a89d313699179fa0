package service

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adscope/adscope/internal/config"
	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/pkg/crypto"
)

// ExportService builds portable bundles of an archived ad: the downloaded
// media files plus a JSON manifest of the generation and merge history.
// Exports run in the background; only one can be active at a time.
type ExportService struct {
	historyRepo repository.HistoryRepository
	genRepo     repository.GenerationRepository
	storageCfg  config.StorageConfig
	events      domain.EventEmitter
	logger      *slog.Logger

	mu     sync.Mutex
	active *ActiveExport
}

// ActiveExport tracks an in-progress export operation.
type ActiveExport struct {
	ID           string             `json:"export_id"`
	EntryID      domain.EntryID     `json:"entry_id"`
	Phase        string             `json:"phase"` // preparing, exporting, finalizing, completed, failed, cancelled
	TotalFiles   int                `json:"total_files"`
	WrittenFiles int                `json:"written_files"`
	BytesWritten int64              `json:"bytes_written"`
	CurrentFile  string             `json:"current_file,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	Error        string             `json:"error,omitempty"`
	BundlePath   string             `json:"bundle_path,omitempty"`
	Encrypted    bool               `json:"encrypted"`
	cancelFunc   context.CancelFunc `json:"-"`
}

// ExportOptions controls one bundle export.
type ExportOptions struct {
	EntryID  domain.EntryID
	Encrypt  bool
	Password string
}

// ErrExportInProgress is returned when an export is already running.
var ErrExportInProgress = fmt.Errorf("export already in progress")

// NewExportService creates a new export service.
func NewExportService(
	historyRepo repository.HistoryRepository,
	genRepo repository.GenerationRepository,
	storageCfg config.StorageConfig,
	logger *slog.Logger,
) *ExportService {
	return &ExportService{
		historyRepo: historyRepo,
		genRepo:     genRepo,
		storageCfg:  storageCfg,
		events:      NullEventEmitter{},
		logger:      logger,
	}
}

// SetEventEmitter attaches an activity feed to the service.
func (s *ExportService) SetEventEmitter(e domain.EventEmitter) {
	s.events = e
}

func exportRunning(phase string) bool {
	return phase == "preparing" || phase == "exporting" || phase == "finalizing"
}

// StartExport begins a bundle export for one history entry and returns
// the export id. Progress is reported through Status.
func (s *ExportService) StartExport(opts ExportOptions) (string, error) {
	if opts.Encrypt && opts.Password == "" {
		return "", domain.ErrInvalidInput
	}

	s.mu.Lock()
	if s.active != nil && exportRunning(s.active.Phase) {
		s.mu.Unlock()
		return "", ErrExportInProgress
	}

	exportID := fmt.Sprintf("exp_%d", time.Now().UnixNano())
	ctx, cancel := context.WithCancel(context.Background())
	s.active = &ActiveExport{
		ID:         exportID,
		EntryID:    opts.EntryID,
		Phase:      "preparing",
		StartedAt:  time.Now(),
		Encrypted:  opts.Encrypt,
		cancelFunc: cancel,
	}
	s.mu.Unlock()

	go s.runExport(ctx, opts)

	return exportID, nil
}

// bundleManifest is the metadata file written into every bundle.
type bundleManifest struct {
	Entry       *domain.HistoryEntry       `json:"entry"`
	Generations []*domain.GenerationRecord `json:"generations,omitempty"`
	Merges      []*domain.MergeRecord      `json:"merges,omitempty"`
	ExportedAt  time.Time                  `json:"exported_at"`
	Version     string                     `json:"version"`
}

func (s *ExportService) runExport(ctx context.Context, opts ExportOptions) {
	defer func() {
		s.mu.Lock()
		if s.active != nil && exportRunning(s.active.Phase) {
			s.active.Phase = "failed"
			s.active.Error = "unexpected exit"
		}
		s.mu.Unlock()
	}()

	entry, err := s.historyRepo.GetEntry(ctx, opts.EntryID)
	if err != nil {
		s.fail(fmt.Sprintf("load entry: %v", err))
		return
	}

	merges, err := s.historyRepo.ListMerges(ctx, entry.AdArchiveID)
	if err != nil {
		s.fail(fmt.Sprintf("list merges: %v", err))
		return
	}

	var generations []*domain.GenerationRecord
	seen := make(map[domain.GenerationID]bool)
	for _, m := range merges {
		for _, u := range m.InputURLs {
			recs, err := s.genRepo.ListByVideoURL(ctx, u)
			if err != nil {
				continue
			}
			for _, rec := range recs {
				if !seen[rec.ID] {
					seen[rec.ID] = true
					generations = append(generations, rec)
				}
			}
		}
	}

	mediaDir := filepath.Join(s.storageCfg.BasePath, storageDirFor(entry))
	files := listBundleFiles(mediaDir)

	s.mu.Lock()
	s.active.Phase = "exporting"
	s.active.TotalFiles = len(files) + 1 // plus the manifest
	s.mu.Unlock()

	if err := os.MkdirAll(s.storageCfg.TempPath, 0755); err != nil {
		s.fail(fmt.Sprintf("create temp directory: %v", err))
		return
	}
	bundlePath := filepath.Join(s.storageCfg.TempPath,
		fmt.Sprintf("ad-bundle-%s-%s.zip", entry.AdArchiveID, time.Now().Format("2006-01-02")))

	manifest := bundleManifest{
		Entry:       entry,
		Generations: generations,
		Merges:      merges,
		ExportedAt:  time.Now().UTC(),
		Version:     "1.0",
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		s.fail(fmt.Sprintf("marshal manifest: %v", err))
		return
	}

	if err := s.writeBundle(ctx, bundlePath, mediaDir, files, manifestJSON); err != nil {
		os.Remove(bundlePath)
		if ctx.Err() != nil {
			s.mu.Lock()
			s.active.Phase = "cancelled"
			s.mu.Unlock()
			s.logger.Info("export cancelled", "entry_id", entry.ID)
			return
		}
		s.fail(fmt.Sprintf("write bundle: %v", err))
		return
	}

	if opts.Encrypt {
		s.mu.Lock()
		s.active.Phase = "finalizing"
		s.active.CurrentFile = "encrypting bundle"
		s.mu.Unlock()

		encPath := bundlePath + ".enc"
		if err := crypto.EncryptFile(bundlePath, encPath, opts.Password); err != nil {
			os.Remove(bundlePath)
			s.fail(fmt.Sprintf("encrypt bundle: %v", err))
			return
		}
		os.Remove(bundlePath)
		bundlePath = encPath
	}

	s.mu.Lock()
	s.active.Phase = "completed"
	s.active.CurrentFile = ""
	s.active.BundlePath = bundlePath
	bytesWritten := s.active.BytesWritten
	s.mu.Unlock()

	s.events.EmitSuccess(domain.EventCategoryExport, "ExportService",
		fmt.Sprintf("Export complete for ad %s", entry.AdArchiveID),
		domain.EventMetadata{
			"entry_id":  entry.ID.String(),
			"files":     len(files),
			"bytes":     bytesWritten,
			"encrypted": opts.Encrypt,
		})

	s.logger.Info("export complete",
		"entry_id", entry.ID,
		"ad_archive_id", entry.AdArchiveID,
		"files", len(files),
		"bytes", bytesWritten,
		"encrypted", opts.Encrypt,
		"bundle", bundlePath,
	)
}

// writeBundle streams the manifest and media files into a zip archive.
func (s *ExportService) writeBundle(ctx context.Context, bundlePath, mediaDir string, files []string, manifestJSON []byte) error {
	zipFile, err := os.Create(bundlePath)
	if err != nil {
		return fmt.Errorf("create bundle file: %w", err)
	}
	defer zipFile.Close()

	zw := zip.NewWriter(zipFile)

	w, err := zw.Create("manifest.json")
	if err != nil {
		return err
	}
	if _, err := w.Write(manifestJSON); err != nil {
		return err
	}
	s.progress("manifest.json", int64(len(manifestJSON)))

	for _, path := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(mediaDir, path)
		if err != nil {
			return err
		}
		entry, err := zw.Create("media/" + filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			s.logger.Warn("skipping unreadable media file", "path", path, "error", err)
			continue
		}
		n, err := io.Copy(entry, f)
		f.Close()
		if err != nil {
			return err
		}
		s.progress(rel, n)
	}

	if err := zw.Close(); err != nil {
		return err
	}
	// Sync matters for bundles written to removable media.
	return zipFile.Sync()
}

func (s *ExportService) progress(name string, bytes int64) {
	s.mu.Lock()
	s.active.WrittenFiles++
	s.active.BytesWritten += bytes
	s.active.CurrentFile = name
	s.mu.Unlock()
}

func (s *ExportService) fail(msg string) {
	s.mu.Lock()
	if s.active != nil {
		s.active.Phase = "failed"
		s.active.Error = msg
	}
	s.mu.Unlock()
	s.events.EmitError(domain.EventCategoryExport, "ExportService", "Export failed: "+msg, nil)
	s.logger.Error("export failed", "error", msg)
}

// listBundleFiles returns every regular file under dir, skipping partial
// downloads. A missing directory yields an empty list; metadata-only
// bundles are valid.
func listBundleFiles(dir string) []string {
	var files []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || strings.HasSuffix(path, ".part") {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files
}

// Status returns a copy of the current export state.
func (s *ExportService) Status() *ActiveExport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return &ActiveExport{Phase: "idle"}
	}
	out := *s.active
	out.cancelFunc = nil
	return &out
}

// Cancel stops an in-progress export.
func (s *ExportService) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || !exportRunning(s.active.Phase) {
		return fmt.Errorf("no export in progress")
	}

	s.active.cancelFunc()
	return nil
}

// BundlePath returns the path of the completed bundle, ready to serve.
func (s *ExportService) BundlePath() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.Phase != "completed" {
		return "", fmt.Errorf("no completed export available")
	}
	return s.active.BundlePath, nil
}

// CleanupBundle removes the bundle file after it has been served.
func (s *ExportService) CleanupBundle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.BundlePath == "" {
		return
	}
	if err := os.Remove(s.active.BundlePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove bundle", "path", s.active.BundlePath, "error", err)
	}
	s.active.BundlePath = ""
}
