package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adscope/adscope/internal/config"
	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/downloader"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/pkg/backend"
)

// MergeService manages clip selections and merges selected clips into a
// single video through the upstream service. Repeat merges of the same
// selection return the cached artifact instead of re-encoding; the same
// signature guard covers bulk downloads of a selection.
type MergeService struct {
	backend     *backend.Client
	historyRepo repository.HistoryRepository
	sessionRepo *repository.FilesystemSessionRepository
	downloader  downloader.Downloader
	storageCfg  config.StorageConfig
	events      domain.EventEmitter
	logger      *slog.Logger

	bulkMu   sync.Mutex
	bulkDone map[string]*BulkDownloadResult
}

// NewMergeService creates a new merge service.
func NewMergeService(
	client *backend.Client,
	historyRepo repository.HistoryRepository,
	sessionRepo *repository.FilesystemSessionRepository,
	dl downloader.Downloader,
	storageCfg config.StorageConfig,
	logger *slog.Logger,
) *MergeService {
	return &MergeService{
		backend:     client,
		historyRepo: historyRepo,
		sessionRepo: sessionRepo,
		downloader:  dl,
		storageCfg:  storageCfg,
		events:      NullEventEmitter{},
		logger:      logger,
		bulkDone:    make(map[string]*BulkDownloadResult),
	}
}

// SetEventEmitter attaches an activity feed to the service.
func (s *MergeService) SetEventEmitter(e domain.EventEmitter) {
	s.events = e
}

// Toggle flips the selection of one clip for one slot and persists the
// session. It returns the updated selection.
func (s *MergeService) Toggle(ctx context.Context, adID domain.AdArchiveID, slot int, url string) (domain.ClipSelection, error) {
	session := s.sessionRepo.Get(ctx, adID.String())
	session.Selection.Toggle(slot, url)
	if err := s.sessionRepo.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("persist selection: %w", err)
	}
	return session.Selection.Clone(), nil
}

// Selection returns the current clip selection for an ad.
func (s *MergeService) Selection(ctx context.Context, adID domain.AdArchiveID) domain.ClipSelection {
	return s.sessionRepo.Get(ctx, adID.String()).Selection
}

// ClearSelection drops every selected clip for an ad.
func (s *MergeService) ClearSelection(ctx context.Context, adID domain.AdArchiveID) error {
	session := s.sessionRepo.Get(ctx, adID.String())
	if len(session.Selection) == 0 {
		return nil
	}
	session.Selection = make(domain.ClipSelection)
	return s.sessionRepo.Put(ctx, session)
}

// MergeResult is the outcome of a merge request.
type MergeResult struct {
	Record *domain.MergeRecord
	Cached bool
}

// Merge joins the currently selected clips, ascending slot order, into one
// video. At least two clips must be selected. A selection that was already
// merged short-circuits to the recorded artifact.
func (s *MergeService) Merge(ctx context.Context, adID domain.AdArchiveID) (*MergeResult, error) {
	session := s.sessionRepo.Get(ctx, adID.String())
	if len(session.Selection) < 2 {
		return nil, domain.ErrNotEnoughClips
	}

	signature := session.Selection.Signature()
	if existing, err := s.historyRepo.GetMergeBySignature(ctx, signature); err == nil {
		s.logger.Info("merge served from cache",
			"ad_archive_id", adID, "merge_id", existing.ID)
		return &MergeResult{Record: existing, Cached: true}, nil
	}

	inputs := session.Selection.Ordered()
	resp, err := s.backend.MergeVideos(ctx, backend.MergeVideosRequest{
		VideoURLs:   inputs,
		AdArchiveID: adID.String(),
	})
	if err != nil {
		return nil, domain.NewAdError(adID, "merge", err)
	}

	rec := &domain.MergeRecord{
		ID:          domain.MergeID("mrg_" + uuid.New().String()[:8]),
		AdArchiveID: adID,
		InputURLs:   inputs,
		Signature:   signature,
		OutputPath:  resp.OutputPath,
		OutputURL:   resp.PublicURL,
		CreatedAt:   time.Now(),
	}
	if err := s.historyRepo.CreateMerge(ctx, rec); err != nil {
		return nil, fmt.Errorf("record merge: %w", err)
	}

	s.bumpMergeCount(ctx, adID)

	s.events.EmitSuccess(domain.EventCategoryMerge, "MergeService",
		fmt.Sprintf("Merged %d clips for ad %s", len(inputs), adID),
		domain.EventMetadata{
			"ad_archive_id": adID.String(),
			"merge_id":      rec.ID.String(),
			"clips":         len(inputs),
		})

	s.logger.Info("merge completed",
		"ad_archive_id", adID,
		"merge_id", rec.ID,
		"clips", len(inputs),
		"output_url", rec.OutputURL,
	)

	return &MergeResult{Record: rec}, nil
}

func (s *MergeService) bumpMergeCount(ctx context.Context, adID domain.AdArchiveID) {
	entry, err := s.historyRepo.GetEntryByAdID(ctx, adID)
	if err != nil {
		return
	}
	err = s.historyRepo.UpdateCounts(ctx, entry.ID,
		entry.AnalysisCount, entry.PromptCount, entry.GenerationCount, entry.MergeCount+1)
	if err != nil {
		s.logger.Warn("failed to update merge count",
			"ad_archive_id", adID, "error", err)
	}
}

// BulkDownloadResult is the local bundle written for one selection.
type BulkDownloadResult struct {
	Signature string   `json:"signature"`
	BundleDir string   `json:"bundle_dir"`
	Files     []string `json:"files"`
	Cached    bool     `json:"cached,omitempty"`
}

// BulkDownload fetches the currently selected clips, ascending slot order,
// into a per-ad bundle directory. A selection that was already downloaded
// short-circuits to the recorded bundle.
func (s *MergeService) BulkDownload(ctx context.Context, adID domain.AdArchiveID) (*BulkDownloadResult, error) {
	session := s.sessionRepo.Get(ctx, adID.String())
	if len(session.Selection) == 0 {
		return nil, domain.ErrNotEnoughClips
	}

	signature := session.Selection.Signature()
	s.bulkMu.Lock()
	if prev, ok := s.bulkDone[signature]; ok {
		s.bulkMu.Unlock()
		s.logger.Info("bulk download served from cache",
			"ad_archive_id", adID, "bundle_dir", prev.BundleDir)
		cached := *prev
		cached.Cached = true
		return &cached, nil
	}
	s.bulkMu.Unlock()

	dir := filepath.Join(s.storageCfg.BasePath, adID.String(), "clips")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create bundle dir: %w", err)
	}

	urls := session.Selection.Ordered()
	files := make([]string, 0, len(urls))
	for i, clipURL := range urls {
		dest, err := s.downloadClip(ctx, dir, i, clipURL)
		if err != nil {
			return nil, fmt.Errorf("download clip %d: %w", i+1, err)
		}
		files = append(files, dest)
	}

	result := &BulkDownloadResult{Signature: signature, BundleDir: dir, Files: files}
	s.bulkMu.Lock()
	s.bulkDone[signature] = result
	s.bulkMu.Unlock()

	s.events.EmitSuccess(domain.EventCategoryDownload, "MergeService",
		fmt.Sprintf("Downloaded %d selected clips for ad %s", len(files), adID),
		domain.EventMetadata{
			"ad_archive_id": adID.String(),
			"clips":         len(files),
			"bundle_dir":    dir,
		})

	s.logger.Info("bulk download completed",
		"ad_archive_id", adID, "clips", len(files), "bundle_dir", dir)

	return result, nil
}

// downloadClip fetches one clip into the bundle directory. The slot
// position is encoded in the filename so the bundle reads in script order.
func (s *MergeService) downloadClip(ctx context.Context, dir string, idx int, clipURL string) (string, error) {
	content, _, err := s.downloader.Download(ctx, clipURL)
	if err != nil {
		return "", err
	}
	defer content.Close()

	dest := filepath.Join(dir, fmt.Sprintf("clip_%02d_%s", idx+1, filenameFor(clipURL)))
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}

	_, err = io.Copy(f, content)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// ListMerges returns every recorded merge for an ad, newest first.
func (s *MergeService) ListMerges(ctx context.Context, adID domain.AdArchiveID) ([]*domain.MergeRecord, error) {
	return s.historyRepo.ListMerges(ctx, adID)
}

// MergedVideos lists merge artifacts stored upstream.
func (s *MergeService) MergedVideos(ctx context.Context) ([]backend.MergedVideoPayload, error) {
	return s.backend.ListMergedVideos(ctx)
}

// SendToEditor writes the selected clips, ascending slot order with their
// prompts, to the editor hand-off file.
func (s *MergeService) SendToEditor(ctx context.Context, adID domain.AdArchiveID) ([]domain.EditorClip, error) {
	session := s.sessionRepo.Get(ctx, adID.String())
	if len(session.Selection) == 0 {
		return nil, domain.ErrNotEnoughClips
	}

	prompts := session.Prompts[session.SelectedVideoURL]

	slots := make([]int, 0, len(session.Selection))
	for slot := range session.Selection {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	clips := make([]domain.EditorClip, 0, len(slots))
	for _, slot := range slots {
		clip := domain.EditorClip{SlotIndex: slot, URL: session.Selection[slot]}
		if slot < len(prompts) {
			clip.Prompt = prompts[slot]
		}
		clips = append(clips, clip)
	}

	if err := s.sessionRepo.WriteEditorHandoff(ctx, clips); err != nil {
		return nil, fmt.Errorf("write editor hand-off: %w", err)
	}

	s.logger.Info("editor hand-off written",
		"ad_archive_id", adID, "clips", len(clips))
	return clips, nil
}
