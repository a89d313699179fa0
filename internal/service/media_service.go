package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adscope/adscope/internal/adlibrary"
	"github.com/adscope/adscope/internal/config"
	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/downloader"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/pkg/backend"
)

// MediaService orchestrates the ad-media fetch workflow: parse the input,
// ask the upstream for the media set, record a history entry, and queue
// local downloads when requested.
type MediaService struct {
	backend     *backend.Client
	historyRepo repository.HistoryRepository
	jobRepo     repository.JobRepository
	downloader  downloader.Downloader
	storageCfg  config.StorageConfig
	workerCfg   config.WorkerConfig
	events      domain.EventEmitter
	logger      *slog.Logger
}

// NewMediaService creates a new media service.
func NewMediaService(
	client *backend.Client,
	historyRepo repository.HistoryRepository,
	jobRepo repository.JobRepository,
	dl downloader.Downloader,
	storageCfg config.StorageConfig,
	workerCfg config.WorkerConfig,
	logger *slog.Logger,
) *MediaService {
	return &MediaService{
		backend:     client,
		historyRepo: historyRepo,
		jobRepo:     jobRepo,
		downloader:  dl,
		storageCfg:  storageCfg,
		workerCfg:   workerCfg,
		events:      NullEventEmitter{},
		logger:      logger,
	}
}

// SetEventEmitter attaches an activity feed to the service.
func (s *MediaService) SetEventEmitter(e domain.EventEmitter) {
	s.events = e
}

// FetchRequest is a request to fetch the media set of an ad or reel.
type FetchRequest struct {
	Input     string
	MediaType domain.MediaType
	Download  bool
}

// FetchResult is the outcome of a fetch: the ad with its media set plus
// the history entry recorded for it.
type FetchResult struct {
	Ad      *domain.Ad
	Entry   *domain.HistoryEntry
	JobIDs  []domain.JobID
	Message string
}

// Fetch resolves an ad library URL, archive ID, or Instagram reel URL into
// its media set. Invalid input is rejected before any upstream request.
func (s *MediaService) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	input, err := adlibrary.ParseInput(req.Input)
	if err != nil {
		return nil, err
	}

	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = domain.MediaTypeAll
	}

	resp, err := s.backend.DownloadAdMedia(ctx, backend.DownloadRequest{
		AdArchiveID: input.ArchiveID.String(),
		ReelURL:     input.ReelURL,
		MediaType:   string(mediaType),
		Download:    req.Download,
	})
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, domain.NewAdError(input.ArchiveID, "fetch", domain.ErrAdNotFound)
		}
		return nil, domain.NewAdError(input.ArchiveID, "fetch", err)
	}

	ad := adFromResponse(input, resp)

	entry := &domain.HistoryEntry{
		ID:          domain.EntryID("ent_" + uuid.New().String()[:8]),
		AdArchiveID: ad.ArchiveID,
		Source:      ad.Source,
		InputURL:    req.Input,
		PageName:    ad.PageName,
		MediaType:   mediaType,
		VideoCount:  len(ad.Videos()),
		ImageCount:  len(ad.Images()),
		CreatedAt:   time.Now(),
	}
	if err := s.historyRepo.CreateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("record history entry: %w", err)
	}

	result := &FetchResult{Ad: ad, Entry: entry}

	if req.Download {
		for _, m := range ad.Media {
			jobID := domain.JobID("job_" + uuid.New().String()[:8])
			job := domain.NewJob(jobID, entry.ID, m.URL, s.workerCfg.MaxRetries)
			if err := s.jobRepo.Enqueue(ctx, job); err != nil {
				return nil, fmt.Errorf("enqueue download: %w", err)
			}
			result.JobIDs = append(result.JobIDs, jobID)
		}
		result.Message = fmt.Sprintf("%d downloads queued", len(result.JobIDs))
	}

	s.events.EmitInfo(domain.EventCategoryDownload, "MediaService",
		fmt.Sprintf("Fetched %d media for ad %s", len(ad.Media), ad.ArchiveID),
		domain.EventMetadata{
			"ad_archive_id": ad.ArchiveID.String(),
			"entry_id":      entry.ID.String(),
			"queued":        len(result.JobIDs),
		})

	s.logger.Info("ad media fetched",
		"ad_archive_id", ad.ArchiveID,
		"source", ad.Source,
		"videos", entry.VideoCount,
		"images", entry.ImageCount,
		"download", req.Download,
	)

	return result, nil
}

func adFromResponse(input *adlibrary.Input, resp *backend.DownloadResponse) *domain.Ad {
	ad := &domain.Ad{
		ArchiveID: domain.AdArchiveID(resp.AdArchiveID),
		Source:    domain.SourceKind(resp.Source),
		PageID:    resp.PageID,
		PageName:  resp.PageName,
		AdText:    resp.AdText,
		FetchedAt: time.Now(),
	}
	if ad.ArchiveID == "" {
		ad.ArchiveID = input.ArchiveID
	}
	if ad.Source == "" {
		ad.Source = input.Source
	}

	for _, m := range resp.Media {
		ad.Media = append(ad.Media, domain.MediaDescriptor{
			URL:         m.URL,
			PreviewURL:  m.PreviewURL,
			OriginalURL: m.OriginalURL,
			Kind:        m.Kind,
			Quality:     m.Quality,
			Width:       m.Width,
			Height:      m.Height,
		})
	}
	return ad
}

// ProcessJob downloads one queued media asset to local storage. Called by
// the worker pool.
func (s *MediaService) ProcessJob(ctx context.Context, job *domain.Job) error {
	entry, err := s.historyRepo.GetEntry(ctx, job.EntryID)
	if err != nil {
		return fmt.Errorf("get entry: %w", err)
	}

	if free := getFreeDiskSpace(s.storageCfg.BasePath); free > 0 && free < s.storageCfg.MaxFileSize {
		return fmt.Errorf("insufficient disk space: %d bytes free", free)
	}

	content, size, err := s.downloader.Download(ctx, job.MediaURL)
	if err != nil {
		s.events.EmitError(domain.EventCategoryDownload, "MediaService",
			fmt.Sprintf("Download failed for entry %s: %v", entry.ID, err),
			domain.EventMetadata{"entry_id": entry.ID.String(), "error": err.Error()})
		return fmt.Errorf("%w: %s", domain.ErrDownloadFailed, err)
	}
	defer content.Close()

	dir := filepath.Join(s.storageCfg.BasePath, storageDirFor(entry))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	dest := filepath.Join(dir, filenameFor(job.MediaURL))
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(f, content)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write media: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("finalize media: %w", err)
	}

	s.events.EmitSuccess(domain.EventCategoryDownload, "MediaService",
		fmt.Sprintf("Media saved for ad %s", entry.AdArchiveID),
		domain.EventMetadata{"entry_id": entry.ID.String(), "bytes": written})

	s.logger.Info("media saved",
		"entry_id", entry.ID,
		"path", dest,
		"bytes", written,
		"expected", size,
	)
	return nil
}

// storageDirFor picks the per-ad storage directory for an entry.
func storageDirFor(entry *domain.HistoryEntry) string {
	if entry.AdArchiveID != "" {
		return entry.AdArchiveID.String()
	}
	return entry.ID.String()
}

// filenameFor derives a local filename from a CDN URL, dropping the query
// (signed URL parameters change on every fetch).
func filenameFor(mediaURL string) string {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return "media.bin"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "media.bin"
	}
	// Keep filenames filesystem-safe.
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	return name
}

// History returns download-history entries, newest first.
func (s *MediaService) History(ctx context.Context, limit, offset int) ([]*domain.HistoryEntry, int, error) {
	entries, err := s.historyRepo.ListEntries(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.historyRepo.CountEntries(ctx)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// DeleteEntry removes one history entry.
func (s *MediaService) DeleteEntry(ctx context.Context, id domain.EntryID) error {
	if err := s.historyRepo.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.logger.Info("history entry deleted", "entry_id", id)
	return nil
}

// QueueStats reports the download queue state.
func (s *MediaService) QueueStats(ctx context.Context) (*repository.QueueStats, error) {
	return s.jobRepo.Stats(ctx)
}

// FreeDiskSpace reports available bytes under the storage root.
func (s *MediaService) FreeDiskSpace() int64 {
	return getFreeDiskSpace(s.storageCfg.BasePath)
}

// IsNotFound reports whether err means the upstream no longer knows the ad.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrAdNotFound) || backend.IsNotFound(err)
}
