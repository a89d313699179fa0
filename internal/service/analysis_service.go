package service

import (
	"context"
	"log/slog"

	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/pkg/backend"
)

// AnalysisService wraps the upstream analysis endpoints with the local
// bookkeeping around them: Instagram preview substitution before analyze,
// soft-clearing local state when the upstream reports the ad deleted, and
// keeping history-entry aggregates current.
type AnalysisService struct {
	backend     *backend.Client
	historyRepo repository.HistoryRepository
	sessionRepo *repository.FilesystemSessionRepository
	logger      *slog.Logger
}

// NewAnalysisService creates a new analysis service.
func NewAnalysisService(
	client *backend.Client,
	historyRepo repository.HistoryRepository,
	sessionRepo *repository.FilesystemSessionRepository,
	logger *slog.Logger,
) *AnalysisService {
	return &AnalysisService{
		backend:     client,
		historyRepo: historyRepo,
		sessionRepo: sessionRepo,
		logger:      logger,
	}
}

// AnalyzeRequest is a request to analyze one video of an ad.
type AnalyzeRequest struct {
	AdArchiveID       domain.AdArchiveID
	VideoURL          string
	OriginalURL       string // when set, VideoURL is a short-lived Instagram preview and OriginalURL holds the source to analyze instead
	CustomInstruction string
}

// Analyze submits a video for analysis. Instagram preview URLs are
// substituted with the original source URL: previews are short-lived
// transcodes the upstream cannot fetch reliably.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalyzeRequest) (*domain.AnalysisRecord, error) {
	videoURL := req.VideoURL
	if req.OriginalURL != "" {
		videoURL = req.OriginalURL
	}

	payload, err := s.backend.Analyze(ctx, req.AdArchiveID.String(), backend.AnalyzeRequest{
		VideoURL:          videoURL,
		CustomInstruction: req.CustomInstruction,
	})
	if err != nil {
		return nil, s.mapError(ctx, req.AdArchiveID, "analyze", err)
	}

	s.refreshAggregates(ctx, req.AdArchiveID)

	s.logger.Info("analysis created",
		"ad_archive_id", req.AdArchiveID,
		"version", payload.VersionNumber,
		"prompts", len(payload.Prompts),
	)

	return recordFromPayload(payload), nil
}

// Current returns the current analysis version for an ad.
func (s *AnalysisService) Current(ctx context.Context, adID domain.AdArchiveID) (*domain.AnalysisRecord, error) {
	payload, err := s.backend.GetAnalysis(ctx, adID.String())
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, domain.ErrAnalysisNotFound
		}
		return nil, domain.NewAdError(adID, "get analysis", err)
	}
	return recordFromPayload(payload), nil
}

// History returns all analysis versions for an ad, newest first. When the
// upstream reports the ad as deleted the dependent local state is cleared
// and an empty list is returned instead of an error.
func (s *AnalysisService) History(ctx context.Context, adID domain.AdArchiveID) ([]*domain.AnalysisRecord, error) {
	payloads, err := s.backend.GetAnalysisHistory(ctx, adID.String())
	if err != nil {
		if backend.IsNotFound(err) {
			s.softClear(ctx, adID)
			return []*domain.AnalysisRecord{}, nil
		}
		return nil, domain.NewAdError(adID, "analysis history", err)
	}

	records := make([]*domain.AnalysisRecord, 0, len(payloads))
	for i := range payloads {
		records = append(records, recordFromPayload(&payloads[i]))
	}
	return records, nil
}

// Version returns one specific analysis version.
func (s *AnalysisService) Version(ctx context.Context, adID domain.AdArchiveID, version int) (*domain.AnalysisRecord, error) {
	payload, err := s.backend.GetAnalysisVersion(ctx, adID.String(), version)
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, domain.ErrAnalysisNotFound
		}
		return nil, domain.NewAdError(adID, "analysis version", err)
	}
	return recordFromPayload(payload), nil
}

// Regenerate creates a new analysis version with a new instruction,
// reusing the upstream's cached video context.
func (s *AnalysisService) Regenerate(ctx context.Context, adID domain.AdArchiveID, instruction string) (*domain.AnalysisRecord, error) {
	payload, err := s.backend.RegenerateAnalysis(ctx, adID.String(), backend.RegenerateRequest{
		Instruction: instruction,
	})
	if err != nil {
		return nil, s.mapError(ctx, adID, "regenerate", err)
	}

	s.refreshAggregates(ctx, adID)
	return recordFromPayload(payload), nil
}

// Followup asks a follow-up question against an analysis version. A nil
// version targets the current one.
func (s *AnalysisService) Followup(ctx context.Context, adID domain.AdArchiveID, question string, version *int) (*domain.AnswerRecord, error) {
	resp, err := s.backend.Followup(ctx, adID.String(), backend.FollowupRequest{
		Question:      question,
		VersionNumber: version,
	})
	if err != nil {
		return nil, s.mapError(ctx, adID, "followup", err)
	}

	return &domain.AnswerRecord{
		Question:      resp.Question,
		Answer:        resp.Answer,
		VersionNumber: resp.VersionNumber,
		Usage: domain.AnalysisUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			CostUSD:      resp.Usage.CostUSD,
		},
		CreatedAt: resp.CreatedAt,
	}, nil
}

// Delete removes all analysis versions for an ad.
func (s *AnalysisService) Delete(ctx context.Context, adID domain.AdArchiveID) error {
	if err := s.backend.DeleteAnalysis(ctx, adID.String()); err != nil {
		if backend.IsNotFound(err) {
			return nil
		}
		return domain.NewAdError(adID, "delete analysis", err)
	}
	s.refreshAggregates(ctx, adID)
	return nil
}

// ClearCache drops the upstream's cached video context for an ad. The next
// analyze re-uploads the video.
func (s *AnalysisService) ClearCache(ctx context.Context, adID domain.AdArchiveID) error {
	if err := s.backend.ClearCache(ctx, adID.String()); err != nil {
		if backend.IsNotFound(err) {
			return nil
		}
		return domain.NewAdError(adID, "clear cache", err)
	}
	return nil
}

// mapError translates upstream errors; a 404 means the ad was deleted and
// triggers the soft-clear.
func (s *AnalysisService) mapError(ctx context.Context, adID domain.AdArchiveID, op string, err error) error {
	if backend.IsNotFound(err) {
		s.softClear(ctx, adID)
		return domain.NewAdError(adID, op, domain.ErrAdNotFound)
	}
	return domain.NewAdError(adID, op, err)
}

// softClear removes local state tied to an ad the upstream no longer
// knows. Nothing here is an error path: a deleted ad should just vanish.
func (s *AnalysisService) softClear(ctx context.Context, adID domain.AdArchiveID) {
	if err := s.historyRepo.DeleteEntriesByAdID(ctx, adID); err != nil {
		s.logger.Warn("failed to clear history entries for deleted ad",
			"ad_archive_id", adID, "error", err)
	}
	if err := s.sessionRepo.Delete(ctx, adID.String()); err != nil {
		s.logger.Warn("failed to clear session for deleted ad",
			"ad_archive_id", adID, "error", err)
	}
	s.logger.Info("cleared local state for deleted ad", "ad_archive_id", adID)
}

// refreshAggregates recomputes the display counts on the ad's history
// entry. Best effort; aggregates are cosmetic.
func (s *AnalysisService) refreshAggregates(ctx context.Context, adID domain.AdArchiveID) {
	entry, err := s.historyRepo.GetEntryByAdID(ctx, adID)
	if err != nil {
		return
	}

	versions, err := s.backend.GetAnalysisHistory(ctx, adID.String())
	if err != nil {
		return
	}

	prompts := 0
	for _, v := range versions {
		if v.IsCurrent {
			prompts = len(v.Prompts)
		}
	}

	if err := s.historyRepo.UpdateCounts(ctx, entry.ID, len(versions), prompts,
		entry.GenerationCount, entry.MergeCount); err != nil {
		s.logger.Warn("failed to update entry aggregates",
			"entry_id", entry.ID, "error", err)
	}
}

// Session returns the recoverable UI state for an ad.
func (s *AnalysisService) Session(ctx context.Context, adID string) *repository.AdSession {
	return s.sessionRepo.Get(ctx, adID)
}

// SelectVideo records which source video of the ad is under analysis.
func (s *AnalysisService) SelectVideo(ctx context.Context, adID, videoURL string) error {
	session := s.sessionRepo.Get(ctx, adID)
	session.SelectedVideoURL = videoURL
	return s.sessionRepo.Put(ctx, session)
}

// SavePrompts persists operator-edited prompt texts for one source video.
// Edited texts hash differently from the originals, which is what keeps
// their generation histories separate.
func (s *AnalysisService) SavePrompts(ctx context.Context, adID, videoURL string, prompts []string) error {
	session := s.sessionRepo.Get(ctx, adID)
	session.Prompts[videoURL] = append([]string(nil), prompts...)
	return s.sessionRepo.Put(ctx, session)
}

func recordFromPayload(p *backend.AnalysisPayload) *domain.AnalysisRecord {
	rec := &domain.AnalysisRecord{
		AdArchiveID:   domain.AdArchiveID(p.AdArchiveID),
		VersionNumber: p.VersionNumber,
		VideoURL:      p.VideoURL,
		Transcript:    p.Transcript,
		Prompts:       p.Prompts,
		Hook:          p.Hook,
		TargetEmotion: p.TargetEmotion,
		CallToAction:  p.CallToAction,
		Instruction:   p.Instruction,
		Usage: domain.AnalysisUsage{
			InputTokens:  p.Usage.InputTokens,
			OutputTokens: p.Usage.OutputTokens,
			CostUSD:      p.Usage.CostUSD,
		},
		IsCurrent: p.IsCurrent,
		CreatedAt: p.CreatedAt,
	}
	for _, m := range p.ChatHistory {
		rec.ChatHistory = append(rec.ChatHistory, domain.ChatMessage{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return rec
}
