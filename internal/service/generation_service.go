package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adscope/adscope/internal/config"
	"github.com/adscope/adscope/internal/domain"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/pkg/backend"
)

// GenerationService submits video generations upstream and owns the poll
// loop for each in-flight task. Every task is a handle with its own
// context: callers can cancel one task, and Close tears all of them down
// without leaking goroutines.
type GenerationService struct {
	backend     *backend.Client
	genRepo     repository.GenerationRepository
	historyRepo repository.HistoryRepository
	cfg         config.VeoConfig
	events      domain.EventEmitter
	logger      *slog.Logger

	mu        sync.Mutex
	tasks     map[domain.TaskID]*taskHandle
	retention map[*taskHandle]*time.Timer
	closed    bool
	wg        sync.WaitGroup

	modelsMu      sync.Mutex
	models        []domain.VeoModel
	modelsFetched time.Time
}

// taskHandle is one in-flight generation with its poll loop.
type taskHandle struct {
	id          domain.TaskID
	slot        domain.SlotKey
	promptText  string
	promptHash  string
	modelKey    string
	aspectRatio string
	seed        int64
	startedAt   time.Time
	estimated   int // seconds, from the model catalog

	cancel context.CancelFunc

	mu        sync.Mutex
	state     domain.TaskState
	outputURL string
	lastError string
}

func (h *taskHandle) snapshot() TaskSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	remaining := 0
	if !h.state.Terminal() && h.estimated > 0 {
		elapsed := int(time.Since(h.startedAt).Seconds())
		if elapsed < h.estimated {
			remaining = h.estimated - elapsed
		}
	}

	return TaskSnapshot{
		TaskID:           h.id,
		Slot:             h.slot,
		PromptHash:       h.promptHash,
		State:            h.state,
		OutputURL:        h.outputURL,
		Error:            h.lastError,
		StartedAt:        h.startedAt,
		RemainingSeconds: remaining,
	}
}

// TaskSnapshot is a point-in-time view of an in-flight or finished task.
type TaskSnapshot struct {
	TaskID           domain.TaskID   `json:"task_id"`
	Slot             domain.SlotKey  `json:"slot"`
	PromptHash       string          `json:"prompt_hash"`
	State            domain.TaskState `json:"state"`
	OutputURL        string          `json:"output_url,omitempty"`
	Error            string          `json:"error,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	RemainingSeconds int             `json:"remaining_seconds"`
}

// NewGenerationService creates a new generation service.
func NewGenerationService(
	client *backend.Client,
	genRepo repository.GenerationRepository,
	historyRepo repository.HistoryRepository,
	cfg config.VeoConfig,
	logger *slog.Logger,
) *GenerationService {
	return &GenerationService{
		backend:     client,
		genRepo:     genRepo,
		historyRepo: historyRepo,
		cfg:         cfg,
		events:      NullEventEmitter{},
		logger:      logger,
		tasks:       make(map[domain.TaskID]*taskHandle),
		retention:   make(map[*taskHandle]*time.Timer),
	}
}

// SetEventEmitter attaches an activity feed to the service.
func (s *GenerationService) SetEventEmitter(e domain.EventEmitter) {
	s.events = e
}

// SubmitRequest is one generation submission: a prompt slot of a source video.
type SubmitRequest struct {
	Slot        domain.SlotKey
	PromptText  string
	ModelKey    string
	AspectRatio string
	Seed        int64
}

// Submit sends one generation upstream and starts its poll loop. The
// returned task ID can be used to query or cancel the task.
func (s *GenerationService) Submit(ctx context.Context, req SubmitRequest) (domain.TaskID, error) {
	if strings.TrimSpace(req.PromptText) == "" {
		return "", domain.ErrInvalidInput
	}

	modelKey := req.ModelKey
	if modelKey == "" {
		modelKey = s.cfg.DefaultModel
	}
	if modelKey == "" {
		return "", domain.ErrNoModel
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = s.cfg.DefaultAspect
	}

	resp, err := s.backend.GenerateVideoAsync(ctx, backend.GenerateVideoRequest{
		Prompt:      req.PromptText,
		VideoURL:    req.Slot.VideoURL,
		Model:       modelKey,
		AspectRatio: aspect,
		Seed:        req.Seed,
	})
	if err != nil {
		return "", err
	}

	taskID := domain.TaskID(resp.TaskID)
	pollCtx, cancel := context.WithCancel(context.Background())

	handle := &taskHandle{
		id:          taskID,
		slot:        req.Slot,
		promptText:  req.PromptText,
		promptHash:  domain.PromptHash(req.PromptText),
		modelKey:    modelKey,
		aspectRatio: aspect,
		seed:        req.Seed,
		startedAt:   time.Now(),
		estimated:   s.estimatedSeconds(ctx, modelKey),
		cancel:      cancel,
		state:       domain.TaskPending,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return "", context.Canceled
	}
	if old, ok := s.tasks[taskID]; ok {
		// The upstream reused a task ID. Stop the stale poll loop; it
		// unregisters itself without touching the replacement handle.
		old.cancel()
	}
	s.tasks[taskID] = handle
	s.wg.Add(1)
	s.mu.Unlock()

	go s.poll(pollCtx, handle)

	s.logger.Info("generation submitted",
		"task_id", taskID,
		"model", modelKey,
		"prompt_hash", handle.promptHash,
		"video_url", req.Slot.VideoURL,
		"prompt_index", req.Slot.PromptIndex,
	)

	return taskID, nil
}

// SubmitResult is the outcome of one submission in a batch.
type SubmitResult struct {
	Slot   domain.SlotKey `json:"slot"`
	TaskID domain.TaskID  `json:"task_id,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// SubmitAll submits every request concurrently as an independent task.
// One failed submission does not stop the rest; each result carries its
// own outcome, in request order.
func (s *GenerationService) SubmitAll(ctx context.Context, reqs []SubmitRequest) []SubmitResult {
	results := make([]SubmitResult, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req SubmitRequest) {
			defer wg.Done()
			res := SubmitResult{Slot: req.Slot}
			taskID, err := s.Submit(ctx, req)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.TaskID = taskID
			}
			results[i] = res
		}(i, req)
	}
	wg.Wait()

	return results
}

// poll queries the task status on a fixed interval until the task reaches
// a terminal state or the handle is cancelled. Poll errors are logged and
// swallowed: the upstream task keeps running regardless, so giving up on
// a transient error would orphan it.
func (s *GenerationService) poll(ctx context.Context, handle *taskHandle) {
	defer s.wg.Done()
	defer s.forget(handle)

	logger := s.logger.With("task_id", handle.id)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			handle.mu.Lock()
			if !handle.state.Terminal() {
				handle.lastError = "cancelled"
			}
			handle.mu.Unlock()
			logger.Info("poll loop stopped")
			return
		case <-ticker.C:
		}

		status, err := s.backend.GetTaskStatus(ctx, handle.id.String())
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Debug("poll failed, will retry", "error", err)
			continue
		}

		state := domain.TaskState(status.State)
		handle.mu.Lock()
		handle.state = state
		handle.mu.Unlock()

		switch state {
		case domain.TaskSuccess:
			outputURL := ""
			if status.Result != nil {
				outputURL = status.Result.VideoURL
			}
			s.finishSuccess(handle, outputURL)
			return
		case domain.TaskFailure:
			handle.mu.Lock()
			handle.lastError = status.Error
			handle.mu.Unlock()
			s.events.EmitError(domain.EventCategoryGeneration, "GenerationService",
				fmt.Sprintf("Generation failed: %s", status.Error),
				domain.EventMetadata{"task_id": handle.id.String(), "error": status.Error})
			logger.Warn("generation failed", "error", status.Error)
			return
		}
	}
}

// finishSuccess records the completed generation as the new current
// version for its prompt hash.
func (s *GenerationService) finishSuccess(handle *taskHandle, outputURL string) {
	handle.mu.Lock()
	handle.outputURL = outputURL
	handle.mu.Unlock()

	rec := &domain.GenerationRecord{
		ID:          domain.GenerationID("gen_" + uuid.New().String()[:8]),
		PromptHash:  handle.promptHash,
		PromptText:  handle.promptText,
		VideoURL:    handle.slot.VideoURL,
		OutputURL:   outputURL,
		ModelKey:    handle.modelKey,
		AspectRatio: handle.aspectRatio,
		Seed:        handle.seed,
		CreatedAt:   time.Now(),
	}

	// Detached context: the poll context may already be tearing down.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.genRepo.Create(ctx, rec); err != nil {
		s.logger.Error("failed to record generation",
			"task_id", handle.id, "error", err)
		return
	}

	s.events.EmitSuccess(domain.EventCategoryGeneration, "GenerationService",
		fmt.Sprintf("Generation %s completed", rec.ID),
		domain.EventMetadata{
			"task_id":       handle.id.String(),
			"generation_id": rec.ID.String(),
			"output_url":    outputURL,
		})

	s.logger.Info("generation completed",
		"task_id", handle.id,
		"generation_id", rec.ID,
		"version", rec.VersionNumber,
		"output_url", outputURL,
	)
}

// taskRetention is how long a finished task handle stays queryable before
// it is dropped from the task map.
const taskRetention = time.Minute

// forget drops a finished task handle after a grace period so late status
// queries still see the terminal state. The timer is tracked so Close can
// stop it instead of leaving it running.
func (s *GenerationService) forget(handle *taskHandle) {
	t := time.AfterFunc(taskRetention, func() {
		s.mu.Lock()
		if s.tasks[handle.id] == handle {
			delete(s.tasks, handle.id)
		}
		delete(s.retention, handle)
		s.mu.Unlock()
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.Stop()
		return
	}
	s.retention[handle] = t
	s.mu.Unlock()
}

// Status returns the snapshot of an in-flight or recently finished task.
func (s *GenerationService) Status(taskID domain.TaskID) (*TaskSnapshot, error) {
	s.mu.Lock()
	handle, ok := s.tasks[taskID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	snap := handle.snapshot()
	return &snap, nil
}

// ActiveTasks returns snapshots of all tracked tasks.
func (s *GenerationService) ActiveTasks() []TaskSnapshot {
	s.mu.Lock()
	handles := make([]*taskHandle, 0, len(s.tasks))
	for _, h := range s.tasks {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	snaps := make([]TaskSnapshot, 0, len(handles))
	for _, h := range handles {
		snaps = append(snaps, h.snapshot())
	}
	return snaps
}

// Cancel stops the poll loop of one task. The upstream job is not
// affected; it finishes server-side and is picked up on reconcile.
func (s *GenerationService) Cancel(taskID domain.TaskID) error {
	s.mu.Lock()
	handle, ok := s.tasks[taskID]
	s.mu.Unlock()
	if !ok {
		return domain.ErrTaskNotFound
	}
	handle.cancel()
	return nil
}

// Close cancels every poll loop, stops the retention timers, and waits for
// the poll goroutines to exit.
func (s *GenerationService) Close() {
	s.mu.Lock()
	s.closed = true
	for _, handle := range s.tasks {
		handle.cancel()
	}
	for handle, t := range s.retention {
		t.Stop()
		delete(s.retention, handle)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Reconcile attaches generation history to a list of prompt texts. Records
// are matched by prompt hash; records written before hashing (or edited
// out-of-band) fall back to exact prompt text. Slot indexes drift when
// prompts are edited or reordered, so position is never used for matching.
func (s *GenerationService) Reconcile(ctx context.Context, videoURL string, prompts []string) ([]domain.PromptSlot, error) {
	s.importUpstream(ctx, videoURL)

	byVideo, err := s.genRepo.ListByVideoURL(ctx, videoURL)
	if err != nil {
		return nil, err
	}

	active := s.ActiveTasks()

	slots := make([]domain.PromptSlot, 0, len(prompts))
	for i, text := range prompts {
		slot := domain.PromptSlot{
			Key:  domain.SlotKey{VideoURL: videoURL, PromptIndex: i},
			Text: text,
		}
		hash := domain.PromptHash(text)

		records, err := s.genRepo.ListByHash(ctx, hash)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			// Text fallback for records whose hash no longer matches.
			for _, rec := range byVideo {
				if rec.PromptText == text {
					records = append(records, rec)
				}
			}
		}

		for _, rec := range records {
			if rec.IsCurrent && slot.Current == nil {
				current := *rec
				slot.Current = &current
			} else {
				slot.Archived = append(slot.Archived, *rec)
			}
		}

		for _, task := range active {
			if task.PromptHash == hash && !task.State.Terminal() {
				slot.Generating = true
			}
			if task.PromptHash == hash && task.State == domain.TaskFailure {
				slot.LastError = task.Error
			}
		}

		slots = append(slots, slot)
	}

	return slots, nil
}

// importUpstream pulls generations recorded server-side that the local
// store has not seen, such as jobs that finished while this process was
// down. Failures are logged and ignored; the local store still answers.
func (s *GenerationService) importUpstream(ctx context.Context, videoURL string) {
	payloads, err := s.backend.ListGenerations(ctx, videoURL)
	if err != nil {
		s.logger.Debug("upstream generation list unavailable", "error", err)
		return
	}

	for _, p := range payloads {
		hash := p.PromptHash
		if hash == "" {
			hash = domain.PromptHash(p.Prompt)
		}
		existing, err := s.genRepo.ListByHash(ctx, hash)
		if err != nil {
			return
		}
		if containsOutput(existing, p.OutputURL) {
			continue
		}
		rec := &domain.GenerationRecord{
			ID:          domain.GenerationID("gen_" + uuid.New().String()[:8]),
			PromptHash:  hash,
			PromptText:  p.Prompt,
			VideoURL:    p.VideoURL,
			OutputURL:   p.OutputURL,
			ModelKey:    p.Model,
			AspectRatio: p.AspectRatio,
			Seed:        p.Seed,
			CreatedAt:   p.CreatedAt,
		}
		if err := s.genRepo.Create(ctx, rec); err != nil {
			s.logger.Warn("failed to import upstream generation",
				"prompt_hash", hash, "error", err)
		}
	}
}

func containsOutput(records []*domain.GenerationRecord, outputURL string) bool {
	for _, rec := range records {
		if rec.OutputURL == outputURL {
			return true
		}
	}
	return false
}

// Restore promotes an archived generation back to current.
func (s *GenerationService) Restore(ctx context.Context, id domain.GenerationID) (*domain.GenerationRecord, error) {
	return s.genRepo.Restore(ctx, id)
}

// DeleteGeneration removes one generation record.
func (s *GenerationService) DeleteGeneration(ctx context.Context, id domain.GenerationID) error {
	return s.genRepo.Delete(ctx, id)
}

// Models returns the upstream model catalog, cached briefly: the catalog
// changes rarely but the dashboard asks for it on every page load.
func (s *GenerationService) Models(ctx context.Context) ([]domain.VeoModel, error) {
	s.modelsMu.Lock()
	defer s.modelsMu.Unlock()

	if s.models != nil && time.Since(s.modelsFetched) < s.cfg.ModelsCacheTTL {
		return s.models, nil
	}

	payloads, err := s.backend.ListVeoModels(ctx)
	if err != nil {
		if s.models != nil {
			// Serve stale rather than failing the page.
			return s.models, nil
		}
		return nil, err
	}

	models := make([]domain.VeoModel, 0, len(payloads))
	for _, p := range payloads {
		models = append(models, domain.VeoModel{
			Key:              p.Key,
			Name:             p.Name,
			EstimatedSeconds: p.EstimatedSeconds,
			AspectRatios:     p.AspectRatios,
		})
	}

	s.models = models
	s.modelsFetched = time.Now()
	return models, nil
}

func (s *GenerationService) estimatedSeconds(ctx context.Context, modelKey string) int {
	models, err := s.Models(ctx)
	if err != nil {
		return 0
	}
	for _, m := range models {
		if m.Key == modelKey {
			return m.EstimatedSeconds
		}
	}
	return 0
}
