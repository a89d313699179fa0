package repository

import (
	"context"

	"github.com/adscope/adscope/internal/domain"
)

// HistoryRepository stores download-history entries and merge records.
type HistoryRepository interface {
	// CreateEntry persists a new download-history entry.
	CreateEntry(ctx context.Context, entry *domain.HistoryEntry) error

	// GetEntry retrieves an entry by ID.
	GetEntry(ctx context.Context, id domain.EntryID) (*domain.HistoryEntry, error)

	// GetEntryByAdID retrieves the most recent entry for an ad archive ID.
	GetEntryByAdID(ctx context.Context, adID domain.AdArchiveID) (*domain.HistoryEntry, error)

	// ListEntries returns entries newest first with pagination.
	ListEntries(ctx context.Context, limit, offset int) ([]*domain.HistoryEntry, error)

	// CountEntries returns the total number of entries.
	CountEntries(ctx context.Context) (int, error)

	// UpdateCounts refreshes the display aggregates of an entry.
	UpdateCounts(ctx context.Context, id domain.EntryID, analyses, prompts, generations, merges int) error

	// DeleteEntry removes an entry. Merge records for the same ad are kept.
	DeleteEntry(ctx context.Context, id domain.EntryID) error

	// DeleteEntriesByAdID removes all entries for an ad archive ID. Used
	// when the upstream reports the ad as deleted.
	DeleteEntriesByAdID(ctx context.Context, adID domain.AdArchiveID) error

	// CreateMerge persists a completed merge record.
	CreateMerge(ctx context.Context, merge *domain.MergeRecord) error

	// GetMergeBySignature finds an existing merge with the same input
	// signature, newest first.
	GetMergeBySignature(ctx context.Context, signature string) (*domain.MergeRecord, error)

	// ListMerges returns merge records for an ad, newest first.
	ListMerges(ctx context.Context, adID domain.AdArchiveID) ([]*domain.MergeRecord, error)
}

// GenerationRepository stores generation records with version history.
type GenerationRepository interface {
	// Create inserts a record as the current version for its prompt hash,
	// archiving any previous current record. VersionNumber is assigned.
	Create(ctx context.Context, rec *domain.GenerationRecord) error

	// GetCurrent returns the current record for a prompt hash.
	GetCurrent(ctx context.Context, promptHash string) (*domain.GenerationRecord, error)

	// ListByHash returns all records for a prompt hash, newest first.
	ListByHash(ctx context.Context, promptHash string) ([]*domain.GenerationRecord, error)

	// ListByVideoURL returns all records derived from a source video.
	ListByVideoURL(ctx context.Context, videoURL string) ([]*domain.GenerationRecord, error)

	// Restore marks an archived record as current, archiving the rest.
	Restore(ctx context.Context, id domain.GenerationID) (*domain.GenerationRecord, error)

	// Delete removes a record. Deleting the current record promotes the
	// newest archived one.
	Delete(ctx context.Context, id domain.GenerationID) error
}

// JobRepository manages the media download job queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next pending job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// GetByMediaURL finds the job downloading a given media URL.
	GetByMediaURL(ctx context.Context, mediaURL string) (*domain.Job, error)

	// ListPending returns all pending/retrying jobs.
	ListPending(ctx context.Context) ([]*domain.Job, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Retrying   int
}
