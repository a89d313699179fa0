package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adscope/adscope/internal/domain"
)

// SQLiteHistoryRepository implements HistoryRepository on the service
// database.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite-backed history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// CreateEntry persists a new download-history entry.
func (r *SQLiteHistoryRepository) CreateEntry(ctx context.Context, entry *domain.HistoryEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO history_entries
			(id, ad_archive_id, source, input_url, page_name, media_type,
			 video_count, image_count, analysis_count, prompt_count,
			 generation_count, merge_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.AdArchiveID, entry.Source, entry.InputURL, entry.PageName,
		entry.MediaType, entry.VideoCount, entry.ImageCount, entry.AnalysisCount,
		entry.PromptCount, entry.GenerationCount, entry.MergeCount, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

const entryColumns = `id, ad_archive_id, source, input_url, page_name, media_type,
	video_count, image_count, analysis_count, prompt_count,
	generation_count, merge_count, created_at`

func scanEntry(row interface{ Scan(...interface{}) error }) (*domain.HistoryEntry, error) {
	var e domain.HistoryEntry
	err := row.Scan(&e.ID, &e.AdArchiveID, &e.Source, &e.InputURL, &e.PageName,
		&e.MediaType, &e.VideoCount, &e.ImageCount, &e.AnalysisCount,
		&e.PromptCount, &e.GenerationCount, &e.MergeCount, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEntry retrieves an entry by ID.
func (r *SQLiteHistoryRepository) GetEntry(ctx context.Context, id domain.EntryID) (*domain.HistoryEntry, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM history_entries WHERE id = ?", id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history entry: %w", err)
	}
	return entry, nil
}

// GetEntryByAdID retrieves the most recent entry for an ad archive ID.
func (r *SQLiteHistoryRepository) GetEntryByAdID(ctx context.Context, adID domain.AdArchiveID) (*domain.HistoryEntry, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+` FROM history_entries
		 WHERE ad_archive_id = ? ORDER BY created_at DESC LIMIT 1`, adID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history entry by ad: %w", err)
	}
	return entry, nil
}

// ListEntries returns entries newest first with pagination.
func (r *SQLiteHistoryRepository) ListEntries(ctx context.Context, limit, offset int) ([]*domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+entryColumns+` FROM history_entries
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list history entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.HistoryEntry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountEntries returns the total number of entries.
func (r *SQLiteHistoryRepository) CountEntries(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM history_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("count history entries: %w", err)
	}
	return count, nil
}

// UpdateCounts refreshes the display aggregates of an entry.
func (r *SQLiteHistoryRepository) UpdateCounts(ctx context.Context, id domain.EntryID, analyses, prompts, generations, merges int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE history_entries
		SET analysis_count = ?, prompt_count = ?, generation_count = ?, merge_count = ?
		WHERE id = ?
	`, analyses, prompts, generations, merges, id)
	if err != nil {
		return fmt.Errorf("update entry counts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

// DeleteEntry removes an entry.
func (r *SQLiteHistoryRepository) DeleteEntry(ctx context.Context, id domain.EntryID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM history_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete history entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

// DeleteEntriesByAdID removes all entries for an ad archive ID. Removing
// nothing is not an error: the ad may never have been saved locally.
func (r *SQLiteHistoryRepository) DeleteEntriesByAdID(ctx context.Context, adID domain.AdArchiveID) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM history_entries WHERE ad_archive_id = ?", adID); err != nil {
		return fmt.Errorf("delete history entries for ad: %w", err)
	}
	return nil
}

// CreateMerge persists a completed merge record.
func (r *SQLiteHistoryRepository) CreateMerge(ctx context.Context, merge *domain.MergeRecord) error {
	urls, err := json.Marshal(merge.InputURLs)
	if err != nil {
		return fmt.Errorf("encode merge inputs: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO merges (id, ad_archive_id, input_urls, signature, output_path, output_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, merge.ID, merge.AdArchiveID, string(urls), merge.Signature,
		merge.OutputPath, merge.OutputURL, merge.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert merge record: %w", err)
	}
	return nil
}

func scanMerge(row interface{ Scan(...interface{}) error }) (*domain.MergeRecord, error) {
	var m domain.MergeRecord
	var urls string
	err := row.Scan(&m.ID, &m.AdArchiveID, &urls, &m.Signature,
		&m.OutputPath, &m.OutputURL, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(urls), &m.InputURLs); err != nil {
		return nil, fmt.Errorf("decode merge inputs: %w", err)
	}
	return &m, nil
}

const mergeColumns = `id, ad_archive_id, input_urls, signature, output_path, output_url, created_at`

// GetMergeBySignature finds an existing merge with the same input signature.
func (r *SQLiteHistoryRepository) GetMergeBySignature(ctx context.Context, signature string) (*domain.MergeRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+mergeColumns+` FROM merges
		 WHERE signature = ? ORDER BY created_at DESC LIMIT 1`, signature)
	merge, err := scanMerge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMergeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get merge by signature: %w", err)
	}
	return merge, nil
}

// ListMerges returns merge records for an ad, newest first.
func (r *SQLiteHistoryRepository) ListMerges(ctx context.Context, adID domain.AdArchiveID) ([]*domain.MergeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+mergeColumns+` FROM merges
		 WHERE ad_archive_id = ? ORDER BY created_at DESC`, adID)
	if err != nil {
		return nil, fmt.Errorf("list merges: %w", err)
	}
	defer rows.Close()

	var merges []*domain.MergeRecord
	for rows.Next() {
		merge, err := scanMerge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merge record: %w", err)
		}
		merges = append(merges, merge)
	}
	return merges, rows.Err()
}
