package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adscope/adscope/internal/domain"
)

// SQLiteGenerationRepository implements GenerationRepository. All writes
// that touch is_current run in a transaction so a prompt hash never holds
// two current records.
type SQLiteGenerationRepository struct {
	db *sql.DB
}

// NewSQLiteGenerationRepository creates a new SQLite-backed generation repository.
func NewSQLiteGenerationRepository(db *sql.DB) *SQLiteGenerationRepository {
	return &SQLiteGenerationRepository{db: db}
}

const generationColumns = `id, prompt_hash, prompt_text, video_url, output_url,
	model_key, aspect_ratio, seed, version_number, is_current, created_at`

func scanGeneration(row interface{ Scan(...interface{}) error }) (*domain.GenerationRecord, error) {
	var g domain.GenerationRecord
	err := row.Scan(&g.ID, &g.PromptHash, &g.PromptText, &g.VideoURL, &g.OutputURL,
		&g.ModelKey, &g.AspectRatio, &g.Seed, &g.VersionNumber, &g.IsCurrent, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts rec as the current version for its prompt hash. The
// previous current record, if any, is archived and rec gets the next
// version number.
func (r *SQLiteGenerationRepository) Create(ctx context.Context, rec *domain.GenerationRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(version_number) FROM generations WHERE prompt_hash = ?",
		rec.PromptHash).Scan(&maxVersion); err != nil {
		return fmt.Errorf("next version: %w", err)
	}
	rec.VersionNumber = int(maxVersion.Int64) + 1
	rec.IsCurrent = true

	if _, err := tx.ExecContext(ctx,
		"UPDATE generations SET is_current = 0 WHERE prompt_hash = ?",
		rec.PromptHash); err != nil {
		return fmt.Errorf("archive previous: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO generations
			(id, prompt_hash, prompt_text, video_url, output_url,
			 model_key, aspect_ratio, seed, version_number, is_current, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`, rec.ID, rec.PromptHash, rec.PromptText, rec.VideoURL, rec.OutputURL,
		rec.ModelKey, rec.AspectRatio, rec.Seed, rec.VersionNumber, rec.CreatedAt); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}

	return tx.Commit()
}

// GetCurrent returns the current record for a prompt hash.
func (r *SQLiteGenerationRepository) GetCurrent(ctx context.Context, promptHash string) (*domain.GenerationRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+generationColumns+` FROM generations
		 WHERE prompt_hash = ? AND is_current = 1`, promptHash)
	rec, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrGenerationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get current generation: %w", err)
	}
	return rec, nil
}

// ListByHash returns all records for a prompt hash, newest first.
func (r *SQLiteGenerationRepository) ListByHash(ctx context.Context, promptHash string) ([]*domain.GenerationRecord, error) {
	return r.list(ctx,
		"SELECT "+generationColumns+` FROM generations
		 WHERE prompt_hash = ? ORDER BY version_number DESC`, promptHash)
}

// ListByVideoURL returns all records derived from a source video.
func (r *SQLiteGenerationRepository) ListByVideoURL(ctx context.Context, videoURL string) ([]*domain.GenerationRecord, error) {
	return r.list(ctx,
		"SELECT "+generationColumns+` FROM generations
		 WHERE video_url = ? ORDER BY created_at DESC`, videoURL)
}

func (r *SQLiteGenerationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.GenerationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var recs []*domain.GenerationRecord
	for rows.Next() {
		rec, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Restore marks an archived record as current, archiving the rest of its
// prompt hash group.
func (r *SQLiteGenerationRepository) Restore(ctx context.Context, id domain.GenerationID) (*domain.GenerationRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+generationColumns+" FROM generations WHERE id = ?", id)
	rec, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrGenerationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE generations SET is_current = 0 WHERE prompt_hash = ?",
		rec.PromptHash); err != nil {
		return nil, fmt.Errorf("archive group: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE generations SET is_current = 1 WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("restore generation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	rec.IsCurrent = true
	return rec, nil
}

// Delete removes a record. When the current record is deleted the newest
// remaining version of the same prompt hash is promoted.
func (r *SQLiteGenerationRepository) Delete(ctx context.Context, id domain.GenerationID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+generationColumns+" FROM generations WHERE id = ?", id)
	rec, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrGenerationNotFound
	}
	if err != nil {
		return fmt.Errorf("get generation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM generations WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete generation: %w", err)
	}

	if rec.IsCurrent {
		if _, err := tx.ExecContext(ctx, `
			UPDATE generations SET is_current = 1
			WHERE id = (
				SELECT id FROM generations
				WHERE prompt_hash = ?
				ORDER BY version_number DESC LIMIT 1
			)
		`, rec.PromptHash); err != nil {
			return fmt.Errorf("promote previous version: %w", err)
		}
	}

	return tx.Commit()
}
