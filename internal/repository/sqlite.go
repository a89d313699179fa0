package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) the service database and applies
// the schema. The caller owns the returned handle.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The driver serializes access per connection; a single connection
	// avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS history_entries (
	id TEXT PRIMARY KEY,
	ad_archive_id TEXT,
	source TEXT NOT NULL,
	input_url TEXT NOT NULL,
	page_name TEXT,
	media_type TEXT NOT NULL,
	video_count INTEGER NOT NULL DEFAULT 0,
	image_count INTEGER NOT NULL DEFAULT 0,
	analysis_count INTEGER NOT NULL DEFAULT 0,
	prompt_count INTEGER NOT NULL DEFAULT 0,
	generation_count INTEGER NOT NULL DEFAULT 0,
	merge_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_ad ON history_entries(ad_archive_id);
CREATE INDEX IF NOT EXISTS idx_entries_created ON history_entries(created_at);

CREATE TABLE IF NOT EXISTS generations (
	id TEXT PRIMARY KEY,
	prompt_hash TEXT NOT NULL,
	prompt_text TEXT NOT NULL,
	video_url TEXT NOT NULL,
	output_url TEXT NOT NULL,
	model_key TEXT,
	aspect_ratio TEXT,
	seed INTEGER NOT NULL DEFAULT 0,
	version_number INTEGER NOT NULL,
	is_current INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generations_hash ON generations(prompt_hash);
CREATE INDEX IF NOT EXISTS idx_generations_video ON generations(video_url);

CREATE TABLE IF NOT EXISTS merges (
	id TEXT PRIMARY KEY,
	ad_archive_id TEXT,
	input_urls TEXT NOT NULL,
	signature TEXT NOT NULL,
	output_path TEXT,
	output_url TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_merges_signature ON merges(signature);
CREATE INDEX IF NOT EXISTS idx_merges_ad ON merges(ad_archive_id);
`
