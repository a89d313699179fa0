package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adscope/adscope/internal/domain"
)

// AdSession is the recoverable UI state for one ad: which video is being
// analyzed, the edited prompt texts per source video, and the current clip
// selection. Written through on every change so a restart resumes where
// the operator left off.
type AdSession struct {
	AdArchiveID      string               `json:"ad_archive_id"`
	SelectedVideoURL string               `json:"selected_video_url,omitempty"`
	Prompts          map[string][]string  `json:"prompts,omitempty"` // source video URL -> prompt texts
	Selection        domain.ClipSelection `json:"selection,omitempty"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// sessionStore is the JSON structure for persisting sessions.
type sessionStore struct {
	Sessions  []AdSession `json:"sessions"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// FilesystemSessionRepository persists ad sessions and the editor hand-off
// file under a state directory.
type FilesystemSessionRepository struct {
	basePath  string
	storePath string
	mu        sync.RWMutex
	sessions  map[string]*AdSession
}

// NewFilesystemSessionRepository creates a session repository rooted at
// basePath. Existing state is loaded; a missing or unreadable store starts
// empty.
func NewFilesystemSessionRepository(basePath string) *FilesystemSessionRepository {
	repo := &FilesystemSessionRepository{
		basePath:  basePath,
		storePath: filepath.Join(basePath, "sessions.json"),
		sessions:  make(map[string]*AdSession),
	}
	repo.load()
	return repo
}

func (r *FilesystemSessionRepository) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var store sessionStore
	if err := json.Unmarshal(data, &store); err != nil {
		return err
	}

	for i := range store.Sessions {
		s := store.Sessions[i]
		r.sessions[s.AdArchiveID] = &s
	}

	return nil
}

// save writes all sessions to disk. Caller holds the write lock.
func (r *FilesystemSessionRepository) save() error {
	sessions := make([]AdSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, *s)
	}

	store := sessionStore{
		Sessions:  sessions,
		UpdatedAt: time.Now(),
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(r.basePath, 0755); err != nil {
		return err
	}

	// Write atomically via temp file
	tempPath := r.storePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, r.storePath)
}

// Get returns the session for an ad, or a fresh empty session.
func (r *FilesystemSessionRepository) Get(ctx context.Context, adID string) *AdSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[adID]
	if !ok {
		return &AdSession{
			AdArchiveID: adID,
			Prompts:     make(map[string][]string),
			Selection:   make(domain.ClipSelection),
		}
	}

	// Return a copy to prevent modification without Put.
	out := *s
	out.Prompts = make(map[string][]string, len(s.Prompts))
	for url, prompts := range s.Prompts {
		out.Prompts[url] = append([]string(nil), prompts...)
	}
	out.Selection = s.Selection.Clone()
	return &out
}

// Put upserts a session and persists the store.
func (r *FilesystemSessionRepository) Put(ctx context.Context, session *AdSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session.UpdatedAt = time.Now()
	r.sessions[session.AdArchiveID] = session
	return r.save()
}

// Delete drops the session for an ad. Used when the upstream reports the
// ad as deleted.
func (r *FilesystemSessionRepository) Delete(ctx context.Context, adID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[adID]; !ok {
		return nil
	}

	delete(r.sessions, adID)
	return r.save()
}

// WriteEditorHandoff writes the ordered clip payload consumed by the
// external video editor.
func (r *FilesystemSessionRepository) WriteEditorHandoff(ctx context.Context, clips []domain.EditorClip) error {
	data, err := json.MarshalIndent(clips, "", "  ")
	if err != nil {
		return fmt.Errorf("encode editor clips: %w", err)
	}

	if err := os.MkdirAll(r.basePath, 0755); err != nil {
		return err
	}

	path := filepath.Join(r.basePath, "editor_clips.json")
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// ReadEditorHandoff returns the last written hand-off payload, or an empty
// slice when none exists.
func (r *FilesystemSessionRepository) ReadEditorHandoff(ctx context.Context) ([]domain.EditorClip, error) {
	data, err := os.ReadFile(filepath.Join(r.basePath, "editor_clips.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.EditorClip{}, nil
		}
		return nil, err
	}

	var clips []domain.EditorClip
	if err := json.Unmarshal(data, &clips); err != nil {
		return nil, fmt.Errorf("decode editor clips: %w", err)
	}
	return clips, nil
}
