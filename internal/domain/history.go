package domain

import (
	"time"
)

// EntryID is a unique identifier for a download-history entry.
type EntryID string

// String returns the string representation of the EntryID.
func (id EntryID) String() string {
	return string(id)
}

// HistoryEntry is one row of the download history: a completed ad-media
// fetch plus aggregate counts of the work derived from it, for display.
type HistoryEntry struct {
	ID          EntryID
	AdArchiveID AdArchiveID // optional; empty for Instagram sources
	Source      SourceKind
	InputURL    string
	PageName    string
	MediaType   MediaType
	VideoCount  int
	ImageCount  int
	// Derived aggregates, recomputed on read.
	AnalysisCount   int
	PromptCount     int
	GenerationCount int
	MergeCount      int
	CreatedAt       time.Time
}

// EditorClip is one clip in the hand-off payload written for the external
// video editor.
type EditorClip struct {
	SlotIndex int    `json:"slot_index"`
	URL       string `json:"url"`
	Prompt    string `json:"prompt,omitempty"`
}
