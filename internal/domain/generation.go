package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// PromptHashLen is the number of hex characters kept from the full digest.
// Must match the upstream service, which stores the same truncated hash on
// every generation record.
const PromptHashLen = 16

// PromptHash computes the truncated content hash of a prompt text. It is
// the cross-reference between a prompt slot and the generation records
// produced from it: slot indexes drift when prompts are edited or
// reordered, the hash does not.
func PromptHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:PromptHashLen]
}

// SlotKey identifies a prompt slot: one generation prompt of one source video.
type SlotKey struct {
	VideoURL    string
	PromptIndex int
}

// PromptSlot holds a per-segment generation prompt plus its generation state.
// At most one generation per slot is current; earlier ones are archived.
type PromptSlot struct {
	Key        SlotKey
	Text       string
	Generating bool
	LastError  string
	Current    *GenerationRecord
	Archived   []GenerationRecord
}

// GenerationID is a unique identifier for a generation record.
type GenerationID string

// String returns the string representation of the GenerationID.
func (id GenerationID) String() string {
	return string(id)
}

// GenerationRecord is a completed video generation. Created when a job
// succeeds, superseded (IsCurrent flips) when a newer generation for the
// same prompt hash lands, never mutated otherwise.
type GenerationRecord struct {
	ID            GenerationID
	PromptHash    string
	PromptText    string
	VideoURL      string // source video the prompt was derived from
	OutputURL     string // generated clip
	ModelKey      string
	AspectRatio   string
	Seed          int64
	VersionNumber int
	IsCurrent     bool
	CreatedAt     time.Time
}

// TaskID identifies an in-flight generation job on the upstream service.
type TaskID string

// String returns the string representation of the TaskID.
func (id TaskID) String() string {
	return string(id)
}

// TaskState is the upstream job state reported by the status endpoint.
type TaskState string

const (
	TaskPending  TaskState = "PENDING"
	TaskProgress TaskState = "PROGRESS"
	TaskSuccess  TaskState = "SUCCESS"
	TaskFailure  TaskState = "FAILURE"
)

// Terminal reports whether the state ends the polling loop.
func (s TaskState) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// TaskStatus is one poll result for a generation task.
type TaskStatus struct {
	TaskID   TaskID
	State    TaskState
	VideoURL string // set on SUCCESS
	Error    string // set on FAILURE
}

// VeoModel describes one selectable generation model.
type VeoModel struct {
	Key              string   `json:"key"`
	Name             string   `json:"name"`
	EstimatedSeconds int      `json:"estimated_seconds"`
	AspectRatios     []string `json:"aspect_ratios,omitempty"`
}
