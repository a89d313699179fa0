package domain

import (
	"time"
)

// ChatMessage is one turn of the follow-up thread embedded in an analysis
// version. The thread lives upstream; clients rebuild their transcript from
// the record on load.
type ChatMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// AnalysisUsage aggregates token and cost accounting for one version.
type AnalysisUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// AnalysisRecord is one version of the AI analysis of an ad video.
// Versions are append-only per ad; the current version is the one the
// upstream returns by default.
type AnalysisRecord struct {
	AdArchiveID   AdArchiveID    `json:"ad_archive_id"`
	VersionNumber int            `json:"version_number"`
	VideoURL      string         `json:"video_url"`
	Transcript    string         `json:"transcript"`
	Prompts       []string       `json:"prompts"`
	Hook          string         `json:"hook,omitempty"`
	TargetEmotion string         `json:"target_emotion,omitempty"`
	CallToAction  string         `json:"call_to_action,omitempty"`
	Instruction   string         `json:"instruction,omitempty"` // custom instruction this version was generated with
	Usage         AnalysisUsage  `json:"usage"`
	ChatHistory   []ChatMessage  `json:"chat_history,omitempty"`
	IsCurrent     bool           `json:"is_current"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AnswerRecord is the reply to one follow-up question.
type AnswerRecord struct {
	Question      string        `json:"question"`
	Answer        string        `json:"answer"`
	VersionNumber int           `json:"version_number"`
	Usage         AnalysisUsage `json:"usage"`
	CreatedAt     time.Time     `json:"created_at"`
}
