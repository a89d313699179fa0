package domain

import (
	"encoding/json"
	"time"
)

// EventID is a unique identifier for an activity event.
type EventID string

func (id EventID) String() string {
	return string(id)
}

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
	EventSeveritySuccess EventSeverity = "success"
)

// EventCategory groups events by the pipeline stage that produced them.
type EventCategory string

const (
	EventCategoryDownload   EventCategory = "download"
	EventCategoryAnalysis   EventCategory = "analysis"
	EventCategoryGeneration EventCategory = "generation"
	EventCategoryMerge      EventCategory = "merge"
	EventCategoryExport     EventCategory = "export"
	EventCategorySystem     EventCategory = "system"
)

// Event is a single entry in the activity feed.
type Event struct {
	ID        EventID         `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Severity  EventSeverity   `json:"severity"`
	Category  EventCategory   `json:"category"`
	Message   string          `json:"message"`
	Source    string          `json:"source,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// EventMetadata is a helper type for building event metadata.
type EventMetadata map[string]interface{}

// ToJSON converts metadata to JSON for storage.
func (m EventMetadata) ToJSON() json.RawMessage {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return data
}

// EventFilter specifies criteria for querying the activity feed.
type EventFilter struct {
	Severity   *EventSeverity `json:"severity,omitempty"`
	Category   *EventCategory `json:"category,omitempty"`
	Source     string         `json:"source,omitempty"`
	StartTime  *time.Time     `json:"start_time,omitempty"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	SearchText string         `json:"search_text,omitempty"`
}

// EventEmitter is implemented by components that record activity events.
type EventEmitter interface {
	Emit(event Event)
	EmitInfo(category EventCategory, source, message string, metadata EventMetadata)
	EmitWarning(category EventCategory, source, message string, metadata EventMetadata)
	EmitError(category EventCategory, source, message string, metadata EventMetadata)
	EmitSuccess(category EventCategory, source, message string, metadata EventMetadata)
}

// EventQuery represents a query for events with pagination.
type EventQuery struct {
	Filter EventFilter `json:"filter"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// EventQueryResult contains one page of matching events.
type EventQueryResult struct {
	Events  []Event `json:"events"`
	Total   int     `json:"total"`
	HasMore bool    `json:"has_more"`
}
