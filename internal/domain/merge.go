package domain

import (
	"sort"
	"strings"
	"time"
)

// MergeID is a unique identifier for a merge record.
type MergeID string

// String returns the string representation of the MergeID.
func (id MergeID) String() string {
	return string(id)
}

// MergeRecord is a completed clip merge: an ordered list of generated clip
// URLs joined into a single artifact.
type MergeRecord struct {
	ID          MergeID
	AdArchiveID AdArchiveID
	InputURLs   []string
	Signature   string
	OutputPath  string
	OutputURL   string
	CreatedAt   time.Time
}

// ClipSelection maps prompt slot indexes to chosen clip URLs. Merge input
// order is always ascending slot index, never click order, so the merged
// video follows script order.
type ClipSelection map[int]string

// Toggle selects url for slot, or deselects it when the same pair is
// already selected. Selecting a different url for an occupied slot
// replaces the previous choice.
func (s ClipSelection) Toggle(slot int, url string) {
	if s[slot] == url {
		delete(s, slot)
		return
	}
	s[slot] = url
}

// Ordered returns the selected URLs in ascending slot index order.
func (s ClipSelection) Ordered() []string {
	slots := make([]int, 0, len(s))
	for slot := range s {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	urls := make([]string, 0, len(slots))
	for _, slot := range slots {
		urls = append(urls, s[slot])
	}
	return urls
}

// Signature is the content signature of the current selection. Two
// selections with the same clips in the same slots produce the same
// signature, which lets repeat merges short-circuit.
func (s ClipSelection) Signature() string {
	return strings.Join(s.Ordered(), "|")
}

// Clone returns an independent copy of the selection.
func (s ClipSelection) Clone() ClipSelection {
	out := make(ClipSelection, len(s))
	for slot, url := range s {
		out[slot] = url
	}
	return out
}
