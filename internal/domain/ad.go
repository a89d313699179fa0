package domain

import (
	"time"
)

// AdArchiveID is Facebook's identifier for a library-indexed ad creative.
type AdArchiveID string

// String returns the string representation of the AdArchiveID.
func (id AdArchiveID) String() string {
	return string(id)
}

// SourceKind identifies where an ad creative was collected from.
type SourceKind string

const (
	SourceFacebook  SourceKind = "facebook"
	SourceInstagram SourceKind = "instagram"
)

// MediaType selects which media to fetch for an ad.
type MediaType string

const (
	MediaTypeAll   MediaType = "all"
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
)

// MediaDescriptor is one downloadable media asset of an ad creative,
// normalized from the upstream response.
type MediaDescriptor struct {
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url,omitempty"`
	OriginalURL string `json:"original_url,omitempty"`
	Kind        string `json:"kind"` // "video" or "image"
	Quality     string `json:"quality,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	LocalPath   string `json:"local_path,omitempty"`
}

// Ad is a fetched ad creative with its media set.
type Ad struct {
	ArchiveID AdArchiveID
	Source    SourceKind
	PageID    string
	PageName  string
	AdText    string
	Media     []MediaDescriptor
	FetchedAt time.Time
}

// Videos returns only the video descriptors of the ad.
func (a *Ad) Videos() []MediaDescriptor {
	var out []MediaDescriptor
	for _, m := range a.Media {
		if m.Kind == "video" {
			out = append(out, m)
		}
	}
	return out
}

// Images returns only the image descriptors of the ad.
func (a *Ad) Images() []MediaDescriptor {
	var out []MediaDescriptor
	for _, m := range a.Media {
		if m.Kind == "image" {
			out = append(out, m)
		}
	}
	return out
}
