// Package adlibrary normalizes user input into ad-media fetch requests.
package adlibrary

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/adscope/adscope/internal/domain"
)

// Input is a normalized fetch input: either a Facebook Ad Library archive
// ID or an Instagram reel/post URL.
type Input struct {
	Source    domain.SourceKind
	ArchiveID domain.AdArchiveID // facebook only
	ReelURL   string             // instagram only
}

var (
	archiveIDPattern = regexp.MustCompile(`^\d{6,}$`)
	instagramPattern = regexp.MustCompile(`^https?://(www\.)?instagram\.com/(reel|reels|p|tv)/[A-Za-z0-9_-]+`)
)

// ParseInput accepts a Facebook Ad Library URL, a bare archive ID, or an
// Instagram reel/post URL and normalizes it. Anything else is rejected
// before a request is issued.
func ParseInput(raw string) (*Input, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrInvalidInput
	}

	if archiveIDPattern.MatchString(raw) {
		return &Input{
			Source:    domain.SourceFacebook,
			ArchiveID: domain.AdArchiveID(raw),
		}, nil
	}

	if instagramPattern.MatchString(raw) {
		return &Input{
			Source:  domain.SourceInstagram,
			ReelURL: raw,
		}, nil
	}

	if id := ParseID(raw); id != "" {
		return &Input{
			Source:    domain.SourceFacebook,
			ArchiveID: domain.AdArchiveID(id),
		}, nil
	}

	return nil, domain.ErrInvalidInput
}

// ParseID extracts the ad archive ID from a Facebook Ad Library URL
// (https://www.facebook.com/ads/library/?id=<digits>). Returns "" when the
// URL is not an ad library URL or carries no numeric id.
func ParseID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if host != "facebook.com" {
		return ""
	}
	if !strings.HasPrefix(u.Path, "/ads/library") {
		return ""
	}

	id := u.Query().Get("id")
	if !archiveIDPattern.MatchString(id) {
		return ""
	}
	return id
}
