package downloader

import (
	"context"
	"io"
)

// Downloader fetches ad media content from CDN URLs.
type Downloader interface {
	// Download fetches media from URL, returns content reader and size.
	// Caller is responsible for closing the reader.
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)

	// Probe checks URL accessibility without downloading full content.
	Probe(ctx context.Context, url string) (*ProbeResult, error)
}

// ProbeResult contains information about a media URL.
type ProbeResult struct {
	ContentType   string
	ContentLength int64
	Accessible    bool
	Error         string
}
