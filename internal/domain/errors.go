package domain

import "errors"

// Domain errors.
var (
	// ErrInvalidInput is returned when an ad library URL, archive ID, or
	// reel URL cannot be parsed.
	ErrInvalidInput = errors.New("invalid ad library input")

	// ErrAdNotFound is returned when the upstream no longer knows the ad.
	// Callers treat this as "the ad was deleted" and soft-clear dependent
	// state instead of surfacing a hard error.
	ErrAdNotFound = errors.New("ad not found")

	// ErrAnalysisNotFound is returned when no analysis exists for an ad.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrNoModel is returned when a generation is submitted without a model key.
	ErrNoModel = errors.New("no generation model selected")

	// ErrTaskNotFound is returned when a generation task ID is unknown.
	ErrTaskNotFound = errors.New("generation task not found")

	// ErrGenerationNotFound is returned when a generation record cannot be found.
	ErrGenerationNotFound = errors.New("generation not found")

	// ErrNotEnoughClips is returned when a merge is requested with fewer
	// than two selected clips.
	ErrNotEnoughClips = errors.New("at least two clips must be selected")

	// ErrEntryNotFound is returned when a download-history entry cannot be found.
	ErrEntryNotFound = errors.New("history entry not found")

	// ErrMergeNotFound is returned when a merge record cannot be found.
	ErrMergeNotFound = errors.New("merge not found")

	// ErrJobNotFound is returned when a download job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrPageIDRequired is returned when a competitor is added without a page ID.
	ErrPageIDRequired = errors.New("page ID is required")

	// ErrDownloadFailed is returned when a media download fails.
	ErrDownloadFailed = errors.New("media download failed")

	// ErrURLExpired is returned when a media URL has expired.
	ErrURLExpired = errors.New("media URL has expired")

	// ErrRateLimited is returned when rate limited by external services.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidAPIKey is returned when the API key is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// AdError wraps an error with ad context.
type AdError struct {
	AdID AdArchiveID
	Op   string
	Err  error
}

func (e *AdError) Error() string {
	if e.AdID != "" {
		return e.Op + " [" + e.AdID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *AdError) Unwrap() error {
	return e.Err
}

// NewAdError creates a new AdError.
func NewAdError(adID AdArchiveID, op string, err error) *AdError {
	return &AdError{
		AdID: adID,
		Op:   op,
		Err:  err,
	}
}
