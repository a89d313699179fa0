package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// GenerateVideoRequest is the payload for the async generation endpoint.
type GenerateVideoRequest struct {
	Prompt      string `json:"prompt"`
	VideoURL    string `json:"video_url,omitempty"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Seed        int64  `json:"seed,omitempty"`
}

// GenerateVideoResponse carries the task handle for a submitted job.
type GenerateVideoResponse struct {
	TaskID string `json:"task_id"`
}

// GenerateVideoAsync submits a video generation job and returns its task id.
func (c *Client) GenerateVideoAsync(ctx context.Context, req GenerateVideoRequest) (*GenerateVideoResponse, error) {
	var resp GenerateVideoResponse
	if err := c.postJSON(ctx, "/settings/ai/veo/generate-video-async", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskResult is the payload of a successful generation task.
type TaskResult struct {
	VideoURL string `json:"video_url"`
}

// TaskStatusResponse is one poll of GET /settings/ai/veo/tasks/{id}/status.
type TaskStatusResponse struct {
	State  string      `json:"state"`
	Result *TaskResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// GetTaskStatus fetches the current state of a generation task. The job is
// server-owned and idempotent to re-query.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
	var resp TaskStatusResponse
	path := "/settings/ai/veo/tasks/" + url.PathEscape(taskID) + "/status"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VeoModelPayload describes one selectable generation model.
type VeoModelPayload struct {
	Key              string   `json:"key"`
	Name             string   `json:"name"`
	EstimatedSeconds int      `json:"estimated_seconds"`
	AspectRatios     []string `json:"aspect_ratios,omitempty"`
}

// veoModelsResponse wraps the model list.
type veoModelsResponse struct {
	Models []VeoModelPayload `json:"models"`
}

// ListVeoModels returns the available generation models.
func (c *Client) ListVeoModels(ctx context.Context) ([]VeoModelPayload, error) {
	var resp veoModelsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/settings/ai/veo/models", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// GenerationPayload is one generation record on the wire.
type GenerationPayload struct {
	ID            string    `json:"id"`
	PromptHash    string    `json:"prompt_hash"`
	Prompt        string    `json:"prompt"`
	VideoURL      string    `json:"video_url"`
	OutputURL     string    `json:"output_url"`
	Model         string    `json:"model"`
	AspectRatio   string    `json:"aspect_ratio,omitempty"`
	Seed          int64     `json:"seed,omitempty"`
	VersionNumber int       `json:"version_number"`
	IsCurrent     bool      `json:"is_current"`
	CreatedAt     time.Time `json:"created_at"`
}

// generationsResponse wraps the generation list.
type generationsResponse struct {
	Generations []GenerationPayload `json:"generations"`
}

// ListGenerations returns generation records, optionally filtered by
// source video URL.
func (c *Client) ListGenerations(ctx context.Context, videoURL string) ([]GenerationPayload, error) {
	path := "/settings/ai/veo/generations"
	if videoURL != "" {
		path += "?video_url=" + url.QueryEscape(videoURL)
	}
	var resp generationsResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Generations, nil
}

// MergeVideosRequest is the payload for POST /settings/ai/veo/merge-videos.
// The URL order is the merge order.
type MergeVideosRequest struct {
	VideoURLs   []string `json:"video_urls"`
	AdArchiveID string   `json:"ad_archive_id,omitempty"`
}

// MergeVideosResponse is the merged artifact.
type MergeVideosResponse struct {
	OutputPath string `json:"output_path"`
	PublicURL  string `json:"public_url"`
}

// MergeVideos joins the given clips into a single video.
func (c *Client) MergeVideos(ctx context.Context, req MergeVideosRequest) (*MergeVideosResponse, error) {
	var resp MergeVideosResponse
	if err := c.postJSON(ctx, "/settings/ai/veo/merge-videos", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MergedVideoPayload is one past merge on the wire.
type MergedVideoPayload struct {
	ID          string    `json:"id"`
	AdArchiveID string    `json:"ad_archive_id,omitempty"`
	VideoURLs   []string  `json:"video_urls"`
	OutputPath  string    `json:"output_path"`
	PublicURL   string    `json:"public_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// mergedVideosResponse wraps the merged video list.
type mergedVideosResponse struct {
	Merged []MergedVideoPayload `json:"merged_videos"`
}

// ListMergedVideos returns past merge artifacts.
func (c *Client) ListMergedVideos(ctx context.Context) ([]MergedVideoPayload, error) {
	var resp mergedVideosResponse
	if err := c.doRequest(ctx, http.MethodGet, "/settings/ai/veo/merged-videos", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Merged, nil
}
