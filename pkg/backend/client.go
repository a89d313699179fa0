// Package backend is the typed HTTP client for the upstream ad/analysis API.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adscope/adscope/internal/config"
)

// Client communicates with the upstream ad download/analysis service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new upstream API client.
func NewClient(cfg config.BackendConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response from the upstream service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream API error (status %d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an upstream 404. A 404 typically means
// the referenced ad or analysis was deleted server-side.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// errorResponse is the upstream error body shape.
type errorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// doRequest performs a JSON request against the upstream service.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(respBody))
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			if errResp.Detail != "" {
				msg = errResp.Detail
			} else if errResp.Error != "" {
				msg = errResp.Error
			}
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, reqBody, result interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doRequest(ctx, http.MethodPost, path, strings.NewReader(string(body)), result)
}

// DownloadRequest is the payload for POST /ads/library/download.
type DownloadRequest struct {
	AdArchiveID string `json:"ad_archive_id,omitempty"`
	ReelURL     string `json:"reel_url,omitempty"`
	MediaType   string `json:"media_type"`
	Download    bool   `json:"download"`
}

// MediaItem is one media asset in a download response.
type MediaItem struct {
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url,omitempty"`
	OriginalURL string `json:"original_url,omitempty"`
	Kind        string `json:"kind"`
	Quality     string `json:"quality,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// DownloadResponse is the normalized media descriptor set for an ad.
type DownloadResponse struct {
	AdArchiveID string      `json:"ad_archive_id,omitempty"`
	Source      string      `json:"source"`
	PageID      string      `json:"page_id,omitempty"`
	PageName    string      `json:"page_name,omitempty"`
	AdText      string      `json:"ad_text,omitempty"`
	Media       []MediaItem `json:"media"`
}

// DownloadAdMedia fetches the media descriptor set for an ad or reel.
func (c *Client) DownloadAdMedia(ctx context.Context, req DownloadRequest) (*DownloadResponse, error) {
	var resp DownloadResponse
	if err := c.postJSON(ctx, "/ads/library/download", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UsagePayload carries token/cost accounting on analysis responses.
type UsagePayload struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ChatMessagePayload is one embedded chat turn.
type ChatMessagePayload struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// AnalysisPayload is one analysis version on the wire.
type AnalysisPayload struct {
	AdArchiveID   string               `json:"ad_archive_id"`
	VersionNumber int                  `json:"version_number"`
	VideoURL      string               `json:"video_url"`
	Transcript    string               `json:"transcript"`
	Prompts       []string             `json:"prompts"`
	Hook          string               `json:"hook,omitempty"`
	TargetEmotion string               `json:"target_emotion,omitempty"`
	CallToAction  string               `json:"call_to_action,omitempty"`
	Instruction   string               `json:"instruction,omitempty"`
	Usage         UsagePayload         `json:"usage"`
	ChatHistory   []ChatMessagePayload `json:"chat_history,omitempty"`
	IsCurrent     bool                 `json:"is_current"`
	CreatedAt     time.Time            `json:"created_at"`
}

// AnalyzeRequest is the payload for POST /ads/{ad_id}/analyze.
type AnalyzeRequest struct {
	VideoURL          string `json:"video_url"`
	CustomInstruction string `json:"custom_instruction,omitempty"`
}

// Analyze submits a video for AI analysis.
func (c *Client) Analyze(ctx context.Context, adID string, req AnalyzeRequest) (*AnalysisPayload, error) {
	var resp AnalysisPayload
	if err := c.postJSON(ctx, "/ads/"+url.PathEscape(adID)+"/analyze", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAnalysis returns the current analysis version for an ad.
func (c *Client) GetAnalysis(ctx context.Context, adID string) (*AnalysisPayload, error) {
	var resp AnalysisPayload
	if err := c.doRequest(ctx, http.MethodGet, "/ads/"+url.PathEscape(adID)+"/analysis", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteAnalysis removes all analysis versions for an ad.
func (c *Client) DeleteAnalysis(ctx context.Context, adID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/ads/"+url.PathEscape(adID)+"/analysis", nil, nil)
}

// analysisHistoryResponse wraps the version list.
type analysisHistoryResponse struct {
	Versions []AnalysisPayload `json:"versions"`
}

// GetAnalysisHistory returns all analysis versions for an ad, newest first.
func (c *Client) GetAnalysisHistory(ctx context.Context, adID string) ([]AnalysisPayload, error) {
	var resp analysisHistoryResponse
	if err := c.doRequest(ctx, http.MethodGet, "/ads/"+url.PathEscape(adID)+"/analysis/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Versions, nil
}

// GetAnalysisVersion returns one specific analysis version.
func (c *Client) GetAnalysisVersion(ctx context.Context, adID string, version int) (*AnalysisPayload, error) {
	var resp AnalysisPayload
	path := "/ads/" + url.PathEscape(adID) + "/analysis/version/" + strconv.Itoa(version)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegenerateRequest is the payload for POST /ads/{ad_id}/analysis/regenerate.
type RegenerateRequest struct {
	Instruction string `json:"instruction"`
}

// RegenerateAnalysis creates a new analysis version reusing cached upstream context.
func (c *Client) RegenerateAnalysis(ctx context.Context, adID string, req RegenerateRequest) (*AnalysisPayload, error) {
	var resp AnalysisPayload
	if err := c.postJSON(ctx, "/ads/"+url.PathEscape(adID)+"/analysis/regenerate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FollowupRequest is the payload for POST /ads/{ad_id}/analysis/followup.
type FollowupRequest struct {
	Question      string `json:"question"`
	VersionNumber *int   `json:"version_number,omitempty"`
}

// FollowupResponse is the answer to a follow-up question.
type FollowupResponse struct {
	Question      string       `json:"question"`
	Answer        string       `json:"answer"`
	VersionNumber int          `json:"version_number"`
	Usage         UsagePayload `json:"usage"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Followup asks a follow-up question against a cached analysis version.
func (c *Client) Followup(ctx context.Context, adID string, req FollowupRequest) (*FollowupResponse, error) {
	var resp FollowupResponse
	if err := c.postJSON(ctx, "/ads/"+url.PathEscape(adID)+"/analysis/followup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearCache drops the upstream's cached context for an ad.
func (c *Client) ClearCache(ctx context.Context, adID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/ads/"+url.PathEscape(adID)+"/cache", nil, nil)
}

// Competitor is a tracked competitor page.
type Competitor struct {
	ID     string `json:"id,omitempty"`
	PageID string `json:"page_id"`
	Name   string `json:"name,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// competitorsResponse wraps the competitor list.
type competitorsResponse struct {
	Competitors []Competitor `json:"competitors"`
}

// ListCompetitors returns all tracked competitors.
func (c *Client) ListCompetitors(ctx context.Context) ([]Competitor, error) {
	var resp competitorsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/competitors", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Competitors, nil
}

// AddCompetitor registers a competitor page for tracking.
func (c *Client) AddCompetitor(ctx context.Context, comp Competitor) (*Competitor, error) {
	var resp Competitor
	if err := c.postJSON(ctx, "/competitors", comp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteCompetitor removes a tracked competitor.
func (c *Client) DeleteCompetitor(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/competitors/"+url.PathEscape(id), nil, nil)
}

// SearchAds proxies a raw search query to the upstream search endpoint.
// The result shape is upstream-defined, so it is passed through untyped.
func (c *Client) SearchAds(ctx context.Context, query url.Values) (json.RawMessage, error) {
	var resp json.RawMessage
	path := "/search/ads"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
