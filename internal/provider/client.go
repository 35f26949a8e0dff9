// Package provider is the client for the asynchronous image-generation
// service. A submission returns an opaque provider task handle; the provider
// later delivers exactly one terminal callback per task (at-least-once,
// possibly duplicated).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Callback statuses the provider may report. Anything else is non-terminal
// and must never mutate job or session state.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Options configures the provider client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client submits generation tasks over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient constructs a provider client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("provider: api key is required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, errors.New("provider: base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		apiKey:     strings.TrimSpace(opts.APIKey),
	}, nil
}

// SubmitRequest describes one generation task.
type SubmitRequest struct {
	Prompt         string   `json:"prompt"`
	ImageURLs      []string `json:"image_urls"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	Resolution     string   `json:"resolution,omitempty"`
	OutputFormat   string   `json:"output_format,omitempty"`
	CallbackURL    string   `json:"callback_url"`
	CallbackSecret string   `json:"callback_secret"`
}

type submitResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Submit creates a generation task and returns the provider's task handle.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.Prompt == "" {
		return "", errors.New("provider: prompt is required")
	}
	if len(req.ImageURLs) == 0 {
		return "", errors.New("provider: at least one input image is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("provider: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("provider: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("provider: submit task: %w", err)
	}
	defer resp.Body.Close()

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("provider: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Message
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("provider: submit rejected: %s", msg)
	}
	if parsed.TaskID == "" {
		return "", errors.New("provider: submit response missing task id")
	}
	return parsed.TaskID, nil
}

// Callback is the terminal notification delivered to the callback URL.
type Callback struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Output *CallbackOutput `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// CallbackOutput carries the single generated result reference.
type CallbackOutput struct {
	URL string `json:"url"`
}
