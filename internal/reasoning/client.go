// Package reasoning is the transport to the external reasoning service that
// proposes edits for an instruction.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	streamPath = "/v1/edit/stream"
	memoryPath = "/v1/memory"

	defaultHeaderTimeout = 30 * time.Second
	maxErrorBody         = 4 * 1024
)

// Request is the payload sent for one run.
type Request struct {
	RunID       string `json:"run_id,omitempty"`
	Instruction string `json:"instruction"`
	FilePath    string `json:"file_path"`
	Selection   string `json:"selection,omitempty"`
	Content     string `json:"content"`
	Memory      string `json:"memory,omitempty"`
	// ForceEdit skips intent classification so a chat-like instruction
	// still produces edits.
	ForceEdit bool   `json:"force_edit,omitempty"`
	ModelTier string `json:"model_tier,omitempty"`
	Context   string `json:"context,omitempty"`
}

// MemoryRequest asks the service to fold a finished run into the
// document's long-lived memory.
type MemoryRequest struct {
	FilePath    string   `json:"file_path"`
	Memory      string   `json:"memory"`
	Instruction string   `json:"instruction"`
	Summary     string   `json:"summary,omitempty"`
	Steps       []string `json:"steps,omitempty"`
}

type memoryResponse struct {
	Memory string `json:"memory"`
}

// Client talks to the reasoning service.
type Client interface {
	// Stream starts a run and returns the raw NDJSON body. The caller closes it.
	Stream(ctx context.Context, req Request) (io.ReadCloser, error)
	// Reflect returns the updated memory blob.
	Reflect(ctx context.Context, req MemoryRequest) (string, error)
}

// StatusError is returned when the service answers with a non-success status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("reasoning service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("reasoning service returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether err is worth another attempt: network failures,
// throttling and server errors are; client errors and cancellation are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// HTTPClient is the Client for the service's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the service at baseURL. headerTimeout
// bounds the wait for response headers; streamed bodies have no deadline
// besides the request context.
func NewHTTPClient(baseURL, apiKey string, headerTimeout time.Duration) *HTTPClient {
	if headerTimeout <= 0 {
		headerTimeout = defaultHeaderTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Transport: transport},
	}
}

func (c *HTTPClient) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	resp, err := c.post(ctx, streamPath, req, "application/x-ndjson")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *HTTPClient) Reflect(ctx context.Context, req MemoryRequest) (string, error) {
	resp, err := c.post(ctx, memoryPath, req, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out memoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode memory response: %w", err)
	}
	return out.Memory, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

// ReplayClient replays a recorded NDJSON stream from a file instead of
// calling the service. Memory reflection returns the memory unchanged.
type ReplayClient struct {
	fs   afero.Fs
	path string
}

var _ Client = (*ReplayClient)(nil)

// NewReplayClient creates a client replaying path from fs.
func NewReplayClient(fs afero.Fs, path string) *ReplayClient {
	return &ReplayClient{fs: fs, path: path}
}

func (c *ReplayClient) Stream(ctx context.Context, _ Request) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := c.fs.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recorded stream: %w", err)
	}
	return f, nil
}

func (c *ReplayClient) Reflect(_ context.Context, req MemoryRequest) (string, error) {
	return req.Memory, nil
}
