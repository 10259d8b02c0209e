// Package provider implements the outbound client for the remote completion
// API. It speaks the Anthropic messages wire format: one POST per completion,
// token usage reported in the response. Response payloads are validated
// before decoding so a malformed body surfaces as a SchemaError instead of a
// zero-valued result.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fleetflow/freight-ai/internal/json"
)

const (
	apiVersionHeader = "2023-06-01"

	// maxResponseBytes bounds how much of a response body is read into
	// memory.
	maxResponseBytes = 10 * 1024 * 1024
)

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout bounds a single attempt, including connection setup and
	// body read.
	Timeout time.Duration
	// HTTPClient overrides the transport; tests inject httptest clients.
	HTTPClient *http.Client
}

// Request is a single completion call.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Result is a successful completion.
type Result struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns the combined token usage.
func (r Result) TotalTokens() int { return r.InputTokens + r.OutputTokens }

// Client calls the remote completion API. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// New returns a client for cfg.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: httpClient}
}

// IsConfigured reports whether the client holds a credential.
func (c *Client) IsConfigured() bool { return c.cfg.APIKey != "" }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []wireMessage `json:"messages"`
}

// Complete performs one attempt against the remote API. The call is bounded
// by the configured timeout; a timeout surfaces as a recoverable error.
func (c *Client) Complete(ctx context.Context, req Request) (Result, error) {
	if !c.IsConfigured() {
		return Result{}, ErrNotConfigured
	}

	body, err := json.Marshal(wireRequest{
		Model:       c.cfg.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    []wireMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersionHeader)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("remote call: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(payload, "error.message").String(),
		}
	}

	return parseCompletion(payload)
}

// parseCompletion validates and extracts the fields the gateway needs.
func parseCompletion(payload []byte) (Result, error) {
	content := gjson.GetBytes(payload, "content.0.text")
	if !content.Exists() {
		return Result{}, &SchemaError{Field: "content.0.text"}
	}
	usage := gjson.GetBytes(payload, "usage")
	if !usage.Exists() {
		return Result{}, &SchemaError{Field: "usage"}
	}
	inputTokens := usage.Get("input_tokens")
	outputTokens := usage.Get("output_tokens")
	if !inputTokens.Exists() || !outputTokens.Exists() {
		return Result{}, &SchemaError{Field: "usage.input_tokens"}
	}

	return Result{
		Content:      content.String(),
		InputTokens:  int(inputTokens.Int()),
		OutputTokens: int(outputTokens.Int()),
	}, nil
}
