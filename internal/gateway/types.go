package gateway

import (
	"github.com/fleetflow/freight-ai/internal/cache"
	"github.com/fleetflow/freight-ai/internal/metrics"
	"github.com/fleetflow/freight-ai/internal/ratelimit"
)

// Urgency is caller-declared priority. It is carried through for observability
// and has no scheduling effect today.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Source identifies where a response's content came from.
type Source string

const (
	SourceRemote   Source = "REMOTE"
	SourceCache    Source = "CACHE"
	SourceFallback Source = "FALLBACK"
)

// ErrorKind classifies terminal failures.
type ErrorKind string

const (
	// ErrUpstreamUnavailable means the remote call failed after exhausting
	// retries (timeouts, 5xx, open breaker).
	ErrUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE"
	// ErrRateLimited means local admission was denied.
	ErrRateLimited ErrorKind = "RATE_LIMITED"
	// ErrUpstreamRejected means the remote refused the request outright
	// (auth failure, malformed request). Never retried.
	ErrUpstreamRejected ErrorKind = "UPSTREAM_REJECTED"
	// ErrInvalidResponseSchema means the remote payload was missing
	// expected fields. Never retried.
	ErrInvalidResponseSchema ErrorKind = "INVALID_RESPONSE_SCHEMA"
)

// Request is one generation request. Immutable once submitted.
type Request struct {
	Prompt      string         `json:"prompt"`
	Context     map[string]any `json:"context,omitempty"`
	MaxTokens   int            `json:"max-tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	Urgency     Urgency        `json:"urgency,omitempty"`

	// FallbackAllowed overrides the configured default when set. Nil means
	// use the gateway-wide default.
	FallbackAllowed *bool `json:"fallback-allowed,omitempty"`
}

// Envelope is the uniform result returned for every request. Produced exactly
// once per request; never mutated after return.
type Envelope struct {
	Success      bool      `json:"success"`
	Content      string    `json:"content,omitempty"`
	ErrorKind    ErrorKind `json:"error-kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	CostEstimate float64   `json:"cost-estimate"`
	TokensUsed   int       `json:"tokens-used"`
	LatencyMs    int64     `json:"latency-ms"`
	Source       Source    `json:"source"`
	Cached       bool      `json:"cached"`
	RetryCount   int       `json:"retry-count"`
	RequestID    string    `json:"request-id"`
}

// StatusSnapshot is the read-only operational view returned by Status.
type StatusSnapshot struct {
	Configured bool               `json:"configured"`
	Model      string             `json:"model"`
	RateLimits ratelimit.Snapshot `json:"rate-limits"`
	CacheSize  int                `json:"cache-size"`
	Metrics    metrics.Snapshot   `json:"metrics"`
	Breaker    string             `json:"breaker,omitempty"`
}

// HealthReport is returned by HealthCheck.
type HealthReport struct {
	Healthy    bool   `json:"healthy"`
	Configured bool   `json:"configured"`
	Throttled  bool   `json:"throttled"`
	ProbeError string `json:"probe-error,omitempty"`
	LatencyMs  int64  `json:"latency-ms"`
}

// BatchSummary aggregates a GenerateBatch run.
type BatchSummary struct {
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Fallback   int     `json:"fallback"`
	Failed     int     `json:"failed"`
	TotalCost  float64 `json:"total-cost"`
}

// entryToEnvelope builds a cache-hit envelope from a stored entry.
func entryToEnvelope(requestID string, e cache.Entry, latencyMs int64) Envelope {
	return Envelope{
		Success:      true,
		Content:      e.Content,
		CostEstimate: e.CostEstimate,
		TokensUsed:   e.TokensUsed,
		LatencyMs:    latencyMs,
		Source:       SourceCache,
		Cached:       true,
		RequestID:    requestID,
	}
}
