// Package usage persists per-request usage records asynchronously. Records
// are enqueued from the request path without blocking; background workers
// batch them into storage and prune anything past the retention window.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetflow/freight-ai/internal/config"
)

// Record is one terminal request outcome written to storage.
type Record struct {
	RequestID   string    `json:"request-id"`
	Source      string    `json:"source"`
	ErrorKind   string    `json:"error-kind,omitempty"`
	RequestedAt time.Time `json:"requested-at"`
	Failed      bool      `json:"failed"`
	Tokens      int       `json:"tokens"`
	Cost        float64   `json:"cost"`
	LatencyMs   int64     `json:"latency-ms"`
}

// AggregatedStats is the rollup across all records since a point in time.
type AggregatedStats struct {
	TotalRequests int64   `json:"total-requests"`
	SuccessCount  int64   `json:"success-count"`
	FailureCount  int64   `json:"failure-count"`
	TotalTokens   int64   `json:"total-tokens"`
	TotalCost     float64 `json:"total-cost"`
}

// DailyStats is a per-day rollup.
type DailyStats struct {
	Day      string  `json:"day"`
	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// Backend defines the persistence contract for usage records.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Enqueue adds a record to the write queue. Non-blocking: when the
	// queue is full the record is dropped with a warning, never stalling
	// the request path.
	Enqueue(record Record)

	// Flush forces pending records to be written to storage.
	Flush(ctx context.Context) error

	// QueryGlobalStats returns aggregate statistics since the given time.
	QueryGlobalStats(ctx context.Context, since time.Time) (*AggregatedStats, error)

	// QueryDailyStats returns per-day statistics since the given time.
	QueryDailyStats(ctx context.Context, since time.Time) ([]DailyStats, error)

	// Cleanup removes records older than the given time.
	Cleanup(ctx context.Context, before time.Time) (int64, error)

	// Start begins background workers (write loop, cleanup loop).
	Start() error

	// Stop gracefully shuts down the backend, flushing pending writes.
	Stop() error
}

// BackendConfig holds parameters for backend initialization.
type BackendConfig struct {
	// DSN is the database connection string (sqlite://... or postgres://...).
	DSN string

	// BatchSize is the number of records to batch before writing.
	BatchSize int

	// FlushInterval is how often to flush pending writes.
	FlushInterval time.Duration

	// RetentionDays is how many days of records to keep.
	RetentionDays int
}

// Defaults shared by both backends.
const (
	defaultBatchSize         = 100
	defaultFlushInterval     = 5 * time.Second
	defaultRetentionDays     = 30
	defaultChannelBufferSize = 1000
)

func (cfg BackendConfig) normalized() BackendConfig {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return cfg
}

// NewBackend creates the appropriate backend based on DSN configuration.
// An empty DSN returns nil, nil — persistence disabled.
func NewBackend(cfg BackendConfig) (Backend, error) {
	parsed, err := config.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, nil
	}

	switch parsed.Backend {
	case "postgres":
		return NewPostgresBackend(parsed.URL, cfg)
	case "sqlite":
		return NewSQLiteBackend(parsed.Path, cfg)
	default:
		return nil, fmt.Errorf("unknown backend type: %q", parsed.Backend)
	}
}
