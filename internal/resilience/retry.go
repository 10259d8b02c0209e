// Package resilience wraps remote attempts with bounded retry, exponential
// backoff, and a circuit breaker. Only recoverable failures are retried;
// non-recoverable failures propagate immediately. Every outcome carries the
// number of attempts taken so callers can report retry counts.
package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sony/gobreaker"
)

// RetryConfig controls the retry/backoff executor.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget, including the first call.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; attempt n waits
	// min(BaseDelay * 2^(n-1), MaxDelay).
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// IsRecoverable classifies an error as retryable. Nil means retry
	// every error.
	IsRecoverable func(err error) bool
}

// DefaultRetryConfig matches the gateway defaults: 3 attempts, 1s base, 10s cap.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
}

func (cfg RetryConfig) normalized() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if cfg.IsRecoverable == nil {
		cfg.IsRecoverable = func(error) bool { return true }
	}
	return cfg
}

// BreakerConfig configures the circuit breaker guarding the upstream.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	FailureRatio     float64
	MinRequests      uint32
	OnStateChange    func(name string, from, to gobreaker.State)
	IsSuccessful     func(err error) bool
}

// DefaultBreakerConfig returns breaker settings tuned for a single upstream:
// open after 5 consecutive failures or a 50% failure ratio over at least 10
// calls, probe again after 30s.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
		IsSuccessful:     func(err error) bool { return err == nil },
	}
}

// CircuitBreaker wraps gobreaker with our config shape.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker builds a breaker from cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: cfg.OnStateChange,
		IsSuccessful:  cfg.IsSuccessful,
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker.
func (c *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return c.cb.Execute(fn)
}

// State returns the breaker state.
func (c *CircuitBreaker) State() gobreaker.State { return c.cb.State() }

// Counts returns the breaker counters.
func (c *CircuitBreaker) Counts() gobreaker.Counts { return c.cb.Counts() }

// IsBreakerOpen reports whether err came from an open or saturated breaker.
func IsBreakerOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

// Executor retries a remote call with exponential backoff, optionally behind
// a circuit breaker. A single Executor serves many concurrent requests.
type Executor[R any] struct {
	cfg     RetryConfig
	breaker *CircuitBreaker
}

// NewExecutor builds an executor. breakerConfig may be nil to disable the
// breaker (tests mostly do).
func NewExecutor[R any](retryConfig RetryConfig, breakerConfig *BreakerConfig) *Executor[R] {
	var breaker *CircuitBreaker
	if breakerConfig != nil {
		breaker = NewCircuitBreaker(*breakerConfig)
	}
	return &Executor[R]{cfg: retryConfig.normalized(), breaker: breaker}
}

// Execute invokes fn up to MaxAttempts times, backing off between recoverable
// failures. It returns the result, the number of attempts actually made, and
// the terminal error. Non-recoverable errors and context cancellation stop
// the loop immediately. When the breaker is open, fn is never invoked and the
// attempt count is zero.
func (e *Executor[R]) Execute(ctx context.Context, fn func(ctx context.Context) (R, error)) (R, int, error) {
	var attempts atomic.Int32

	policy := retrypolicy.NewBuilder[R]().
		WithMaxRetries(e.cfg.MaxAttempts - 1).
		WithBackoff(e.cfg.BaseDelay, e.cfg.MaxDelay).
		HandleIf(func(_ R, err error) bool {
			return err != nil && e.cfg.IsRecoverable(err)
		}).
		ReturnLastFailure().
		Build()

	run := func() (R, error) {
		return failsafe.With(policy).WithContext(ctx).Get(func() (R, error) {
			attempts.Add(1)
			return fn(ctx)
		})
	}

	if e.breaker != nil {
		result, err := e.breaker.Execute(func() (any, error) { return run() })
		if err != nil {
			var zero R
			return zero, int(attempts.Load()), err
		}
		return result.(R), int(attempts.Load()), nil
	}

	result, err := run()
	return result, int(attempts.Load()), err
}

// Breaker exposes the underlying breaker for status reporting; nil when
// disabled.
func (e *Executor[R]) Breaker() *CircuitBreaker { return e.breaker }

// CalculateBackoff returns the delay before attempt+1, growing as
// base * 2^attempt and capped at maxDelay. attempt is zero-based.
func CalculateBackoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return maxDelay
	}
	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}

// WaitWithContext sleeps for delay unless the context finishes first.
func WaitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
