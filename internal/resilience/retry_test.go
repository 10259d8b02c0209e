package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

var errTransient = errors.New("upstream timeout")
var errFatal = errors.New("invalid credentials")

func fastRetryConfig(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		IsRecoverable: func(err error) bool {
			return errors.Is(err, errTransient)
		},
	}
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	exec := NewExecutor[string](fastRetryConfig(3), nil)
	result, attempts, err := exec.Execute(context.Background(), func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q", result)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	exec := NewExecutor[string](fastRetryConfig(3), nil)
	calls := 0
	result, attempts, err := exec.Execute(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "recovered" {
		t.Errorf("result = %q", result)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	exec := NewExecutor[string](fastRetryConfig(3), nil)
	_, attempts, err := exec.Execute(context.Background(), func(context.Context) (string, error) {
		return "", errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Errorf("terminal error should be the last failure, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestExecuteDoesNotRetryFatal(t *testing.T) {
	exec := NewExecutor[string](fastRetryConfig(3), nil)
	_, attempts, err := exec.Execute(context.Background(), func(context.Context) (string, error) {
		return "", errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Errorf("error = %v, want fatal error", err)
	}
	if attempts != 1 {
		t.Errorf("non-recoverable failure should stop after 1 attempt, got %d", attempts)
	}
}

func TestBackoffMonotonicAndCapped(t *testing.T) {
	base := 1 * time.Second
	cap := 10 * time.Second
	prev := time.Duration(0)
	for attempt := 0; attempt < 8; attempt++ {
		delay := CalculateBackoff(attempt, base, cap)
		if delay < prev {
			t.Errorf("delay decreased at attempt %d: %v < %v", attempt, delay, prev)
		}
		if delay > cap {
			t.Errorf("delay exceeds cap at attempt %d: %v", attempt, delay)
		}
		prev = delay
	}
	if CalculateBackoff(0, base, cap) != base {
		t.Error("first backoff should equal the base delay")
	}
	if CalculateBackoff(60, base, cap) != cap {
		t.Error("overflowing attempt count should return the cap")
	}
}

func TestWaitWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitWithContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := WaitWithContext(context.Background(), 0); err != nil {
		t.Errorf("zero delay should return nil, got %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 3
	cfg.FailureThreshold = 3

	breaker := NewCircuitBreaker(cfg)
	for i := 0; i < 5; i++ {
		breaker.Execute(func() (any, error) { return nil, errTransient })
	}
	if breaker.State() != gobreaker.StateOpen {
		t.Errorf("expected StateOpen, got %v", breaker.State())
	}
}

func TestExecutorWithOpenBreakerSkipsCall(t *testing.T) {
	bcfg := DefaultBreakerConfig("upstream")
	bcfg.MinRequests = 2
	bcfg.FailureThreshold = 2
	exec := NewExecutor[string](fastRetryConfig(1), &bcfg)

	for i := 0; i < 3; i++ {
		exec.Execute(context.Background(), func(context.Context) (string, error) {
			return "", errTransient
		})
	}

	called := false
	_, attempts, err := exec.Execute(context.Background(), func(context.Context) (string, error) {
		called = true
		return "ok", nil
	})
	if !IsBreakerOpen(err) {
		t.Fatalf("expected breaker-open error, got %v", err)
	}
	if called {
		t.Error("open breaker should not invoke the call")
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0 when breaker is open", attempts)
	}
}
