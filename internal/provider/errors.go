package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// StatusError is a non-2xx response from the remote API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

// Recoverable reports whether the status warrants a retry: explicit rate
// limiting and server-side failures are transient, everything else
// (auth failures, malformed requests) is not.
func (e *StatusError) Recoverable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// SchemaError is a 2xx response missing fields the gateway depends on.
// Never retried; the payload will not improve on a second attempt.
type SchemaError struct {
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("upstream response missing required field %q", e.Field)
}

// ErrNotConfigured is returned when no API credential is set.
var ErrNotConfigured = errors.New("remote API credential not configured")

// IsRecoverable classifies err for the retry executor. Timeouts, transport
// errors, and retryable statuses are recoverable; schema violations, auth
// failures, and a missing credential are not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Recoverable()
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return false
	}
	if errors.Is(err, ErrNotConfigured) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Remaining transport-level failures (connection refused, DNS) are
	// worth retrying.
	return true
}

// IsSchemaError reports whether err is a malformed-payload failure.
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}

// IsRejected reports whether the upstream rejected the request outright
// (auth or validation failure) as opposed to failing transiently.
func IsRejected(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return !statusErr.Recoverable()
	}
	return errors.Is(err, ErrNotConfigured)
}
