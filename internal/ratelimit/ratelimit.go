// Package ratelimit enforces request and token ceilings over rolling
// minute/hour/day windows. The limiter answers admission questions only; it
// never returns errors and callers decide whether to fall back or refuse.
package ratelimit

import (
	"sync"
	"time"
)

// Limits holds the six admission ceilings. Zero values are treated as
// "no requests admitted", so callers should pass normalized values.
type Limits struct {
	RequestsPerMinute int64
	RequestsPerHour   int64
	RequestsPerDay    int64
	TokensPerMinute   int64
	TokensPerHour     int64
	TokensPerDay      int64
}

// WindowSnapshot is a read-only view of one window's counters.
type WindowSnapshot struct {
	Name         string    `json:"name"`
	RequestCount int64     `json:"request-count"`
	TokenCount   int64     `json:"token-count"`
	RequestLimit int64     `json:"request-limit"`
	TokenLimit   int64     `json:"token-limit"`
	WindowStart  time.Time `json:"window-start"`
}

// Snapshot is a read-only view of the whole limiter.
type Snapshot struct {
	Minute    WindowSnapshot `json:"minute"`
	Hour      WindowSnapshot `json:"hour"`
	Day       WindowSnapshot `json:"day"`
	Throttled bool           `json:"throttled"`
}

type window struct {
	name        string
	duration    time.Duration
	requests    int64
	tokens      int64
	start       time.Time
	maxRequests int64
	maxTokens   int64
}

// resetIfElapsed zeroes the counters and advances the window start when the
// window duration has passed.
func (w *window) resetIfElapsed(now time.Time) {
	if now.Sub(w.start) >= w.duration {
		w.requests = 0
		w.tokens = 0
		w.start = now
	}
}

// wouldExceed reports whether admitting one request with tok tokens would
// push either counter past its ceiling.
func (w *window) wouldExceed(tok int64) bool {
	return w.requests+1 > w.maxRequests || w.tokens+tok > w.maxTokens
}

// Limiter tracks consumption across the three windows. Safe for concurrent
// use; admission check and counter commit happen under one lock so two
// callers can never both claim the last slot.
type Limiter struct {
	mu      sync.Mutex
	windows [3]window
	now     func() time.Time
}

// New returns a limiter with the given ceilings using wall-clock time.
func New(l Limits) *Limiter {
	return NewWithClock(l, time.Now)
}

// NewWithClock returns a limiter with an injected clock. Tests use this to
// drive window resets deterministically.
func NewWithClock(l Limits, now func() time.Time) *Limiter {
	start := now()
	lim := &Limiter{now: now}
	lim.windows = [3]window{
		{name: "minute", duration: time.Minute, start: start},
		{name: "hour", duration: time.Hour, start: start},
		{name: "day", duration: 24 * time.Hour, start: start},
	}
	lim.applyLimits(l)
	return lim
}

func (l *Limiter) applyLimits(limits Limits) {
	l.windows[0].maxRequests = limits.RequestsPerMinute
	l.windows[0].maxTokens = limits.TokensPerMinute
	l.windows[1].maxRequests = limits.RequestsPerHour
	l.windows[1].maxTokens = limits.TokensPerHour
	l.windows[2].maxRequests = limits.RequestsPerDay
	l.windows[2].maxTokens = limits.TokensPerDay
}

// SetLimits replaces the ceilings at runtime. Counters are preserved; the new
// ceilings apply from the next admission check.
func (l *Limiter) SetLimits(limits Limits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyLimits(limits)
}

// Allow decides admission for a request expected to consume estimatedTokens.
// Elapsed windows are reset first. On admission all six counters are
// incremented together; a denial leaves every counter untouched.
func (l *Limiter) Allow(estimatedTokens int) bool {
	tok := int64(estimatedTokens)
	if tok < 0 {
		tok = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for i := range l.windows {
		l.windows[i].resetIfElapsed(now)
	}
	for i := range l.windows {
		if l.windows[i].wouldExceed(tok) {
			return false
		}
	}
	for i := range l.windows {
		l.windows[i].requests++
		l.windows[i].tokens += tok
	}
	return true
}

// Throttled reports whether any window has met or exceeded a ceiling. Elapsed
// windows are reset before the check, so a stale window never reads as
// throttled.
func (l *Limiter) Throttled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for i := range l.windows {
		l.windows[i].resetIfElapsed(now)
	}
	for i := range l.windows {
		w := &l.windows[i]
		if w.requests >= w.maxRequests || w.tokens >= w.maxTokens {
			return true
		}
	}
	return false
}

// Snapshot returns the current counters for status reporting.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for i := range l.windows {
		l.windows[i].resetIfElapsed(now)
	}

	views := [3]WindowSnapshot{}
	throttled := false
	for i := range l.windows {
		w := &l.windows[i]
		views[i] = WindowSnapshot{
			Name:         w.name,
			RequestCount: w.requests,
			TokenCount:   w.tokens,
			RequestLimit: w.maxRequests,
			TokenLimit:   w.maxTokens,
			WindowStart:  w.start,
		}
		if w.requests >= w.maxRequests || w.tokens >= w.maxTokens {
			throttled = true
		}
	}
	return Snapshot{Minute: views[0], Hour: views[1], Day: views[2], Throttled: throttled}
}
