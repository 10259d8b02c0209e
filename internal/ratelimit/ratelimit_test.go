package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func testLimits() Limits {
	return Limits{
		RequestsPerMinute: 5,
		RequestsPerHour:   100,
		RequestsPerDay:    1000,
		TokensPerMinute:   1000,
		TokensPerHour:     10000,
		TokensPerDay:      100000,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAllowUnderCeiling(t *testing.T) {
	lim := New(testLimits())
	for i := 0; i < 5; i++ {
		if !lim.Allow(100) {
			t.Fatalf("request %d should be admitted", i)
		}
	}
	if lim.Allow(100) {
		t.Error("sixth request in the same minute should be denied")
	}
}

func TestDenialLeavesCountersUnchanged(t *testing.T) {
	lim := New(testLimits())
	for i := 0; i < 5; i++ {
		lim.Allow(100)
	}
	before := lim.Snapshot()
	lim.Allow(100)
	after := lim.Snapshot()

	if before.Minute.RequestCount != after.Minute.RequestCount {
		t.Errorf("denied request changed request count: %d -> %d",
			before.Minute.RequestCount, after.Minute.RequestCount)
	}
	if before.Minute.TokenCount != after.Minute.TokenCount {
		t.Errorf("denied request changed token count: %d -> %d",
			before.Minute.TokenCount, after.Minute.TokenCount)
	}
}

func TestTokenCeilingDeniesBeforeRequestCeiling(t *testing.T) {
	lim := New(testLimits())
	if !lim.Allow(900) {
		t.Fatal("first request should fit the token ceiling")
	}
	if lim.Allow(200) {
		t.Error("request pushing tokens past 1000/minute should be denied")
	}
	// A smaller request still fits.
	if !lim.Allow(100) {
		t.Error("request within remaining token budget should be admitted")
	}
}

func TestWindowReset(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	lim := NewWithClock(testLimits(), clock.Now)

	for i := 0; i < 5; i++ {
		lim.Allow(10)
	}
	if lim.Allow(10) {
		t.Fatal("minute ceiling should be reached")
	}

	clock.Advance(61 * time.Second)

	if !lim.Allow(10) {
		t.Error("request should be admitted after minute window reset")
	}
	snap := lim.Snapshot()
	if snap.Minute.RequestCount != 1 {
		t.Errorf("minute window should restart at 1 request, got %d", snap.Minute.RequestCount)
	}
	if snap.Hour.RequestCount != 6 {
		t.Errorf("hour window should keep accumulating, got %d", snap.Hour.RequestCount)
	}
}

func TestHourCeilingSurvivesMinuteResets(t *testing.T) {
	limits := testLimits()
	limits.RequestsPerHour = 8
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	lim := NewWithClock(limits, clock.Now)

	admitted := 0
	for i := 0; i < 4; i++ {
		for j := 0; j < 5; j++ {
			if lim.Allow(1) {
				admitted++
			}
		}
		clock.Advance(time.Minute)
	}
	if admitted != 8 {
		t.Errorf("hour ceiling 8 should cap admissions at 8, got %d", admitted)
	}
}

func TestThrottled(t *testing.T) {
	lim := New(testLimits())
	if lim.Throttled() {
		t.Error("fresh limiter should not be throttled")
	}
	for i := 0; i < 5; i++ {
		lim.Allow(10)
	}
	if !lim.Throttled() {
		t.Error("limiter at the minute request ceiling should be throttled")
	}
}

func TestConcurrentAdmissionConservation(t *testing.T) {
	limits := testLimits()
	limits.RequestsPerMinute = 10
	lim := New(limits)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lim.Allow(1) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Errorf("exactly 10 of 50 concurrent requests should be admitted, got %d", admitted)
	}
}

func TestSetLimitsAppliesImmediately(t *testing.T) {
	lim := New(testLimits())
	for i := 0; i < 5; i++ {
		lim.Allow(1)
	}
	if lim.Allow(1) {
		t.Fatal("ceiling should be reached")
	}

	limits := testLimits()
	limits.RequestsPerMinute = 20
	lim.SetLimits(limits)

	if !lim.Allow(1) {
		t.Error("raised ceiling should admit the next request")
	}
}
