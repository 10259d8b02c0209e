package metrics

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestPricingCost(t *testing.T) {
	p := Pricing{InputPer1K: 0.003, OutputPer1K: 0.015}
	got := p.Cost(1000, 2000)
	want := 0.003 + 2*0.015
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Cost = %f, want %f", got, want)
	}
}

func TestCountersAndConservation(t *testing.T) {
	a := New()
	a.RecordOutcome(Outcome{Success: true, CacheHit: false, LatencyMs: 100, Cost: 0.01, Tokens: 50})
	a.RecordOutcome(Outcome{Success: true, CacheHit: true, LatencyMs: 1})
	a.RecordOutcome(Outcome{Fallback: true, CacheHit: false, LatencyMs: 2, ErrorKind: "RATE_LIMITED"})
	a.RecordOutcome(Outcome{CacheHit: false, LatencyMs: 300, ErrorKind: "UPSTREAM_UNAVAILABLE"})

	s := a.Snapshot()
	if s.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d", s.TotalRequests)
	}
	if s.SuccessfulRequests+s.FailedRequests+s.FallbackRequests > s.TotalRequests {
		t.Error("outcome counters exceed total requests")
	}
	if s.CacheHits+s.CacheMisses != s.TotalRequests {
		t.Errorf("hits+misses = %d, want %d", s.CacheHits+s.CacheMisses, s.TotalRequests)
	}
	if s.SuccessfulRequests != 2 || s.FallbackRequests != 1 || s.FailedRequests != 1 {
		t.Errorf("outcome split = %d/%d/%d", s.SuccessfulRequests, s.FallbackRequests, s.FailedRequests)
	}
	if s.ErrorCounts["RATE_LIMITED"] != 1 || s.ErrorCounts["UPSTREAM_UNAVAILABLE"] != 1 {
		t.Errorf("error counts = %v", s.ErrorCounts)
	}
}

func TestIncrementalAverageLatency(t *testing.T) {
	a := New()
	latencies := []int64{100, 200, 300, 400}
	for _, l := range latencies {
		a.RecordOutcome(Outcome{Success: true, LatencyMs: l})
	}
	s := a.Snapshot()
	if math.Abs(s.AvgResponseTimeMs-250) > 1e-9 {
		t.Errorf("AvgResponseTimeMs = %f, want 250", s.AvgResponseTimeMs)
	}
}

func TestDerivedRates(t *testing.T) {
	a := New()
	a.RecordOutcome(Outcome{Success: true, CacheHit: true})
	a.RecordOutcome(Outcome{Success: true, CacheHit: false})
	a.RecordOutcome(Outcome{Fallback: true, CacheHit: false})
	a.RecordOutcome(Outcome{CacheHit: false})

	s := a.Snapshot()
	if math.Abs(s.CacheHitRate-0.25) > 1e-9 {
		t.Errorf("CacheHitRate = %f", s.CacheHitRate)
	}
	if math.Abs(s.SuccessRate-0.5) > 1e-9 {
		t.Errorf("SuccessRate = %f", s.SuccessRate)
	}
	if math.Abs(s.FallbackRate-0.25) > 1e-9 {
		t.Errorf("FallbackRate = %f", s.FallbackRate)
	}
}

func TestDailyCostResetOnCalendarBoundary(t *testing.T) {
	current := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	a := NewWithClock(clock)

	a.RecordOutcome(Outcome{Success: true, Cost: 1.0})
	s := a.Snapshot()
	if s.DailyCost != 1.0 || s.MonthlyCost != 1.0 {
		t.Fatalf("daily/monthly = %f/%f", s.DailyCost, s.MonthlyCost)
	}
	if s.ProjectedMonthly != 30.0 || s.ProjectedYearly != 365.0 {
		t.Errorf("projections = %f/%f", s.ProjectedMonthly, s.ProjectedYearly)
	}

	// Crossing midnight also crosses the month boundary here.
	mu.Lock()
	current = time.Date(2026, 4, 1, 0, 30, 0, 0, time.UTC)
	mu.Unlock()

	a.RecordOutcome(Outcome{Success: true, Cost: 0.25})
	s = a.Snapshot()
	if s.DailyCost != 0.25 {
		t.Errorf("DailyCost = %f, want reset to 0.25", s.DailyCost)
	}
	if s.MonthlyCost != 0.25 {
		t.Errorf("MonthlyCost = %f, want reset to 0.25", s.MonthlyCost)
	}
	if s.TotalCost != 1.25 {
		t.Errorf("TotalCost = %f, must never reset", s.TotalCost)
	}
}

func TestAdvisories(t *testing.T) {
	a := New()
	for i := 0; i < 60; i++ {
		a.RecordOutcome(Outcome{Success: true, CacheHit: false, Cost: 0.5, LatencyMs: 20000})
	}
	s := a.Snapshot()
	if len(s.Advisories) == 0 {
		t.Fatal("expensive slow traffic should produce advisories")
	}
}

func TestConcurrentRecording(t *testing.T) {
	a := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				a.RecordOutcome(Outcome{Success: true, CacheHit: j%2 == 0, LatencyMs: 10, Tokens: 5})
			}
		}()
	}
	wg.Wait()

	s := a.Snapshot()
	if s.TotalRequests != 1000 {
		t.Errorf("TotalRequests = %d, want 1000", s.TotalRequests)
	}
	if s.CacheHits+s.CacheMisses != 1000 {
		t.Error("hit/miss classification lost records under concurrency")
	}
	if s.TotalTokens != 5000 {
		t.Errorf("TotalTokens = %d, want 5000", s.TotalTokens)
	}
}
