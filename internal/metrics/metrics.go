// Package metrics aggregates per-request outcomes into gateway-wide cost and
// health counters. Counters are monotonic for the process lifetime except the
// daily and monthly cost buckets, which reset when the calendar boundary is
// crossed. The running latency average is maintained incrementally, never
// recomputed from history.
package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Pricing holds per-1K-token prices in USD.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Cost returns the USD cost of a call with the given token split.
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*p.InputPer1K + float64(outputTokens)/1000*p.OutputPer1K
}

// Outcome is the terminal result of one request. Exactly one of Success,
// Fallback, or Failed (the implicit third state) applies, and exactly one of
// CacheHit / cache miss.
type Outcome struct {
	Success   bool
	Fallback  bool
	CacheHit  bool
	LatencyMs int64
	Cost      float64
	Tokens    int
	ErrorKind string
}

// Snapshot is a read-only view of the accumulated metrics.
type Snapshot struct {
	TotalRequests      int64            `json:"total-requests"`
	SuccessfulRequests int64            `json:"successful-requests"`
	FailedRequests     int64            `json:"failed-requests"`
	FallbackRequests   int64            `json:"fallback-requests"`
	CacheHits          int64            `json:"cache-hits"`
	CacheMisses        int64            `json:"cache-misses"`
	TotalCost          float64          `json:"total-cost"`
	TotalTokens        int64            `json:"total-tokens"`
	AvgResponseTimeMs  float64          `json:"avg-response-time-ms"`
	DailyCost          float64          `json:"daily-cost"`
	MonthlyCost        float64          `json:"monthly-cost"`
	CacheHitRate       float64          `json:"cache-hit-rate"`
	SuccessRate        float64          `json:"success-rate"`
	FallbackRate       float64          `json:"fallback-rate"`
	ProjectedMonthly   float64          `json:"projected-monthly-cost"`
	ProjectedYearly    float64          `json:"projected-yearly-cost"`
	ErrorCounts        map[string]int64 `json:"error-counts,omitempty"`
	Advisories         []string         `json:"advisories,omitempty"`
}

// Accountant accumulates outcomes. Safe for concurrent use; reads observe
// every previously recorded outcome.
type Accountant struct {
	mu sync.Mutex

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	fallbackRequests   int64
	cacheHits          int64
	cacheMisses        int64

	totalCost   float64
	totalTokens int64
	avgLatency  float64

	dailyCost   float64
	monthlyCost float64
	dayBucket   string
	monthBucket string

	errorCounts map[string]int64

	now func() time.Time
}

// New returns an accountant using wall-clock time.
func New() *Accountant {
	return NewWithClock(time.Now)
}

// NewWithClock returns an accountant with an injected clock for tests.
func NewWithClock(now func() time.Time) *Accountant {
	t := now()
	return &Accountant{
		dayBucket:   t.Format("2006-01-02"),
		monthBucket: t.Format("2006-01"),
		errorCounts: make(map[string]int64),
		now:         now,
	}
}

// RecordOutcome folds one terminal request outcome into the counters. Callers
// must invoke it exactly once per request, never per attempt.
func (a *Accountant) RecordOutcome(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if day := now.Format("2006-01-02"); day != a.dayBucket {
		a.dayBucket = day
		a.dailyCost = 0
	}
	if month := now.Format("2006-01"); month != a.monthBucket {
		a.monthBucket = month
		a.monthlyCost = 0
	}

	a.totalRequests++
	switch {
	case o.Fallback:
		a.fallbackRequests++
	case o.Success:
		a.successfulRequests++
	default:
		a.failedRequests++
	}
	if o.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if o.ErrorKind != "" {
		a.errorCounts[o.ErrorKind]++
	}

	a.totalCost += o.Cost
	a.dailyCost += o.Cost
	a.monthlyCost += o.Cost
	a.totalTokens += int64(o.Tokens)

	a.avgLatency += (float64(o.LatencyMs) - a.avgLatency) / float64(a.totalRequests)
}

// Snapshot returns the current counters plus derived rates, projections, and
// advisories.
func (a *Accountant) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		TotalRequests:      a.totalRequests,
		SuccessfulRequests: a.successfulRequests,
		FailedRequests:     a.failedRequests,
		FallbackRequests:   a.fallbackRequests,
		CacheHits:          a.cacheHits,
		CacheMisses:        a.cacheMisses,
		TotalCost:          a.totalCost,
		TotalTokens:        a.totalTokens,
		AvgResponseTimeMs:  a.avgLatency,
		DailyCost:          a.dailyCost,
		MonthlyCost:        a.monthlyCost,
		ProjectedMonthly:   a.dailyCost * 30,
		ProjectedYearly:    a.dailyCost * 365,
	}
	if lookups := a.cacheHits + a.cacheMisses; lookups > 0 {
		snap.CacheHitRate = float64(a.cacheHits) / float64(lookups)
	}
	if a.totalRequests > 0 {
		snap.SuccessRate = float64(a.successfulRequests) / float64(a.totalRequests)
		snap.FallbackRate = float64(a.fallbackRequests) / float64(a.totalRequests)
	}
	if len(a.errorCounts) > 0 {
		snap.ErrorCounts = make(map[string]int64, len(a.errorCounts))
		for k, v := range a.errorCounts {
			snap.ErrorCounts[k] = v
		}
	}
	snap.Advisories = advisories(snap)
	return snap
}

// Advisory thresholds. Informational only; nothing here blocks traffic.
const (
	advisoryCostPerRequest = 0.10
	advisoryMinSample      = 50
	advisoryHitRateFloor   = 0.20
	advisoryFallbackCeil   = 0.30
	advisoryLatencyCeilMs  = 10000
)

func advisories(s Snapshot) []string {
	var out []string
	if s.TotalRequests >= advisoryMinSample {
		if avg := s.TotalCost / float64(s.TotalRequests); avg > advisoryCostPerRequest {
			out = append(out, fmt.Sprintf(
				"average cost per request is $%.4f; consider reducing max-tokens or shortening prompts", avg))
		}
		if s.CacheHitRate < advisoryHitRateFloor {
			out = append(out, fmt.Sprintf(
				"cache hit rate is %.0f%%; normalize prompts so repeated questions share a fingerprint", s.CacheHitRate*100))
		}
	}
	if s.TotalRequests > 0 && s.FallbackRate > advisoryFallbackCeil {
		out = append(out, fmt.Sprintf(
			"%.0f%% of requests fell back to local synthesis; check upstream credentials and status", s.FallbackRate*100))
	}
	if s.AvgResponseTimeMs > advisoryLatencyCeilMs {
		out = append(out, fmt.Sprintf(
			"average response time is %.0fms; consider a smaller model or lower max-tokens", s.AvgResponseTimeMs))
	}
	return out
}
