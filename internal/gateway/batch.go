package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	log "github.com/fleetflow/freight-ai/internal/logging"
)

// GenerateBatch processes requests with bounded parallelism. At most
// concurrencyLimit remote attempts are in flight at once (zero or negative
// falls back to the configured limit), and dispatches are spaced by the
// configured delay to stay friendly to upstream ceilings. The result slice
// preserves request order.
func (g *Gateway) GenerateBatch(ctx context.Context, requests []Request, concurrencyLimit int) ([]Envelope, BatchSummary) {
	limit, delay := g.batchSettings()
	if concurrencyLimit > 0 {
		limit = concurrencyLimit
	}

	results := make([]Envelope, len(requests))
	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup

	for i, req := range requests {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled mid-batch: resolve the remainder as
			// explicit failures rather than dropping them.
			for j := i; j < len(requests); j++ {
				results[j] = g.failureEnvelope("", g.now(), 0, ErrUpstreamUnavailable,
					"batch cancelled: "+err.Error())
			}
			break
		}

		wg.Add(1)
		go func(idx int, r Request) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = g.Generate(ctx, r)
		}(i, req)

		if delay > 0 && i < len(requests)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}
	wg.Wait()

	summary := BatchSummary{Total: len(requests)}
	for _, env := range results {
		switch {
		case env.Source == SourceFallback:
			summary.Fallback++
		case env.Success:
			summary.Successful++
		default:
			summary.Failed++
		}
		summary.TotalCost += envelopeSpend(env)
	}
	log.Infof("gateway: batch complete total=%d ok=%d fallback=%d failed=%d cost=$%.4f",
		summary.Total, summary.Successful, summary.Fallback, summary.Failed, summary.TotalCost)
	return results, summary
}

// envelopeSpend returns the actual spend attributable to an envelope: cache
// hits and fallbacks cost nothing new.
func envelopeSpend(env Envelope) float64 {
	if env.Source == SourceRemote && env.Success {
		return env.CostEstimate
	}
	return 0
}
