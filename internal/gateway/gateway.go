// Package gateway orchestrates the resilient AI-request pipeline: cache
// check, rate-limit admission, retried remote attempt, cache write, and
// metrics accounting. Every request terminates in a well-formed Envelope;
// Generate never panics and never hangs past the attempt timeouts.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetflow/freight-ai/internal/cache"
	"github.com/fleetflow/freight-ai/internal/config"
	"github.com/fleetflow/freight-ai/internal/fallback"
	"github.com/fleetflow/freight-ai/internal/json"
	log "github.com/fleetflow/freight-ai/internal/logging"
	"github.com/fleetflow/freight-ai/internal/metrics"
	"github.com/fleetflow/freight-ai/internal/provider"
	"github.com/fleetflow/freight-ai/internal/ratelimit"
	"github.com/fleetflow/freight-ai/internal/resilience"
	"github.com/fleetflow/freight-ai/internal/tokenizer"
	"github.com/fleetflow/freight-ai/internal/usage"
)

// defaultMaxTokens applies when a request does not set a completion ceiling.
const defaultMaxTokens = 1024

// healthProbePrompt is the minimal prompt used by HealthCheck.
const healthProbePrompt = "Reply with the single word OK."

// Remote is the outbound completion client. provider.Client implements it;
// tests substitute mocks.
type Remote interface {
	Complete(ctx context.Context, req provider.Request) (provider.Result, error)
	IsConfigured() bool
	Model() string
}

// Options wires a Gateway together. Remote is required; everything else
// falls back to configured defaults.
type Options struct {
	Config *config.Config
	Remote Remote

	// Usage receives one record per terminal outcome; nil disables
	// persistence.
	Usage usage.Backend

	// DisableBreaker turns off the circuit breaker; tests use it to
	// exercise pure retry behavior.
	DisableBreaker bool

	// Now overrides the clock for deterministic tests.
	Now func() time.Time
}

// Gateway is the process-wide request mediator. A single instance serves all
// concurrent callers; construct once at composition root.
type Gateway struct {
	remote     Remote
	limiter    *ratelimit.Limiter
	cache      *cache.Cache
	executor   *resilience.Executor[provider.Result]
	accountant *metrics.Accountant
	usage      usage.Backend
	tracer     trace.Tracer
	now        func() time.Time

	mu              sync.RWMutex
	pricing         metrics.Pricing
	fallbackDefault bool
	cacheTTL        time.Duration
	batchLimit      int
	batchDelay      time.Duration
}

// New builds a gateway from opts. Call Start to launch the cache sweep and
// Stop on shutdown.
func New(opts Options) *Gateway {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	limits := cfg.RateLimits.Normalized()
	limiter := ratelimit.NewWithClock(ratelimit.Limits{
		RequestsPerMinute: limits.RequestsPerMinute,
		RequestsPerHour:   limits.RequestsPerHour,
		RequestsPerDay:    limits.RequestsPerDay,
		TokensPerMinute:   limits.TokensPerMinute,
		TokensPerHour:     limits.TokensPerHour,
		TokensPerDay:      limits.TokensPerDay,
	}, now)

	respCache := cache.New(cache.Options{
		MaxEntries:    cfg.Cache.Bound(),
		DefaultTTL:    cfg.Cache.TTLDuration(),
		SweepInterval: cfg.Cache.SweepIntervalDuration(),
		Now:           now,
	})

	retryCfg := resilience.RetryConfig{
		MaxAttempts:   cfg.Retry.Attempts(),
		BaseDelay:     cfg.Retry.BaseDelayDuration(),
		MaxDelay:      cfg.Retry.MaxDelayDuration(),
		IsRecoverable: provider.IsRecoverable,
	}
	var breakerCfg *resilience.BreakerConfig
	if !opts.DisableBreaker {
		bc := resilience.DefaultBreakerConfig("remote-ai")
		bc.IsSuccessful = func(err error) bool {
			return err == nil || !provider.IsRecoverable(err)
		}
		breakerCfg = &bc
	}

	pricing := cfg.Pricing.Normalized()
	return &Gateway{
		remote:          opts.Remote,
		limiter:         limiter,
		cache:           respCache,
		executor:        resilience.NewExecutor[provider.Result](retryCfg, breakerCfg),
		accountant:      metrics.NewWithClock(now),
		usage:           opts.Usage,
		tracer:          otel.Tracer("freight-ai/gateway"),
		now:             now,
		pricing:         metrics.Pricing{InputPer1K: pricing.InputPer1K, OutputPer1K: pricing.OutputPer1K},
		fallbackDefault: cfg.FallbackDefault(),
		cacheTTL:        cfg.Cache.TTLDuration(),
		batchLimit:      cfg.Batch.ConcurrencyLimit(),
		batchDelay:      cfg.Batch.DelayDuration(),
	}
}

// Start launches background workers (cache sweep).
func (g *Gateway) Start() { g.cache.Start() }

// Stop terminates background workers. Safe to call more than once.
func (g *Gateway) Stop() { g.cache.Stop() }

// Generate runs one request through the full pipeline and always returns a
// terminal envelope: remote success, cached response, synthesized fallback,
// or an explicit failure. It never panics.
func (g *Gateway) Generate(ctx context.Context, req Request) (env Envelope) {
	requestID := uuid.NewString()
	start := g.now()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("gateway: recovered panic in Generate: %v", r)
			env = g.failureEnvelope(requestID, start, 0, ErrUpstreamUnavailable,
				fmt.Sprintf("internal error: %v", r))
			g.record(env, start, false)
		}
	}()

	ctx, span := g.tracer.Start(ctx, "gateway.Generate")
	defer span.End()

	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if req.Urgency == "" {
		req.Urgency = UrgencyNormal
	}

	fp := cache.Fingerprint(req.Prompt, req.Context, req.MaxTokens, req.Temperature)

	if entry, ok := g.cache.Get(fp); ok {
		env = entryToEnvelope(requestID, entry, g.sinceMs(start))
		span.SetAttributes(attribute.String("source", string(env.Source)))
		g.record(env, start, true)
		return env
	}

	prompt := promptWithContext(req)
	estimated := tokenizer.EstimateRequest(prompt, req.MaxTokens)
	if !g.limiter.Allow(estimated) {
		env = g.degrade(requestID, req, start, 0, ErrRateLimited,
			"request denied by local rate limits")
		span.SetAttributes(attribute.String("source", string(env.Source)))
		g.record(env, start, false)
		return env
	}

	result, attempts, err := g.executor.Execute(ctx, func(ctx context.Context) (provider.Result, error) {
		return g.remote.Complete(ctx, provider.Request{
			Prompt:      prompt,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		})
	})
	span.SetAttributes(attribute.Int("attempts", attempts))

	if err != nil {
		kind := classify(err)
		log.WithError(err).Warnf("gateway: remote attempt failed after %d attempts (%s)", attempts, kind)
		env = g.degrade(requestID, req, start, attempts, kind, err.Error())
		span.SetAttributes(attribute.String("source", string(env.Source)))
		g.record(env, start, false)
		return env
	}

	cost := g.currentPricing().Cost(result.InputTokens, result.OutputTokens)
	g.cache.Put(fp, result.Content, cost, result.TotalTokens(), g.currentTTL())

	env = Envelope{
		Success:      true,
		Content:      result.Content,
		CostEstimate: cost,
		TokensUsed:   result.TotalTokens(),
		LatencyMs:    g.sinceMs(start),
		Source:       SourceRemote,
		RetryCount:   attempts,
		RequestID:    requestID,
	}
	span.SetAttributes(attribute.String("source", string(env.Source)))
	g.record(env, start, false)
	return env
}

// degrade resolves a failed or denied request into either a synthesized
// fallback or an explicit failure, honoring the request's fallback flag.
func (g *Gateway) degrade(requestID string, req Request, start time.Time, attempts int, kind ErrorKind, errMsg string) Envelope {
	if g.fallbackAllowed(req) {
		category, content := fallback.Synthesize(req.Prompt)
		log.Debugf("gateway: serving %s fallback (%s)", category, kind)
		return Envelope{
			Success:      true,
			Content:      content,
			ErrorKind:    kind,
			CostEstimate: 0,
			LatencyMs:    g.sinceMs(start),
			Source:       SourceFallback,
			RetryCount:   attempts,
			RequestID:    requestID,
		}
	}
	return g.failureEnvelope(requestID, start, attempts, kind, errMsg)
}

func (g *Gateway) failureEnvelope(requestID string, start time.Time, attempts int, kind ErrorKind, errMsg string) Envelope {
	return Envelope{
		Success:    false,
		ErrorKind:  kind,
		Error:      errMsg,
		LatencyMs:  g.sinceMs(start),
		Source:     SourceRemote,
		RetryCount: attempts,
		RequestID:  requestID,
	}
}

// record folds the terminal envelope into the accountant and the usage
// backend. Called exactly once per request.
func (g *Gateway) record(env Envelope, start time.Time, cacheHit bool) {
	outcome := metrics.Outcome{
		Success:   env.Success && env.Source != SourceFallback,
		Fallback:  env.Source == SourceFallback,
		CacheHit:  cacheHit,
		LatencyMs: env.LatencyMs,
		Tokens:    env.TokensUsed,
		ErrorKind: string(env.ErrorKind),
	}
	// A cache hit spends nothing; only fresh remote calls accrue cost.
	if env.Source == SourceRemote && env.Success {
		outcome.Cost = env.CostEstimate
	}
	g.accountant.RecordOutcome(outcome)

	if g.usage != nil {
		g.usage.Enqueue(usage.Record{
			RequestID:   env.RequestID,
			Source:      string(env.Source),
			ErrorKind:   string(env.ErrorKind),
			RequestedAt: start,
			Failed:      !env.Success,
			Tokens:      env.TokensUsed,
			Cost:        outcome.Cost,
			LatencyMs:   env.LatencyMs,
		})
	}
}

// promptWithContext renders the outbound prompt: the request prompt plus the
// structured context, serialized canonically so the remote model sees it and
// the admission estimate charges for it.
func promptWithContext(req Request) string {
	if len(req.Context) == 0 {
		return req.Prompt
	}
	data, err := json.MarshalCanonical(req.Context)
	if err != nil {
		return req.Prompt
	}
	return req.Prompt + "\n\nContext:\n" + string(data)
}

// classify maps a terminal remote error onto the envelope taxonomy.
func classify(err error) ErrorKind {
	switch {
	case provider.IsSchemaError(err):
		return ErrInvalidResponseSchema
	case provider.IsRejected(err):
		return ErrUpstreamRejected
	default:
		return ErrUpstreamUnavailable
	}
}

// Status returns a read-only operational snapshot.
func (g *Gateway) Status() StatusSnapshot {
	snap := StatusSnapshot{
		Configured: g.remote.IsConfigured(),
		Model:      g.remote.Model(),
		RateLimits: g.limiter.Snapshot(),
		CacheSize:  g.cache.Len(),
		Metrics:    g.accountant.Snapshot(),
	}
	if b := g.executor.Breaker(); b != nil {
		snap.Breaker = b.State().String()
	}
	return snap
}

// HealthCheck probes the remote API with a minimal prompt, fallback disabled.
// The probe bypasses the cache and is not folded into request metrics.
func (g *Gateway) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{
		Configured: g.remote.IsConfigured(),
		Throttled:  g.limiter.Throttled(),
	}
	if !report.Configured || report.Throttled {
		return report
	}

	start := g.now()
	_, err := g.remote.Complete(ctx, provider.Request{
		Prompt:    healthProbePrompt,
		MaxTokens: 8,
	})
	report.LatencyMs = g.sinceMs(start)
	if err != nil {
		report.ProbeError = err.Error()
		return report
	}
	report.Healthy = true
	return report
}

// ClearCache empties the response cache immediately.
func (g *Gateway) ClearCache() {
	g.cache.Clear()
	log.Infof("gateway: response cache cleared")
}

// CacheLen returns the current cache entry count.
func (g *Gateway) CacheLen() int { return g.cache.Len() }

// Metrics returns the current accounting snapshot.
func (g *Gateway) Metrics() metrics.Snapshot { return g.accountant.Snapshot() }

// SetRateLimits replaces the admission ceilings at runtime.
func (g *Gateway) SetRateLimits(l ratelimit.Limits) { g.limiter.SetLimits(l) }

// SetCacheBounds updates the cache entry bound and default TTL at runtime.
func (g *Gateway) SetCacheBounds(maxEntries int, ttl time.Duration) {
	g.cache.SetBounds(maxEntries, ttl)
	if ttl > 0 {
		g.mu.Lock()
		g.cacheTTL = ttl
		g.mu.Unlock()
	}
}

// SetPricing updates per-1K-token prices at runtime.
func (g *Gateway) SetPricing(p metrics.Pricing) {
	g.mu.Lock()
	g.pricing = p
	g.mu.Unlock()
}

// SetFallbackDefault updates the gateway-wide fallback flag at runtime.
func (g *Gateway) SetFallbackDefault(allowed bool) {
	g.mu.Lock()
	g.fallbackDefault = allowed
	g.mu.Unlock()
}

// SetBatchLimits updates batch concurrency and inter-dispatch delay.
func (g *Gateway) SetBatchLimits(concurrency int, delay time.Duration) {
	g.mu.Lock()
	if concurrency > 0 {
		g.batchLimit = concurrency
	}
	if delay >= 0 {
		g.batchDelay = delay
	}
	g.mu.Unlock()
}

func (g *Gateway) fallbackAllowed(req Request) bool {
	if req.FallbackAllowed != nil {
		return *req.FallbackAllowed
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fallbackDefault
}

func (g *Gateway) currentPricing() metrics.Pricing {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pricing
}

func (g *Gateway) currentTTL() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cacheTTL
}

func (g *Gateway) batchSettings() (int, time.Duration) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.batchLimit, g.batchDelay
}

func (g *Gateway) sinceMs(start time.Time) int64 {
	ms := g.now().Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
