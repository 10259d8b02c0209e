package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetflow/freight-ai/internal/buildinfo"
	"github.com/fleetflow/freight-ai/internal/gateway"
	log "github.com/fleetflow/freight-ai/internal/logging"
	"github.com/fleetflow/freight-ai/internal/usage"
)

// maxBatchRequests bounds a single batch call.
const maxBatchRequests = 50

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	gw            *gateway.Gateway
	usage         usage.Backend
	retentionDays int
}

// NewHandler builds the endpoint handler. usageBackend may be nil when
// persistence is disabled.
func NewHandler(gw *gateway.Gateway, usageBackend usage.Backend, retentionDays int) *Handler {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Handler{gw: gw, usage: usageBackend, retentionDays: retentionDays}
}

// Generate handles POST /v1/generate.
func (h *Handler) Generate(c *gin.Context) {
	var req gateway.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		respondBadRequest(c, "prompt is required")
		return
	}

	env := h.gw.Generate(c.Request.Context(), req)
	respondOK(c, env)
}

// batchRequest is the POST /v1/generate/batch body. A zero ConcurrencyLimit
// uses the configured batch concurrency.
type batchRequest struct {
	Requests         []gateway.Request `json:"requests"`
	ConcurrencyLimit int               `json:"concurrency-limit"`
}

// batchResponse pairs per-request envelopes with the aggregate summary.
type batchResponse struct {
	Results []gateway.Envelope   `json:"results"`
	Summary gateway.BatchSummary `json:"summary"`
}

// GenerateBatch handles POST /v1/generate/batch.
func (h *Handler) GenerateBatch(c *gin.Context) {
	var body batchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if len(body.Requests) == 0 {
		respondBadRequest(c, "requests must not be empty")
		return
	}
	if len(body.Requests) > maxBatchRequests {
		respondBadRequest(c, "too many requests in one batch")
		return
	}
	for i, req := range body.Requests {
		if req.Prompt == "" {
			respondBadRequest(c, "request "+strconv.Itoa(i)+" is missing a prompt")
			return
		}
	}

	results, summary := h.gw.GenerateBatch(c.Request.Context(), body.Requests, body.ConcurrencyLimit)
	respondOK(c, batchResponse{Results: results, Summary: summary})
}

// Status handles GET /v1/status.
func (h *Handler) Status(c *gin.Context) {
	respondOK(c, h.gw.Status())
}

// Health handles GET /v1/health. Unhealthy gateways answer 503 so load
// balancers can act on the status code alone.
func (h *Handler) Health(c *gin.Context) {
	report := h.gw.HealthCheck(c.Request.Context())
	if !report.Healthy {
		c.JSON(http.StatusServiceUnavailable, APIResponse{
			Data: report,
			Meta: apiMeta(),
		})
		return
	}
	respondOK(c, report)
}

// ClearCache handles DELETE /v1/cache.
func (h *Handler) ClearCache(c *gin.Context) {
	before := h.gw.CacheLen()
	h.gw.ClearCache()
	respondOK(c, gin.H{"cleared-entries": before})
}

// usageResponse is the GET /v1/usage body.
type usageResponse struct {
	Enabled       bool                   `json:"enabled"`
	RetentionDays int                    `json:"retention-days,omitempty"`
	Summary       *usage.AggregatedStats `json:"summary,omitempty"`
	Daily         []usage.DailyStats     `json:"daily,omitempty"`
}

// Usage handles GET /v1/usage.
func (h *Handler) Usage(c *gin.Context) {
	if h.usage == nil {
		respondOK(c, usageResponse{Enabled: false})
		return
	}

	ctx := c.Request.Context()
	since := time.Now().AddDate(0, 0, -h.retentionDays)

	summary, err := h.usage.QueryGlobalStats(ctx, since)
	if err != nil {
		log.Warnf("api: usage summary query failed: %v", err)
		respondInternalError(c, "usage statistics unavailable")
		return
	}

	resp := usageResponse{
		Enabled:       true,
		RetentionDays: h.retentionDays,
		Summary:       summary,
	}
	if daily, err := h.usage.QueryDailyStats(ctx, since); err != nil {
		log.Warnf("api: usage daily query failed: %v", err)
	} else {
		resp.Daily = daily
	}
	respondOK(c, resp)
}

func apiMeta() APIMeta {
	return APIMeta{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   buildinfo.Version,
	}
}
