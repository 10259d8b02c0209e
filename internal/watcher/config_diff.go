package watcher

import (
	"fmt"
	"strings"

	"github.com/fleetflow/freight-ai/internal/config"
)

// buildConfigChangeDetails computes a redacted, human-readable list of config
// changes. Secrets are never printed; only their presence transitions are.
func buildConfigChangeDetails(oldCfg, newCfg *config.Config) []string {
	changes := make([]string, 0, 16)
	if oldCfg == nil || newCfg == nil {
		return changes
	}

	// Credential transitions, redacted.
	oldKey := strings.TrimSpace(oldCfg.APIKey)
	newKey := strings.TrimSpace(newCfg.APIKey)
	switch {
	case oldKey == "" && newKey != "":
		changes = append(changes, "api-key: added (restart required)")
	case oldKey != "" && newKey == "":
		changes = append(changes, "api-key: removed (restart required)")
	case oldKey != newKey:
		changes = append(changes, "api-key: updated (restart required)")
	}

	if oldCfg.BaseURL != newCfg.BaseURL {
		changes = append(changes, fmt.Sprintf("base-url: %s -> %s (restart required)", oldCfg.BaseURL, newCfg.BaseURL))
	}
	if oldCfg.Model != newCfg.Model {
		changes = append(changes, fmt.Sprintf("model: %s -> %s (restart required)", oldCfg.Model, newCfg.Model))
	}
	if oldCfg.Port != newCfg.Port {
		changes = append(changes, fmt.Sprintf("port: %d -> %d (restart required)", oldCfg.Port, newCfg.Port))
	}
	if oldCfg.Debug != newCfg.Debug {
		changes = append(changes, fmt.Sprintf("debug: %t -> %t", oldCfg.Debug, newCfg.Debug))
	}
	if oldCfg.LoggingToFile != newCfg.LoggingToFile {
		changes = append(changes, fmt.Sprintf("logging-to-file: %t -> %t (restart required)", oldCfg.LoggingToFile, newCfg.LoggingToFile))
	}
	if oldCfg.FallbackDefault() != newCfg.FallbackDefault() {
		changes = append(changes, fmt.Sprintf("fallback-allowed: %t -> %t", oldCfg.FallbackDefault(), newCfg.FallbackDefault()))
	}
	if oldCfg.RequestTimeout != newCfg.RequestTimeout {
		changes = append(changes, fmt.Sprintf("request-timeout: %s -> %s (restart required)", oldCfg.RequestTimeout, newCfg.RequestTimeout))
	}

	if oldCfg.Retry != newCfg.Retry {
		changes = append(changes, fmt.Sprintf("retry: %+v -> %+v (restart required)", oldCfg.Retry, newCfg.Retry))
	}
	if oldCfg.RateLimits != newCfg.RateLimits {
		changes = append(changes, "rate-limits: updated")
	}
	if oldCfg.Cache != newCfg.Cache {
		changes = append(changes, fmt.Sprintf("cache: %+v -> %+v", oldCfg.Cache, newCfg.Cache))
	}
	if oldCfg.Pricing != newCfg.Pricing {
		changes = append(changes, fmt.Sprintf("pricing: %+v -> %+v", oldCfg.Pricing, newCfg.Pricing))
	}
	if oldCfg.Batch != newCfg.Batch {
		changes = append(changes, fmt.Sprintf("batch: %+v -> %+v", oldCfg.Batch, newCfg.Batch))
	}
	if oldCfg.Usage != newCfg.Usage {
		changes = append(changes, "usage: updated (restart required)")
	}
	if oldCfg.Tracing != newCfg.Tracing {
		changes = append(changes, "tracing: updated (restart required)")
	}

	return changes
}
