package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/fleetflow/freight-ai/internal/config"
	log "github.com/fleetflow/freight-ai/internal/logging"
)

// envPrefix namespaces all environment overrides.
const envPrefix = "FREIGHT_AI_"

// BootstrapResult contains the result of bootstrapping the application.
type BootstrapResult struct {
	Config         *config.Config
	ConfigFilePath string
}

// Bootstrap loads .env, reads the YAML config (optional when the default
// path is absent), and applies environment overrides. Called before any
// command that needs configuration.
func Bootstrap(configPath string) (*BootstrapResult, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warnf("failed to load .env file")
		}
	}

	optional := configPath == ""
	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}

	cfg, err := config.LoadConfigOptional(configPath, optional)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyEnvOverrides(cfg)

	return &BootstrapResult{
		Config:         cfg,
		ConfigFilePath: configPath,
	}, nil
}

// applyEnvOverrides lets FREIGHT_AI_* variables win over file values. Only
// the settings operators commonly inject via the environment are covered.
func applyEnvOverrides(cfg *config.Config) {
	if v := lookup("API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := lookup("BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := lookup("MODEL"); v != "" {
		cfg.Model = v
	}
	if v := lookup("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if v := lookup("DEBUG"); v != "" {
		cfg.Debug = parseBool(v, cfg.Debug)
	}
	if v := lookup("LOGGING_TO_FILE"); v != "" {
		cfg.LoggingToFile = parseBool(v, cfg.LoggingToFile)
	}
	if v := lookup("FALLBACK_ALLOWED"); v != "" {
		allowed := parseBool(v, cfg.FallbackDefault())
		cfg.FallbackAllowed = &allowed
	}
	if v := lookup("USAGE_DSN"); v != "" {
		cfg.Usage.DSN = v
	}
	if v := lookup("REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = v
	}
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
