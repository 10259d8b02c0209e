package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetflow/freight-ai/internal/api"
	"github.com/fleetflow/freight-ai/internal/config"
	"github.com/fleetflow/freight-ai/internal/gateway"
	"github.com/fleetflow/freight-ai/internal/logging"
	log "github.com/fleetflow/freight-ai/internal/logging"
	"github.com/fleetflow/freight-ai/internal/provider"
	"github.com/fleetflow/freight-ai/internal/tracing"
	"github.com/fleetflow/freight-ai/internal/usage"
	"github.com/fleetflow/freight-ai/internal/watcher"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the freight-ai gateway server",
	Long: `Start the gateway HTTP server.

Loads configuration, connects the usage backend when configured, and serves
the v1 generation and management API.`,
	Run: func(c *cobra.Command, args []string) {
		logging.SetupBaseLogger()

		result, err := Bootstrap(cfgFile)
		if err != nil {
			log.Fatalf("Failed to bootstrap: %v", err)
		}
		cfg := result.Config

		if servePort != 0 && servePort != config.DefaultPort {
			cfg.Port = servePort
		}
		logging.SetDebug(cfg.Debug)
		if err := logging.ConfigureLogOutput(cfg.LoggingToFile); err != nil {
			log.Fatalf("Failed to configure log output: %v", err)
		}

		runServer(cfg, result.ConfigFilePath)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "server port")
	rootCmd.AddCommand(serveCmd)
}

// runServer wires the gateway together and blocks until shutdown.
func runServer(cfg *config.Config, configFilePath string) {
	ctx := context.Background()

	traceProvider, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		log.WithError(err).Warnf("tracing disabled")
	}

	usageBackend, err := usage.NewBackend(usage.BackendConfig{
		DSN:           cfg.Usage.DSN,
		BatchSize:     cfg.Usage.BatchSize,
		FlushInterval: usageFlushInterval(cfg),
		RetentionDays: cfg.Usage.RetentionDays,
	})
	if err != nil {
		log.Fatalf("Failed to initialize usage backend: %v", err)
	}
	if usageBackend != nil {
		if err := usageBackend.Start(); err != nil {
			log.Fatalf("Failed to start usage backend: %v", err)
		}
		log.Infof("usage persistence enabled")
	}

	remote := provider.New(provider.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.RequestTimeoutDuration(),
	})
	if !remote.IsConfigured() {
		log.Warnf("no API credential configured; serving fallback responses only")
	}

	gw := gateway.New(gateway.Options{
		Config: cfg,
		Remote: remote,
		Usage:  usageBackend,
	})
	gw.Start()

	var cfgWatcher *watcher.Watcher
	if _, statErr := os.Stat(configFilePath); statErr == nil {
		cfgWatcher, err = watcher.New(configFilePath, cfg, gw)
		if err != nil {
			log.WithError(err).Warnf("config hot-reload disabled")
		} else {
			cfgWatcher.Start()
		}
	}

	handler := api.NewHandler(gw, usageBackend, cfg.Usage.RetentionDays)
	server := api.NewServer(api.NewRouter(handler, cfg.Debug), cfg.Port)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
	if cfgWatcher != nil {
		cfgWatcher.Stop()
	}
	gw.Stop()
	if usageBackend != nil {
		if err := usageBackend.Stop(); err != nil {
			log.Warnf("usage backend shutdown: %v", err)
		}
	}
	if err := traceProvider.Shutdown(shutdownCtx); err != nil {
		log.Warnf("trace provider shutdown: %v", err)
	}
	log.Infof("shutdown complete")
}

func usageFlushInterval(cfg *config.Config) time.Duration {
	if cfg.Usage.FlushInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(cfg.Usage.FlushInterval)
	if err != nil {
		return 0
	}
	return d
}
