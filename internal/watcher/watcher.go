// Package watcher reloads the YAML config when the file changes on disk and
// applies the dynamic subset (rate ceilings, cache bounds, pricing, batch
// limits, fallback default, log level) to the running gateway without a
// restart. Settings that require reconstruction (port, DSN, credentials) are
// logged as needing a restart.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fleetflow/freight-ai/internal/config"
	"github.com/fleetflow/freight-ai/internal/gateway"
	"github.com/fleetflow/freight-ai/internal/logging"
	log "github.com/fleetflow/freight-ai/internal/logging"
	"github.com/fleetflow/freight-ai/internal/metrics"
	"github.com/fleetflow/freight-ai/internal/ratelimit"
)

// debounceWindow absorbs editor write bursts into one reload.
const debounceWindow = 250 * time.Millisecond

// Watcher observes one config file.
type Watcher struct {
	path string
	gw   *gateway.Gateway

	mu      sync.Mutex
	current *config.Config

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New builds a watcher for the config file at path. initial is the config the
// process booted with; diffs are computed against it.
func New(path string, initial *config.Config, gw *gateway.Gateway) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files via rename,
	// which drops a direct file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}
	return &Watcher{
		path:    path,
		gw:      gw,
		current: initial,
		fsw:     fsw,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start launches the watch loop.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
	log.Infof("watcher: watching %s for changes", w.path)
}

// Stop terminates the watch loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		w.fsw.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warnf("watcher: %v", err)
		}
	}
}

// reload parses the file and applies dynamic settings. A broken file keeps
// the previous config in force.
func (w *Watcher) reload() {
	newCfg, err := config.LoadConfig(w.path)
	if err != nil {
		log.WithError(err).Errorf("watcher: config reload failed, keeping previous config")
		return
	}

	w.mu.Lock()
	oldCfg := w.current
	w.current = newCfg
	w.mu.Unlock()

	changes := buildConfigChangeDetails(oldCfg, newCfg)
	if len(changes) == 0 {
		log.Debugf("watcher: config file touched, no effective changes")
		return
	}
	for _, change := range changes {
		log.Infof("watcher: config change: %s", change)
	}

	w.apply(newCfg)
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *config.Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) apply(cfg *config.Config) {
	logging.SetDebug(cfg.Debug)

	limits := cfg.RateLimits.Normalized()
	w.gw.SetRateLimits(ratelimit.Limits{
		RequestsPerMinute: limits.RequestsPerMinute,
		RequestsPerHour:   limits.RequestsPerHour,
		RequestsPerDay:    limits.RequestsPerDay,
		TokensPerMinute:   limits.TokensPerMinute,
		TokensPerHour:     limits.TokensPerHour,
		TokensPerDay:      limits.TokensPerDay,
	})
	w.gw.SetCacheBounds(cfg.Cache.Bound(), cfg.Cache.TTLDuration())

	pricing := cfg.Pricing.Normalized()
	w.gw.SetPricing(metrics.Pricing{
		InputPer1K:  pricing.InputPer1K,
		OutputPer1K: pricing.OutputPer1K,
	})
	w.gw.SetFallbackDefault(cfg.FallbackDefault())
	w.gw.SetBatchLimits(cfg.Batch.ConcurrencyLimit(), cfg.Batch.DelayDuration())

	log.Infof("watcher: dynamic settings applied")
}
