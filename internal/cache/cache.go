// Package cache provides the content-addressed response cache. Entries are
// keyed by a request fingerprint, expire after a per-entry TTL, and the cache
// is bounded: past the bound the oldest entries by insertion order are
// evicted. A background sweep removes expired entries even without traffic.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/fleetflow/freight-ai/internal/json"
	log "github.com/fleetflow/freight-ai/internal/logging"
)

// Entry is a cached remote response.
type Entry struct {
	Content      string        `json:"content"`
	CostEstimate float64       `json:"cost-estimate"`
	TokensUsed   int           `json:"tokens-used"`
	CreatedAt    time.Time     `json:"created-at"`
	TTL          time.Duration `json:"ttl"`
}

// expired reports whether the entry is past its TTL at now.
func (e Entry) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= e.TTL
}

// Fingerprint derives the deterministic cache key from a request's semantic
// inputs. Context maps are serialized with sorted keys so logically equal
// requests always hash identically.
func Fingerprint(prompt string, context map[string]any, maxTokens int, temperature float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%.4f\x00", prompt, maxTokens, temperature)
	if len(context) > 0 {
		if data, err := json.MarshalCanonical(context); err == nil {
			h.Write(data)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

type item struct {
	key   string
	entry Entry
}

// Cache is a bounded TTL cache safe for concurrent use. Lookups and inserts
// are O(1); eviction walks from the oldest insertion.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front is the oldest insertion
	maxEntries int
	defaultTTL time.Duration

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	now func() time.Time
}

// Options configures a Cache. Zero values fall back to the documented
// defaults (500 entries, 30m TTL, 15m sweep).
type Options struct {
	MaxEntries    int
	DefaultTTL    time.Duration
	SweepInterval time.Duration

	// Now overrides the clock; tests use this for deterministic expiry.
	Now func() time.Time
}

const (
	defaultMaxEntries    = 500
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = 15 * time.Minute
)

// New returns a cache; call Start to launch the background sweep.
func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = defaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries:       make(map[string]*list.Element),
		order:         list.New(),
		maxEntries:    opts.MaxEntries,
		defaultTTL:    opts.DefaultTTL,
		sweepInterval: opts.SweepInterval,
		stopCh:        make(chan struct{}),
		now:           opts.Now,
	}
}

// Get returns the entry for fingerprint fp. An expired entry is removed and
// reported as absent.
func (c *Cache) Get(fp string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fp]
	if !ok {
		return Entry{}, false
	}
	it := el.Value.(*item)
	if it.entry.expired(c.now()) {
		c.removeLocked(el)
		return Entry{}, false
	}
	return it.entry, true
}

// Put stores a response under fp. A zero ttl uses the default. Re-inserting
// an existing fingerprint refreshes the entry and counts as a new insertion
// for eviction ordering. When the cache exceeds its bound, the oldest
// insertions are evicted until the bound holds again.
func (c *Cache) Put(fp, content string, cost float64, tokens int, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// defaultTTL is mutated by SetBounds, so it may only be read under the lock.
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	entry := Entry{
		Content:      content,
		CostEstimate: cost,
		TokensUsed:   tokens,
		CreatedAt:    c.now(),
		TTL:          ttl,
	}

	if el, ok := c.entries[fp]; ok {
		el.Value.(*item).entry = entry
		c.order.MoveToBack(el)
	} else {
		c.entries[fp] = c.order.PushBack(&item{key: fp, entry: entry})
	}

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// removeLocked deletes an element; caller holds the lock.
func (c *Cache) removeLocked(el *list.Element) {
	it := el.Value.(*item)
	delete(c.entries, it.key)
	c.order.Remove(el)
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear empties the cache immediately.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// SetBounds updates the entry bound and default TTL at runtime. A lowered
// bound takes effect on the next Put.
func (c *Cache) SetBounds(maxEntries int, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if maxEntries > 0 {
		c.maxEntries = maxEntries
	}
	if ttl > 0 {
		c.defaultTTL = ttl
	}
}

// Start launches the background sweep goroutine.
func (c *Cache) Start() {
	c.wg.Add(1)
	go c.sweepLoop()
}

// Stop terminates the background sweep. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				log.Debugf("cache: sweep removed %d expired entries", removed)
			}
		}
	}
}

// Sweep removes all expired entries and returns how many were dropped. The
// lock is held only for the scan and removal, keeping foreground pauses short.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*item).entry.expired(now) {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	return removed
}
