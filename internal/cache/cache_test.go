package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(maxEntries int, clock *fakeClock) *Cache {
	return New(Options{
		MaxEntries: maxEntries,
		DefaultTTL: 30 * time.Minute,
		Now:        clock.Now,
	})
}

func TestFingerprintDeterministic(t *testing.T) {
	ctx := map[string]any{"lane": "ATL-DFW", "equipment": "reefer"}
	a := Fingerprint("rate this lane", ctx, 500, 0.7)
	b := Fingerprint("rate this lane", map[string]any{"equipment": "reefer", "lane": "ATL-DFW"}, 500, 0.7)
	if a != b {
		t.Error("same semantic inputs should produce the same fingerprint")
	}
	if a == Fingerprint("rate this lane", ctx, 501, 0.7) {
		t.Error("different max tokens should change the fingerprint")
	}
	if a == Fingerprint("rate this lane", ctx, 500, 0.8) {
		t.Error("different temperature should change the fingerprint")
	}
}

func TestGetReturnsIdenticalContent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(10, clock)
	c.Put("fp1", "dispatch two trucks", 0.01, 120, 0)

	for i := 0; i < 5; i++ {
		entry, ok := c.Get("fp1")
		if !ok {
			t.Fatal("unexpired entry should be present")
		}
		if entry.Content != "dispatch two trucks" {
			t.Errorf("read %d returned different content: %q", i, entry.Content)
		}
	}
}

func TestTTLExpiryOnLookup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(10, clock)
	c.Put("fp1", "content", 0, 10, 10*time.Minute)

	clock.Advance(9 * time.Minute)
	if _, ok := c.Get("fp1"); !ok {
		t.Error("entry should survive before TTL")
	}

	clock.Advance(time.Minute)
	if _, ok := c.Get("fp1"); ok {
		t.Error("entry at exactly TTL should be absent")
	}
	if c.Len() != 0 {
		t.Error("expired entry should be removed on lookup")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(10, clock)
	c.Put("short", "a", 0, 1, time.Minute)
	c.Put("long", "b", 0, 1, time.Hour)

	clock.Advance(2 * time.Minute)
	removed := c.Sweep()
	if removed != 1 {
		t.Errorf("sweep should remove 1 entry, removed %d", removed)
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("unexpired entry should survive the sweep")
	}
	if c.Len() != 1 {
		t.Errorf("cache should hold 1 entry after sweep, has %d", c.Len())
	}
}

func TestEvictionOldestFirst(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(2, clock)
	c.Put("first", "1", 0, 1, 0)
	c.Put("second", "2", 0, 1, 0)
	c.Put("third", "3", 0, 1, 0)

	if c.Len() != 2 {
		t.Fatalf("cache should hold exactly 2 entries, has %d", c.Len())
	}
	if _, ok := c.Get("first"); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok := c.Get("second"); !ok {
		t.Error("second entry should remain")
	}
	if _, ok := c.Get("third"); !ok {
		t.Error("newest entry should remain")
	}
}

func TestEvictionBringsCacheUnderLoweredBound(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(10, clock)
	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("fp%d", i), "x", 0, 1, 0)
	}
	c.SetBounds(3, 0)
	c.Put("fresh", "y", 0, 1, 0)

	if c.Len() != 3 {
		t.Errorf("cache should evict down to 3 entries, has %d", c.Len())
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("newest entry should survive the shrink")
	}
}

func TestReinsertRefreshesOrder(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(2, clock)
	c.Put("a", "1", 0, 1, 0)
	c.Put("b", "2", 0, 1, 0)
	c.Put("a", "1-updated", 0, 1, 0)
	c.Put("c", "3", 0, 1, 0)

	if _, ok := c.Get("b"); ok {
		t.Error("b should be evicted as the oldest insertion")
	}
	entry, ok := c.Get("a")
	if !ok || entry.Content != "1-updated" {
		t.Error("re-inserted entry should survive with updated content")
	}
}

func TestClear(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(10, clock)
	c.Put("a", "1", 0, 1, 0)
	c.Put("b", "2", 0, 1, 0)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("cache should be empty after Clear, has %d", c.Len())
	}
}

func TestConcurrentPutAndSetBounds(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(20, clock)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			// Zero TTL forces the default-TTL read that races a
			// concurrent SetBounds unless both are serialized.
			c.Put(fmt.Sprintf("fp%d", i%30), "content", 0, 1, 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.SetBounds(10+i%10, time.Duration(i+1)*time.Minute)
		}
	}()
	wg.Wait()

	if c.Len() == 0 {
		t.Error("cache should retain entries after concurrent resizing")
	}
}

func TestConcurrentAccess(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(50, clock)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put(fmt.Sprintf("fp%d", j%60), "content", 0, 1, 0)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if entry, ok := c.Get(fmt.Sprintf("fp%d", j%60)); ok && entry.Content != "content" {
					t.Error("read a partially written entry")
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("cache exceeded its bound: %d", c.Len())
	}
}
