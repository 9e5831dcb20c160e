package cache

import (
	"fmt"
	"testing"
	"time"
)

func newTestCache(ttl time.Duration, maxItems int) (*Cache, *time.Time) {
	c := New(Options{Enabled: true, TTL: ttl, MaxItems: maxItems})
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, &now
}

func TestPutGet(t *testing.T) {
	c, _ := newTestCache(time.Hour, 10)

	c.Put("fp1", "resposta um")
	got, ok := c.Get("fp1")
	if !ok {
		t.Fatal("expected hit right after Put")
	}
	if got != "resposta um" {
		t.Errorf("got %q", got)
	}

	if _, ok := c.Get("fp2"); ok {
		t.Error("unexpected hit for unknown fingerprint")
	}
}

func TestExpiry(t *testing.T) {
	c, now := newTestCache(time.Minute, 10)

	c.Put("fp", "answer")
	*now = now.Add(59 * time.Second)
	if _, ok := c.Get("fp"); !ok {
		t.Fatal("entry should still be fresh")
	}

	*now = now.Add(2 * time.Second)
	if _, ok := c.Get("fp"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("stale entry should be removed on Get, Len = %d", c.Len())
	}
}

func TestCapacityBound(t *testing.T) {
	c, _ := newTestCache(time.Hour, 3)

	for i := 0; i < 20; i++ {
		c.Put(fmt.Sprintf("fp%d", i), "v")
		if c.Len() > 3 {
			t.Fatalf("capacity exceeded after %d puts: %d", i+1, c.Len())
		}
	}

	// Oldest entries are gone, the newest survive.
	if _, ok := c.Get("fp0"); ok {
		t.Error("fp0 should have been evicted")
	}
	if _, ok := c.Get("fp19"); !ok {
		t.Error("fp19 should still be cached")
	}
}

func TestEvictionOrder(t *testing.T) {
	c, _ := newTestCache(time.Hour, 2)

	c.Put("a", "1")
	c.Put("b", "2")
	c.Get("a") // refresh recency, "b" becomes the eviction candidate
	c.Put("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be present")
	}
}

func TestOverwriteRefreshesTTL(t *testing.T) {
	c, now := newTestCache(time.Minute, 10)

	c.Put("fp", "old")
	*now = now.Add(50 * time.Second)
	c.Put("fp", "new")
	*now = now.Add(30 * time.Second)

	got, ok := c.Get("fp")
	if !ok {
		t.Fatal("overwrite should have refreshed the TTL")
	}
	if got != "new" {
		t.Errorf("got %q, want new", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c := New(Options{Enabled: false, TTL: time.Hour, MaxItems: 10})

	c.Put("fp", "answer")
	if _, ok := c.Get("fp"); ok {
		t.Error("disabled cache must miss")
	}
	if c.Len() != 0 {
		t.Errorf("disabled cache should store nothing, Len = %d", c.Len())
	}
}

func TestRemoveAndClear(t *testing.T) {
	c, _ := newTestCache(time.Hour, 10)

	c.Put("a", "1")
	c.Put("b", "2")
	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
	c.Put("c", "3")
	if _, ok := c.Get("c"); !ok {
		t.Error("cache should still work after Clear")
	}
}
