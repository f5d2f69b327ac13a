package analytics

import (
	"fmt"
	"testing"
	"time"
)

func TestCache_GetSet(t *testing.T) {
	c := NewCache(time.Minute, 10)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() ok = true for missing key")
	}

	c.Set("a", 1)
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("Get() ok = false after Set")
	}
	if got.(int) != 1 {
		t.Errorf("Get() = %v, want 1", got)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := NewCache(20*time.Millisecond, 10)
	c.Set("a", 1)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("Get() ok = false before expiry")
	}

	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("Get() ok = true after TTL expiry")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := NewCache(time.Minute, 3)
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	// Touch k0 so k1 becomes the least recently used entry.
	if _, ok := c.Get("k0"); !ok {
		t.Fatal("Get(k0) ok = false")
	}

	c.Set("k3", 3)

	if _, ok := c.Get("k1"); ok {
		t.Error("k1 should have been evicted")
	}
	for _, key := range []string{"k0", "k2", "k3"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Set("lesson-1:a", 1)
	c.Set("lesson-1:b", 2)
	c.Set("lesson-2:a", 3)

	c.InvalidatePrefix("lesson-1:")

	if _, ok := c.Get("lesson-1:a"); ok {
		t.Error("lesson-1:a should be invalidated")
	}
	if _, ok := c.Get("lesson-1:b"); ok {
		t.Error("lesson-1:b should be invalidated")
	}
	if _, ok := c.Get("lesson-2:a"); !ok {
		t.Error("lesson-2:a should survive")
	}
}

func TestCache_Clear(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
}

func TestCache_SetOverwrites(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Set("a", 1)
	c.Set("a", 2)

	got, _ := c.Get("a")
	if got.(int) != 2 {
		t.Errorf("Get() = %v after overwrite, want 2", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}
