package cache

import (
	"strconv"
	"testing"
	"time"
)

func BenchmarkLRU_Set(b *testing.B) {
	c := New[string](1000, 5*time.Minute)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(HashKey(strconv.Itoa(i)), "value")
	}
}

func BenchmarkLRU_ConcurrentAccess(b *testing.B) {
	c := New[string](1000, 5*time.Minute)
	for i := 0; i < 100; i++ {
		c.Set(HashKey(strconv.Itoa(i)), "value")
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := HashKey(strconv.Itoa(i % 100))
			if i%2 == 0 {
				c.Get(key)
			} else {
				c.Set(key, "value")
			}
			i++
		}
	})
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](3, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected 1, got %v (ok=%v)", v, ok)
	}
	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("unexpected stats hits=%d misses=%d", hits, misses)
	}
}

func TestLRU_TTL(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](10, time.Minute).WithClock(func() time.Time { return now })
	c.Set("key", "value")
	if _, ok := c.Get("key"); !ok {
		t.Fatal("expected fresh entry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("key"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestLRU_DumpRestore(t *testing.T) {
	src := New[[]float32](4, 0)
	src.Set("x", []float32{1, 2})
	src.Set("y", []float32{3})

	dst := New[[]float32](1, 0)
	dst.Restore(src.Dump())
	if dst.Len() != 1 {
		t.Fatalf("restore should respect capacity, got %d", dst.Len())
	}
}

func TestHashKeyIsStable(t *testing.T) {
	if HashKey("a", "b") != HashKey("a", "b") {
		t.Fatal("hash should be deterministic")
	}
	if HashKey("ab") == HashKey("a", "b") {
		t.Fatal("parts must be separated")
	}
}
