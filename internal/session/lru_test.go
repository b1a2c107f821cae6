package session

import "testing"

func TestCandidateLRUIdempotentLookup(t *testing.T) {
	c := newCandidateLRU(2)
	c.put("cand-1", "real-1")

	got, ok := c.get("cand-1")
	if !ok || got != "real-1" {
		t.Fatalf("expected cand-1 -> real-1, got %q, %v", got, ok)
	}
}

func TestCandidateLRUEvictsOldestBeyondCapacity(t *testing.T) {
	c := newCandidateLRU(2)
	c.put("a", "1")
	c.put("b", "2")
	c.put("c", "3") // evicts "a"

	if _, ok := c.get("a"); ok {
		t.Fatal("expected a to be evicted")
	}
	if _, ok := c.get("b"); !ok {
		t.Fatal("expected b to still be present")
	}
	if _, ok := c.get("c"); !ok {
		t.Fatal("expected c to be present")
	}
}

func TestCandidateLRUGetRefreshesRecency(t *testing.T) {
	c := newCandidateLRU(2)
	c.put("a", "1")
	c.put("b", "2")
	c.get("a")       // touch a, making b the least-recently-used
	c.put("c", "3") // should evict b, not a

	if _, ok := c.get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.get("a"); !ok {
		t.Fatal("expected a to survive due to recent access")
	}
}
