package tokenbucket

import (
	"testing"
	"time"
)

func TestTakeDrainsCapacityImmediately(t *testing.T) {
	b := New(3, 0)
	for i := 0; i < 3; i++ {
		if !b.Take() {
			t.Fatalf("expected take %d to succeed", i)
		}
	}
	if b.Take() {
		t.Fatalf("expected bucket to be empty after draining capacity")
	}
}

func TestCapacityFlooredToOne(t *testing.T) {
	b := New(0, 0)
	if b.capacity != 1.0 {
		t.Fatalf("expected capacity floored to 1.0, got %v", b.capacity)
	}
}

func TestNegativeRateForcesZeroCapacity(t *testing.T) {
	b := New(5, -1)
	if b.capacity != 0 {
		t.Fatalf("expected capacity 0 for negative rate, got %v", b.capacity)
	}
	if b.Take() {
		t.Fatalf("expected Take to always fail when rate is negative")
	}
}

func TestRefillCapsAtCapacity(t *testing.T) {
	b := New(2, 1000000)
	b.Take()
	b.Take()
	// Force a refill well past capacity.
	b.lastFill = b.lastFill.Add(-10 * time.Second)
	if !b.Take() {
		t.Fatalf("expected refill to top the bucket back up")
	}
	if b.tokens > b.capacity {
		t.Fatalf("tokens exceeded capacity after refill: %v > %v", b.tokens, b.capacity)
	}
}
