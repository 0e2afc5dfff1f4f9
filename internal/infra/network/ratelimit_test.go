package network

import (
	"testing"
	"time"
)

func TestTokenBucketDrainsAndRefills(t *testing.T) {
	now := time.Now()
	b := NewTokenBucket(2, 10, 50)

	if !b.Allow(now) || !b.Allow(now) {
		t.Fatal("a full bucket must serve its capacity")
	}
	if b.Allow(now) {
		t.Fatal("empty bucket must refuse")
	}
	// 10 tokens/s: 100ms refills one.
	if !b.Allow(now.Add(100 * time.Millisecond)) {
		t.Fatal("bucket should refill with time")
	}
}

func TestTokenBucketAdaptsToRTT(t *testing.T) {
	b := NewTokenBucket(8, 16, 50)

	b.AdjustForRTT(150) // 3x baseline
	if b.capacity != 4 || b.rate != 8 {
		t.Fatalf("degraded endpoint should halve throughput, got capacity=%d rate=%v", b.capacity, b.rate)
	}
	b.AdjustForRTT(150)
	if b.capacity != 2 {
		t.Fatalf("sustained degradation should keep halving, got %d", b.capacity)
	}

	b.AdjustForRTT(40) // recovered under baseline
	b.AdjustForRTT(40)
	if b.capacity != 8 || b.rate != 16 {
		t.Fatalf("recovery should restore configured throughput, got capacity=%d rate=%v", b.capacity, b.rate)
	}
}

func TestTokenBucketIgnoresRTTWithoutBaseline(t *testing.T) {
	b := NewTokenBucket(4, 8, 0)
	b.AdjustForRTT(500)
	if b.capacity != 4 || b.rate != 8 {
		t.Fatal("no baseline means no adaptation")
	}
}
