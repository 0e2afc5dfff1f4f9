package network

import (
	"sync"
	"time"
)

// TokenBucket paces outbound RPC calls per endpoint. It adapts to the
// endpoint's measured latency: when the RTT degrades well past baseline the
// bucket halves its throughput, and it creeps back up once the endpoint
// recovers. Chain clients feed it their latency EMA.
type TokenBucket struct {
	mu            sync.Mutex
	capacity      int
	baseCapacity  int
	tokens        float64
	rate          float64 // tokens per second
	baseRate      float64
	last          time.Time
	baselineRTTms float64
}

func NewTokenBucket(capacity int, rate float64, baselineRTTms float64) *TokenBucket {
	return &TokenBucket{
		capacity:      capacity,
		baseCapacity:  capacity,
		tokens:        float64(capacity),
		rate:          rate,
		baseRate:      rate,
		last:          time.Now(),
		baselineRTTms: baselineRTTms,
	}
}

// Allow consumes one token if available.
func (b *TokenBucket) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *TokenBucket) refill(now time.Time) {
	dt := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += b.rate * dt
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
}

// AdjustForRTT retunes throughput from the endpoint's latency EMA. Above 2x
// baseline the bucket halves; at or below baseline it steps back toward the
// configured rate.
func (b *TokenBucket) AdjustForRTT(emaRTTms float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.baselineRTTms <= 0 {
		return
	}
	ratio := emaRTTms / b.baselineRTTms
	switch {
	case ratio > 2.0:
		b.capacity = maxInt(1, b.capacity/2)
		b.rate = maxFloat(1, b.rate/2)
	case ratio <= 1.0:
		b.capacity = minInt(b.baseCapacity, b.capacity*2)
		b.rate = minFloat(b.baseRate, b.rate*2)
	}
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
