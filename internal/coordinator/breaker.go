package coordinator

import (
	"time"

	"arbbot/internal/infra/metrics"
)

// CircuitBreaker halts all dispatch once cumulative losses cross the
// threshold. It is process-wide and mutated only inside the coordinator's
// dispatch loop; once tripped, nothing executes until a time-boxed or manual
// reset.
type CircuitBreaker struct {
	threshold      float64 // ether
	autoReset      time.Duration
	tripped        bool
	cumulativeLoss float64
	lastTripTime   time.Time
}

func NewCircuitBreaker(thresholdEther float64, autoReset time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: thresholdEther, autoReset: autoReset}
}

// RecordLoss adds a realized loss (positive ether) and trips the breaker when
// the running total crosses the threshold.
func (b *CircuitBreaker) RecordLoss(etherLoss float64, now time.Time) {
	if etherLoss <= 0 {
		return
	}
	b.cumulativeLoss += etherLoss
	metrics.BreakerLossEther.Set(b.cumulativeLoss)
	if !b.tripped && b.cumulativeLoss >= b.threshold {
		b.tripped = true
		b.lastTripTime = now
		metrics.BreakerTripped.Set(1)
	}
}

// Tripped reports the breaker state, applying the auto-reset window when one
// is configured.
func (b *CircuitBreaker) Tripped(now time.Time) bool {
	if b.tripped && b.autoReset > 0 && now.Sub(b.lastTripTime) >= b.autoReset {
		b.reset()
	}
	return b.tripped
}

// Reset clears the breaker explicitly, for the admin endpoint.
func (b *CircuitBreaker) Reset() { b.reset() }

func (b *CircuitBreaker) reset() {
	b.tripped = false
	b.cumulativeLoss = 0
	metrics.BreakerTripped.Set(0)
	metrics.BreakerLossEther.Set(0)
}

// CumulativeLoss is read by status reporting.
func (b *CircuitBreaker) CumulativeLoss() float64 { return b.cumulativeLoss }
