package gas

import (
	"sort"
	"sync"
)

// Tracker keeps a bounded window of observed gas prices per chain and answers
// percentile queries. Used as the competition and congestion proxy.
type Tracker struct {
	mu      sync.Mutex
	window  int
	samples map[uint64][]float64 // chainID -> gwei samples, oldest first
}

func NewTracker(window int) *Tracker {
	if window <= 0 {
		window = 128
	}
	return &Tracker{window: window, samples: map[uint64][]float64{}}
}

func (t *Tracker) Observe(chainID uint64, gwei float64) {
	if gwei <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := append(t.samples[chainID], gwei)
	if len(s) > t.window {
		s = s[len(s)-t.window:]
	}
	t.samples[chainID] = s
}

// PercentileOf returns which percentile (0..1) the given price sits at within
// the observed window. With no history it reports 0.5.
func (t *Tracker) PercentileOf(chainID uint64, gwei float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.samples[chainID]
	if len(s) == 0 {
		return 0.5
	}
	sorted := append([]float64{}, s...)
	sort.Float64s(sorted)
	below := sort.SearchFloat64s(sorted, gwei)
	return float64(below) / float64(len(sorted))
}

// Latest returns the most recent observation, if any.
func (t *Tracker) Latest(chainID uint64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.samples[chainID]
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}
