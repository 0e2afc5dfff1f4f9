package gas

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEdgeCost(t *testing.T) {
	m := NewModel(big.NewInt(20_000_000_000), nil) // 20 gwei
	assert.Equal(t, "3000000000000000", m.EdgeCost(150_000).String())

	// Nil gas price prices to zero rather than panicking.
	empty := NewModel(nil, nil)
	assert.Zero(t, empty.EdgeCost(150_000).Sign())
}

func TestRollupEdgeCostAddsCalldataPosting(t *testing.T) {
	l2 := big.NewInt(100_000_000)    // 0.1 gwei execution
	l1 := big.NewInt(30_000_000_000) // 30 gwei settlement
	m := NewModel(l2, l1)

	// 150k execution gas at 0.1 gwei plus 200*16 data gas at 30 gwei.
	want := new(big.Int).Mul(big.NewInt(150_000), l2)
	want.Add(want, new(big.Int).Mul(big.NewInt(200*16), l1))
	assert.Equal(t, want, m.EdgeCost(150_000))

	// The same model without an L1 price is pure execution.
	local := NewModel(l2, nil)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(150_000), l2), local.EdgeCost(150_000))
}

func TestTrackerPercentiles(t *testing.T) {
	tr := NewTracker(4)
	if got := tr.PercentileOf(1, 25); got != 0.5 {
		t.Fatalf("empty window percentile = %v, want 0.5", got)
	}

	for _, gwei := range []float64{10, 20, 30, 40, 50, 60} {
		tr.Observe(1, gwei)
	}
	// Window of 4 keeps only 30..60.
	latest, ok := tr.Latest(1)
	assert.True(t, ok)
	assert.Equal(t, 60.0, latest)
	assert.Equal(t, 0.75, tr.PercentileOf(1, 60))
	assert.Equal(t, 0.0, tr.PercentileOf(1, 10))
}
