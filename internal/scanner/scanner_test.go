package scanner

import (
	"math/big"
	"testing"

	"arbbot/internal/arb"
	"arbbot/internal/chain"
	"arbbot/internal/config"
	"arbbot/internal/gas"
	"arbbot/internal/graph"
	"arbbot/internal/market"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScanner(t *testing.T) *Scanner {
	t.Helper()
	cfg := config.Load()
	cfg.Scan.ProbeAmountWei = "1000000000000000000"
	out := make(chan arb.Opportunity, 8)
	return New(3, cfg, map[uint64]*chain.Client{}, market.NewCatalog(), market.NewStatsCache(), gas.NewTracker(0), nil, nil, out, zerolog.Nop())
}

func cyclePath(rates []float64, gasWei int64) graph.Path {
	tokens := make([]market.Token, len(rates))
	for i := range tokens {
		tokens[i] = market.Token{Symbol: string(rune('A' + i)), ChainID: 1, Decimals: 18}
		tokens[i].Address[19] = byte(i + 1)
	}
	r := market.Router{Name: "swapx", ChainID: 1, GasLimit: 150_000, FeeBps: 30}
	edges := make([]graph.Edge, len(rates))
	for i, rate := range rates {
		edges[i] = graph.NewEdge(tokens[i], tokens[(i+1)%len(tokens)], r, rate, 30, big.NewInt(gasWei))
	}
	return graph.Path{Edges: edges}
}

func TestToOpportunityProfitAndConfidence(t *testing.T) {
	s := testScanner(t)
	p := cyclePath([]float64{2.0, 1.5, 0.4}, 0)

	opp := s.toOpportunity(p, 1)
	assert.Equal(t, arb.StrategyTriangular, opp.Strategy)
	assert.Equal(t, 3, opp.Worker)
	assert.Equal(t, uint64(1), opp.ChainID)
	require.NotNil(t, opp.ExpectedProfit)

	// margin 0.191 of a 1 ETH probe.
	want, _ := new(big.Float).Mul(big.NewFloat(0.191), big.NewFloat(1e18)).Int(nil)
	diff := new(big.Int).Sub(opp.ExpectedProfit, want)
	assert.Less(t, diff.Abs(diff).Int64(), int64(1e9), "profit should track the path margin")

	// one hop past a triangle costs 0.15 of confidence
	assert.InDelta(t, 0.85, opp.Confidence, 1e-9)
}

func TestToOpportunitySubtractsGas(t *testing.T) {
	s := testScanner(t)
	withGas := s.toOpportunity(cyclePath([]float64{2.0, 1.5, 0.4}, 1e15), 1)
	withoutGas := s.toOpportunity(cyclePath([]float64{2.0, 1.5, 0.4}, 0), 1)

	diff := new(big.Int).Sub(withoutGas.ExpectedProfit, withGas.ExpectedProfit)
	assert.Equal(t, big.NewInt(3e15), diff) // three edges of gas
}

func TestConfidenceFloorsAtLongPaths(t *testing.T) {
	s := testScanner(t)
	long := s.toOpportunity(cyclePath([]float64{1.1, 1.1, 1.1, 1.1, 1.1, 1.1, 1.1, 1.1}, 0), 1)
	assert.InDelta(t, 0.3, long.Confidence, 1e-9)
	assert.Equal(t, arb.StrategyMultiHop, long.Strategy)
}
