package graph

import (
	"math"
	"math/big"
	"testing"

	"arbbot/internal/market"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testToken(symbol string, b byte) market.Token {
	return market.Token{
		Address:  common.BytesToAddress([]byte{b}),
		Symbol:   symbol,
		ChainID:  1,
		Decimals: 18,
	}
}

func testRouter(name string, b byte, feeBps float64, kind market.RouterKind) market.Router {
	return market.Router{
		Name:     name,
		Address:  common.BytesToAddress([]byte{0xf0, b}),
		ChainID:  1,
		Kind:     kind,
		GasLimit: 150_000,
		FeeBps:   feeBps,
	}
}

func TestEdgeWeight(t *testing.T) {
	a, b := testToken("WETH", 1), testToken("USDC", 2)
	r := testRouter("swapx", 1, 30, market.AMMV2)

	e := NewEdge(a, b, r, 2.0, 30, big.NewInt(0))
	assert.InDelta(t, -math.Log(2.0*0.997), e.Weight, 1e-12)

	// A rate under 1/(1-fee) must carry positive weight.
	flat := NewEdge(a, b, r, 1.0, 30, big.NewInt(0))
	assert.Greater(t, flat.Weight, 0.0)
}

func TestTriangularCycleMargin(t *testing.T) {
	a, b, c := testToken("A", 1), testToken("B", 2), testToken("C", 3)
	r := testRouter("swapx", 1, 30, market.AMMV2)

	p := Path{Edges: []Edge{
		NewEdge(a, b, r, 2.0, 30, big.NewInt(100)),
		NewEdge(b, c, r, 1.5, 30, big.NewInt(100)),
		NewEdge(c, a, r, 0.4, 30, big.NewInt(100)),
	}}

	require.True(t, p.Contiguous())
	require.True(t, p.IsCycle())
	require.True(t, p.IsTriangular())
	assert.Equal(t, 3, p.Hops())

	// Rate product 1.2, three 0.3% fees: margin = 0.2 - 0.009.
	assert.InDelta(t, 0.191, p.ProfitMargin(), 1e-9)

	// The log-weight test must agree in sign with the margin.
	assert.Negative(t, p.SumWeight())

	assert.Equal(t, int64(300), p.GasCost().Int64())
}

func TestProfitMarginTable(t *testing.T) {
	a, b := testToken("A", 1), testToken("B", 2)
	r := testRouter("swapx", 1, 0, market.AMMV2)

	cases := []struct {
		name   string
		rates  []float64
		feeBps float64
		want   float64
	}{
		{"flat no fee", []float64{1.0, 1.0}, 0, 0},
		{"fee eats edge", []float64{1.0, 1.0}, 30, -0.006},
		{"thin direct win", []float64{1.01, 1.0}, 30, 0.004},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			edges := make([]Edge, len(tc.rates))
			from, to := a, b
			for i, rate := range tc.rates {
				edges[i] = NewEdge(from, to, r, rate, tc.feeBps, nil)
				from, to = to, from
			}
			p := Path{Edges: edges}
			assert.InDelta(t, tc.want, p.ProfitMargin(), 1e-9)
		})
	}
}

func TestCycleKeyRotationInvariant(t *testing.T) {
	a, b, c := testToken("A", 1), testToken("B", 2), testToken("C", 3)
	r := testRouter("swapx", 1, 30, market.AMMV2)

	ab := NewEdge(a, b, r, 2.0, 30, nil)
	bc := NewEdge(b, c, r, 1.5, 30, nil)
	ca := NewEdge(c, a, r, 0.4, 30, nil)

	p1 := Path{Edges: []Edge{ab, bc, ca}}
	p2 := Path{Edges: []Edge{bc, ca, ab}}
	p3 := Path{Edges: []Edge{ca, ab, bc}}

	require.Equal(t, p1.cycleKey(), p2.cycleKey())
	require.Equal(t, p1.cycleKey(), p3.cycleKey())

	// A different router on one leg is a different cycle.
	other := testRouter("swapy", 2, 30, market.AMMV2)
	p4 := Path{Edges: []Edge{NewEdge(a, b, other, 2.0, 30, nil), bc, ca}}
	assert.NotEqual(t, p1.cycleKey(), p4.cycleKey())
}

func TestPathContiguityChecks(t *testing.T) {
	a, b, c := testToken("A", 1), testToken("B", 2), testToken("C", 3)
	r := testRouter("swapx", 1, 30, market.AMMV2)

	broken := Path{Edges: []Edge{
		NewEdge(a, b, r, 2.0, 30, nil),
		NewEdge(c, a, r, 0.4, 30, nil), // does not start at B
	}}
	assert.False(t, broken.Contiguous())

	open := Path{Edges: []Edge{
		NewEdge(a, b, r, 2.0, 30, nil),
		NewEdge(b, c, r, 1.5, 30, nil),
	}}
	assert.True(t, open.Contiguous())
	assert.False(t, open.IsCycle())
	assert.False(t, open.IsTriangular())
}
