package validate

import (
	"context"
	"math/big"
	"testing"

	"arbbot/internal/arb"
	"arbbot/internal/gas"
	"arbbot/internal/graph"
	"arbbot/internal/market"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpportunity(profit *big.Int) arb.Opportunity {
	a, b := oracleTokens()
	r := market.Router{Name: "swapx", ChainID: 1, GasLimit: 150_000, FeeBps: 30}
	edge := graph.NewEdge(a, b, r, 1.02, 30, big.NewInt(0))
	back := graph.NewEdge(b, a, r, 1.0, 30, big.NewInt(0))
	opp := arb.NewOpportunity(graph.Path{Edges: []graph.Edge{edge, back}}, ether(1), profit, 1, 0.9, arb.StrategyDirect)
	return opp
}

func newTestPipeline(risk *RiskAssessor) *Pipeline {
	stats := market.NewStatsCache()
	tracker := gas.NewTracker(0)
	return NewPipeline(
		risk,
		NewOracleValidator(stats, zerolog.Nop()),
		NewAdaptiveProfitEstimator(big.NewInt(1000), stats, tracker),
		NewSlippageEstimator(10, 5, 300, 2, stats, tracker),
		zerolog.Nop(),
	)
}

func TestPipelineApprovesCleanOpportunity(t *testing.T) {
	p := newTestPipeline(NewRiskAssessor(10, 0.05, 0.25))

	res, err := p.Validate(context.Background(), testOpportunity(ether(0.01)))
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Positive(t, res.Params.SlippageBps)
	assert.NotNil(t, res.Params.MinProfitWei)
}

func TestPipelineRejectsAtRiskStage(t *testing.T) {
	risk := NewRiskAssessor(10, 0.05, 0.25)
	p := newTestPipeline(risk)

	opp := testOpportunity(ether(0.01))
	opp.AmountIn = ether(5) // over the 2.5 ETH per-trade cap

	_, err := p.Validate(context.Background(), opp)
	require.ErrorIs(t, err, arb.ErrValidationRejected)
	var rej *arb.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "risk", rej.Stage)
}

func TestPipelineRejectsBelowAdaptiveThreshold(t *testing.T) {
	p := newTestPipeline(NewRiskAssessor(10, 0.05, 0.25))

	// 100 wei of profit cannot clear a 1000 wei base floor.
	_, err := p.Validate(context.Background(), testOpportunity(big.NewInt(100)))
	require.ErrorIs(t, err, arb.ErrValidationRejected)
	var rej *arb.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "adaptive_threshold", rej.Stage)
}
