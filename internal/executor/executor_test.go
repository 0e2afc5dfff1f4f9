package executor

import (
	"context"
	"math/big"
	"testing"
	"time"

	"arbbot/internal/arb"
	"arbbot/internal/chain"
	"arbbot/internal/flashloan"
	"arbbot/internal/graph"
	"arbbot/internal/market"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rateQuoter prices every leg with a fixed multiplier in 1e6 parts.
type rateQuoter struct {
	numerator int64
}

func (q rateQuoter) Quote(ctx context.Context, r market.Router, tokenIn, tokenOut common.Address, amountIn *big.Int) (market.Quote, error) {
	out := new(big.Int).Mul(amountIn, big.NewInt(q.numerator))
	out.Quo(out, big.NewInt(1_000_000))
	return market.Quote{AmountOut: out, GasEstimate: r.GasLimit}, nil
}

type stubProvider struct {
	feeBps    float64
	liquidity *big.Int
}

func (p stubProvider) Name() string            { return "stub" }
func (p stubProvider) ChainID() uint64         { return 1 }
func (p stubProvider) Address() common.Address { return common.BytesToAddress([]byte{0xaa}) }
func (p stubProvider) Quote(ctx context.Context, asset common.Address, amount *big.Int) (flashloan.Terms, error) {
	return flashloan.Terms{Liquidity: p.liquidity, FeeBps: p.feeBps, Utilization: -1}, nil
}

func paperExecutor(legRate int64, feeBps float64) *Executor {
	selector := flashloan.NewSelector(zerolog.Nop())
	selector.Register(stubProvider{feeBps: feeBps, liquidity: big.NewInt(1e18)})
	return &Executor{
		clients:  map[uint64]*chain.Client{},
		quoters:  map[uint64]PathQuoter{1: rateQuoter{numerator: legRate}},
		selector: selector,
		live:     false,
		logger:   zerolog.Nop(),
	}
}

func cycleOpportunity(amountIn, expectedProfit int64) arb.Opportunity {
	a := market.Token{Symbol: "WETH", ChainID: 1, Decimals: 18}
	a.Address[19] = 1
	b := market.Token{Symbol: "USDC", ChainID: 1, Decimals: 6}
	b.Address[19] = 2
	r := market.Router{Name: "swapx", ChainID: 1, GasLimit: 150_000, FeeBps: 30}
	path := graph.Path{Edges: []graph.Edge{
		graph.NewEdge(a, b, r, 1.02, 30, big.NewInt(0)),
		graph.NewEdge(b, a, r, 1.0, 30, big.NewInt(0)),
	}}
	return arb.Opportunity{
		ID:             "test",
		Path:           path,
		AmountIn:       big.NewInt(amountIn),
		ExpectedProfit: big.NewInt(expectedProfit),
		ChainID:        1,
		DiscoveredAt:   time.Now(),
		Confidence:     0.9,
		Strategy:       arb.StrategyDirect,
	}
}

func TestExecuteRejectsStaleOpportunity(t *testing.T) {
	// Each leg returns 1.002x: two legs turn 1e6 into ~1_004_004, a profit of
	// ~4004 against an expectation of 10_000. Under the 80% floor.
	e := paperExecutor(1_002_000, 0)
	opp := cycleOpportunity(1_000_000, 10_000)

	_, err := e.Execute(context.Background(), opp, arb.ExecutionParams{SlippageBps: 10, MinProfitWei: big.NewInt(0)})
	require.ErrorIs(t, err, arb.ErrStaleOpportunity)
}

func TestExecutePaperTradeSucceeds(t *testing.T) {
	// 1.005x per leg: fresh profit ~10_025 holds above 80% of 10_000.
	e := paperExecutor(1_005_000, 0)
	opp := cycleOpportunity(1_000_000, 10_000)

	res, err := e.Execute(context.Background(), opp, arb.ExecutionParams{SlippageBps: 10, MinProfitWei: big.NewInt(0)})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(10_025), res.Profit.Int64())
	assert.Equal(t, uint64(550_000), res.GasUsed) // overhead + two 150k legs
}

func TestExecuteRejectsWhenLoanFeeErasesProfit(t *testing.T) {
	// 100bps loan fee costs 10_000 on the principal; net drops to ~25, under
	// the 5_000 minimum.
	e := paperExecutor(1_005_000, 100)
	opp := cycleOpportunity(1_000_000, 10_000)

	_, err := e.Execute(context.Background(), opp, arb.ExecutionParams{SlippageBps: 10, MinProfitWei: big.NewInt(5_000)})
	require.ErrorIs(t, err, arb.ErrValidationRejected)
	var rej *arb.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "flash_fee", rej.Stage)
}

func TestExecuteRejectsUnknownChain(t *testing.T) {
	e := paperExecutor(1_005_000, 0)
	opp := cycleOpportunity(1_000_000, 10_000)
	opp.ChainID = 999

	_, err := e.Execute(context.Background(), opp, arb.ExecutionParams{SlippageBps: 10})
	assert.ErrorIs(t, err, arb.ErrConfiguration)
}

func TestExecuteFailsWithoutProvider(t *testing.T) {
	e := paperExecutor(1_005_000, 0)
	e.selector = flashloan.NewSelector(zerolog.Nop())
	opp := cycleOpportunity(1_000_000, 10_000)

	_, err := e.Execute(context.Background(), opp, arb.ExecutionParams{SlippageBps: 10})
	assert.ErrorIs(t, err, arb.ErrNoProviderAvailable)
}
