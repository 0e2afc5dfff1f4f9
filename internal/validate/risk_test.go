package validate

import (
	"math/big"
	"testing"

	"arbbot/internal/arb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ether(f float64) *big.Int {
	out, _ := new(big.Float).Mul(big.NewFloat(f), big.NewFloat(1e18)).Int(nil)
	return out
}

func TestRiskRejectsOversizedTrade(t *testing.T) {
	r := NewRiskAssessor(10, 0.05, 0.25) // 10 ETH capital, 2.5 ETH per trade

	res := r.AssessTradeRisk(RiskInput{
		AmountIn:       ether(3),
		ExpectedProfit: ether(0.1),
		GasCost:        ether(0.01),
		Strategy:       arb.StrategyTriangular,
		Confidence:     0.9,
	})
	require.False(t, res.Approved)
	assert.Equal(t, arb.RiskCritical, res.RiskLevel)
}

func TestRiskRejectsWhenSessionBudgetSpent(t *testing.T) {
	r := NewRiskAssessor(10, 0.05, 0.25) // 0.5 ETH loss budget

	r.RecordResult(-0.4)
	assert.InDelta(t, 0.4, r.SessionLoss(), 1e-12)

	// 0.4 lost + 0.2 worst-case gas burn breaches the 0.5 budget.
	res := r.AssessTradeRisk(RiskInput{
		AmountIn:       ether(1),
		ExpectedProfit: ether(0.1),
		GasCost:        ether(0.2),
		Strategy:       arb.StrategyDirect,
		Confidence:     0.9,
	})
	require.False(t, res.Approved)
	assert.Equal(t, arb.RiskCritical, res.RiskLevel)

	// Profits never shrink the recorded loss.
	r.RecordResult(1.0)
	assert.InDelta(t, 0.4, r.SessionLoss(), 1e-12)
}

func TestRiskWarningsEscalateLevel(t *testing.T) {
	r := NewRiskAssessor(10, 0.05, 0.25)

	res := r.AssessTradeRisk(RiskInput{
		AmountIn:       ether(1),
		ExpectedProfit: ether(0.01),
		GasCost:        ether(0.008),
		Strategy:       arb.StrategyMultiHop,
		Confidence:     0.4,
	})
	require.True(t, res.Approved)
	assert.Equal(t, arb.RiskMedium, res.RiskLevel)
	assert.Len(t, res.Warnings, 3) // low confidence, gas ratio, extra legs

	nearCap := r.AssessTradeRisk(RiskInput{
		AmountIn:       ether(2.2),
		ExpectedProfit: ether(0.1),
		GasCost:        ether(0.001),
		Strategy:       arb.StrategyDirect,
		Confidence:     0.9,
	})
	require.True(t, nearCap.Approved)
	assert.Equal(t, arb.RiskHigh, nearCap.RiskLevel)
}
