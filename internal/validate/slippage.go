package validate

import (
	"math/big"

	"arbbot/internal/gas"
	"arbbot/internal/market"
)

// SlippageEstimator tunes the execution slippage tolerance. It never rejects;
// it only parameterizes the trade.
type SlippageEstimator struct {
	baseBps              float64
	minBps               float64
	maxBps               float64
	volatilityMultiplier float64
	stats                *market.StatsCache
	gasTracker           *gas.Tracker
}

func NewSlippageEstimator(baseBps, minBps, maxBps, volatilityMultiplier float64, stats *market.StatsCache, gasTracker *gas.Tracker) *SlippageEstimator {
	return &SlippageEstimator{
		baseBps:              baseBps,
		minBps:               minBps,
		maxBps:               maxBps,
		volatilityMultiplier: volatilityMultiplier,
		stats:                stats,
		gasTracker:           gasTracker,
	}
}

const (
	liquidityPenaltyBps  = 40
	congestionPenaltyBps = 20
)

// CalculateOptimalSlippage returns the slippage tolerance in bps:
// base + volatility scaling, a penalty when the trade eats more than 5% of
// the pair's depth, and a penalty when gas sits above the 70th percentile of
// the recent window. Clamped to the configured bounds.
func (s *SlippageEstimator) CalculateOptimalSlippage(tokenA, tokenB market.Token, tradeSize *big.Int, chainID uint64) float64 {
	bps := s.baseBps
	if st, ok := s.stats.Get(chainID, tokenA.Address); ok {
		bps += st.Volatility24h * 10000 * s.volatilityMultiplier / 100
		if st.LiquidityDepth > 0 {
			size := weiToEther(tradeSize)
			if size/st.LiquidityDepth > 0.05 {
				bps += liquidityPenaltyBps
			}
		}
	}
	if price, ok := s.gasTracker.Latest(chainID); ok {
		if s.gasTracker.PercentileOf(chainID, price) > 0.7 {
			bps += congestionPenaltyBps
		}
	}
	if bps < s.minBps {
		bps = s.minBps
	}
	if bps > s.maxBps {
		bps = s.maxBps
	}
	return bps
}
