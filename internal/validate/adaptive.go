package validate

import (
	"math/big"
	"time"

	"arbbot/internal/gas"
	"arbbot/internal/market"
)

// DayBucket classifies UTC hours by expected searcher competition.
type DayBucket int

const (
	BucketQuiet DayBucket = iota
	BucketActive
	BucketPeak
)

// BucketForHour maps a UTC hour to its activity bucket. Peak is 13-17 UTC,
// the US/EU market overlap.
func BucketForHour(hour int) DayBucket {
	switch {
	case hour >= 13 && hour <= 17:
		return BucketPeak
	case hour >= 7 && hour < 13 || hour > 17 && hour <= 22:
		return BucketActive
	default:
		return BucketQuiet
	}
}

// AdaptiveProfitEstimator scales the minimum acceptable profit with
// volatility, liquidity depth, competition (recent gas percentile) and time
// of day.
type AdaptiveProfitEstimator struct {
	baseMinProfitWei *big.Int
	stats            *market.StatsCache
	gasTracker       *gas.Tracker
	now              func() time.Time
}

func NewAdaptiveProfitEstimator(baseMinProfitWei *big.Int, stats *market.StatsCache, gasTracker *gas.Tracker) *AdaptiveProfitEstimator {
	return &AdaptiveProfitEstimator{
		baseMinProfitWei: baseMinProfitWei,
		stats:            stats,
		gasTracker:       gasTracker,
		now:              time.Now,
	}
}

// CalculateOptimalThreshold returns the minimum profit in wei for a trade on
// the given pair. The floor is the base threshold plus twice the gas cost,
// scaled up under volatility, thin liquidity, gas competition and peak hours.
func (a *AdaptiveProfitEstimator) CalculateOptimalThreshold(tokenA, tokenB market.Token, tradeSize *big.Int, gasCost *big.Int, chainID uint64) *big.Int {
	floor := new(big.Int).Set(a.baseMinProfitWei)
	if gasCost != nil {
		floor.Add(floor, new(big.Int).Mul(gasCost, big.NewInt(2)))
	}

	multiplier := 1.0
	if s, ok := a.stats.Get(chainID, tokenA.Address); ok {
		// 5% daily volatility adds 25% to the threshold.
		multiplier += s.Volatility24h * 5
		if s.LiquidityDepth > 0 {
			size := weiToEther(tradeSize)
			if ratio := size / s.LiquidityDepth; ratio > 0.05 {
				multiplier += ratio * 2
			}
		}
	}
	if price, ok := a.gasTracker.Latest(chainID); ok {
		pct := a.gasTracker.PercentileOf(chainID, price)
		if pct > 0.5 {
			multiplier += (pct - 0.5) // up to +0.5 at the top of the window
		}
	}
	switch BucketForHour(a.now().UTC().Hour()) {
	case BucketQuiet:
		multiplier *= 0.8
	case BucketPeak:
		multiplier *= 1.3
	}

	scaled, _ := new(big.Float).Mul(new(big.Float).SetInt(floor), big.NewFloat(multiplier)).Int(nil)
	return scaled
}
