package validate

import (
	"math/big"
	"testing"
	"time"

	"arbbot/internal/gas"
	"arbbot/internal/market"

	"github.com/stretchr/testify/assert"
)

func fixedClock(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)
	}
}

func TestBucketForHour(t *testing.T) {
	assert.Equal(t, BucketQuiet, BucketForHour(3))
	assert.Equal(t, BucketActive, BucketForHour(9))
	assert.Equal(t, BucketPeak, BucketForHour(13))
	assert.Equal(t, BucketPeak, BucketForHour(17))
	assert.Equal(t, BucketActive, BucketForHour(20))
	assert.Equal(t, BucketQuiet, BucketForHour(23))
}

func TestThresholdFloorAndDayScaling(t *testing.T) {
	a, _ := oracleTokens()
	base := big.NewInt(1000)
	gasCost := big.NewInt(100)

	e := NewAdaptiveProfitEstimator(base, market.NewStatsCache(), gas.NewTracker(0))

	// Active hours, no stats, no gas history: floor is base + 2x gas.
	e.now = fixedClock(9)
	got := e.CalculateOptimalThreshold(a, market.Token{}, big.NewInt(0), gasCost, 1)
	assert.Equal(t, int64(1200), got.Int64())

	// Quiet hours relax the floor by 20%.
	e.now = fixedClock(3)
	got = e.CalculateOptimalThreshold(a, market.Token{}, big.NewInt(0), gasCost, 1)
	assert.Equal(t, int64(960), got.Int64())

	// Peak hours tighten it by 30%.
	e.now = fixedClock(15)
	got = e.CalculateOptimalThreshold(a, market.Token{}, big.NewInt(0), gasCost, 1)
	assert.Equal(t, int64(1560), got.Int64())
}

func TestThresholdScalesWithVolatility(t *testing.T) {
	a, _ := oracleTokens()
	stats := market.NewStatsCache()
	stats.Put(1, a.Address, market.TokenStats{Volatility24h: 0.05})

	e := NewAdaptiveProfitEstimator(big.NewInt(1000), stats, gas.NewTracker(0))
	e.now = fixedClock(9)

	// 5% volatility adds 25% to the multiplier.
	got := e.CalculateOptimalThreshold(a, market.Token{}, big.NewInt(0), big.NewInt(100), 1)
	assert.Equal(t, int64(1500), got.Int64())
}

func TestThresholdScalesWithGasCompetition(t *testing.T) {
	a, _ := oracleTokens()
	tracker := gas.NewTracker(0)
	for _, gwei := range []float64{10, 20, 30, 40, 50} {
		tracker.Observe(1, gwei)
	}

	e := NewAdaptiveProfitEstimator(big.NewInt(1000), market.NewStatsCache(), tracker)
	e.now = fixedClock(9)

	// Latest price sits at the 0.8 percentile: multiplier 1.3.
	got := e.CalculateOptimalThreshold(a, market.Token{}, big.NewInt(0), big.NewInt(0), 1)
	assert.Equal(t, int64(1300), got.Int64())
}
