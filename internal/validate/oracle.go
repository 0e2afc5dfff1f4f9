package validate

import (
	"context"
	"math"
	"strconv"
	"sync"

	"arbbot/internal/arb"
	"arbbot/internal/infra/metrics"
	"arbbot/internal/market"

	"github.com/rs/zerolog"
)

// PriceSource is one contributor to the consensus price. The DEX spot price
// is always included; on-chain feeds, TWAPs and off-chain indexes register as
// additional sources.
type PriceSource interface {
	Name() string
	Weight() float64
	Price(ctx context.Context, tokenA, tokenB market.Token) (float64, error)
}

// Recommendation is the oracle stage verdict.
type Recommendation int

const (
	RecommendProceed Recommendation = iota
	RecommendCaution
	RecommendReject
)

func (r Recommendation) String() string {
	switch r {
	case RecommendProceed:
		return "proceed"
	case RecommendCaution:
		return "caution"
	case RecommendReject:
		return "reject"
	default:
		return "unknown"
	}
}

// PriceValidationResult reports consensus deviation and the manipulation
// score for one pair.
type PriceValidationResult struct {
	ConsensusPrice    float64
	DeviationBps      float64
	RiskLevel         arb.RiskLevel
	ManipulationScore int
	Recommendation    Recommendation
	Warnings          []string
}

type pairSample struct {
	price     float64
	liquidity float64
}

// OracleValidator detects spot-price manipulation by comparing the DEX price
// against a confidence-weighted consensus and against the last stored sample
// per pair.
type OracleValidator struct {
	sources []PriceSource
	stats   *market.StatsCache
	logger  zerolog.Logger

	mu      sync.Mutex
	history map[string]pairSample
}

func NewOracleValidator(stats *market.StatsCache, logger zerolog.Logger, sources ...PriceSource) *OracleValidator {
	return &OracleValidator{sources: sources, stats: stats, logger: logger, history: map[string]pairSample{}}
}

// Fixed point contributions to the manipulation score.
const (
	pointsDeviationCritical = 40
	pointsDeviationHigh     = 30
	pointsDeviationMedium   = 20
	pointsDeviationLow      = 10
	pointsAbnormalVolume    = 10
	pointsPriceGap          = 20
	pointsCrossVenue        = 15
	pointsLiquidityDrain    = 15

	rejectScore  = 70
	cautionScore = 40
)

// ValidateTokenPrice scores the DEX price for pair A/B on one chain given the
// intended trade size (in units of tokenA).
func (o *OracleValidator) ValidateTokenPrice(ctx context.Context, tokenA, tokenB market.Token, dexPrice float64, chainID uint64, tradeSize float64) PriceValidationResult {
	res := PriceValidationResult{Recommendation: RecommendProceed, RiskLevel: arb.RiskLow}
	if dexPrice <= 0 {
		res.Recommendation = RecommendReject
		res.RiskLevel = arb.RiskCritical
		res.Warnings = append(res.Warnings, "non-positive dex price")
		return res
	}

	// Consensus: the DEX spot itself (weight 1) plus registered sources.
	prices := []float64{dexPrice}
	weights := []float64{1}
	for _, s := range o.sources {
		p, err := s.Price(ctx, tokenA, tokenB)
		if err != nil || p <= 0 {
			o.logger.Debug().Err(err).Str("source", s.Name()).Msg("price source unavailable")
			continue
		}
		prices = append(prices, p)
		weights = append(weights, s.Weight())
	}
	var sum, wsum float64
	for i, p := range prices {
		sum += p * weights[i]
		wsum += weights[i]
	}
	consensus := sum / wsum
	res.ConsensusPrice = consensus
	res.DeviationBps = math.Abs(dexPrice-consensus) / consensus * 10000

	score := 0
	switch {
	case res.DeviationBps >= 1000:
		score += pointsDeviationCritical
		res.RiskLevel = arb.RiskCritical
		res.Warnings = append(res.Warnings, "price deviates over 1000bps from consensus")
	case res.DeviationBps >= 500:
		score += pointsDeviationHigh
		res.RiskLevel = arb.RiskHigh
		res.Warnings = append(res.Warnings, "price deviates over 500bps from consensus")
	case res.DeviationBps >= 200:
		score += pointsDeviationMedium
		res.RiskLevel = arb.RiskHigh
	case res.DeviationBps >= 50:
		score += pointsDeviationLow
		res.RiskLevel = arb.RiskMedium
	}

	stats, haveStats := o.stats.Get(chainID, tokenA.Address)
	if haveStats && stats.LiquidityDepth > 0 && tradeSize > 0.1*stats.LiquidityDepth {
		score += pointsAbnormalVolume
		res.Warnings = append(res.Warnings, "trade size abnormal versus liquidity")
	}

	// Compare against the last stored sample for the pair.
	key := graphPairKey(tokenA, tokenB, chainID)
	o.mu.Lock()
	prev, havePrev := o.history[key]
	o.history[key] = pairSample{price: dexPrice, liquidity: statsLiquidity(stats, haveStats)}
	o.mu.Unlock()
	if havePrev && prev.price > 0 {
		gap := math.Abs(dexPrice-prev.price) / prev.price
		if gap > 0.05 {
			score += pointsPriceGap
			res.Warnings = append(res.Warnings, "price gapped over 5% from last sample")
		}
		if prev.liquidity > 0 && haveStats && stats.LiquidityDepth < prev.liquidity*0.7 {
			score += pointsLiquidityDrain
			res.Warnings = append(res.Warnings, "liquidity drained over 30% since last sample")
		}
	}

	// Cross-venue divergence across the non-DEX sources.
	if len(prices) > 2 {
		lo, hi := prices[1], prices[1]
		for _, p := range prices[2:] {
			lo = math.Min(lo, p)
			hi = math.Max(hi, p)
		}
		if lo > 0 && (hi-lo)/lo*10000 > 200 {
			score += pointsCrossVenue
			res.Warnings = append(res.Warnings, "price sources diverge across venues")
		}
	}

	res.ManipulationScore = score
	metrics.ManipulationScore.Observe(float64(score))
	switch {
	case score > rejectScore || res.RiskLevel == arb.RiskCritical:
		res.Recommendation = RecommendReject
	case score > cautionScore:
		res.Recommendation = RecommendCaution
	}
	return res
}

func statsLiquidity(s market.TokenStats, ok bool) float64 {
	if !ok {
		return 0
	}
	return s.LiquidityDepth
}

func graphPairKey(a, b market.Token, chainID uint64) string {
	x, y := a.Address.Hex(), b.Address.Hex()
	if x > y {
		x, y = y, x
	}
	return x + ":" + y + ":" + strconv.FormatUint(chainID, 10)
}
