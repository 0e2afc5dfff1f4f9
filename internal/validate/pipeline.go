package validate

import (
	"context"
	"fmt"
	"time"

	"arbbot/internal/arb"
	"arbbot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Pipeline runs the four validation stages in order and short-circuits on the
// first rejection: risk, oracle, adaptive threshold, slippage. The slippage
// stage cannot reject; it only contributes execution parameters.
type Pipeline struct {
	risk     *RiskAssessor
	oracle   *OracleValidator
	adaptive *AdaptiveProfitEstimator
	slippage *SlippageEstimator
	logger   zerolog.Logger
}

func NewPipeline(risk *RiskAssessor, oracle *OracleValidator, adaptive *AdaptiveProfitEstimator, slippage *SlippageEstimator, logger zerolog.Logger) *Pipeline {
	return &Pipeline{risk: risk, oracle: oracle, adaptive: adaptive, slippage: slippage, logger: logger}
}

// Validate gates one opportunity. A nil error means approved; the returned
// result then carries the tuned execution parameters. Rejections return an
// error matching arb.ErrValidationRejected with the stage recorded.
func (p *Pipeline) Validate(ctx context.Context, opp arb.Opportunity) (arb.ValidationResult, error) {
	start := time.Now()
	defer func() {
		metrics.ValidationLatencyMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	gasCost := opp.Path.GasCost()

	riskRes := p.risk.AssessTradeRisk(RiskInput{
		AmountIn:       opp.AmountIn,
		ExpectedProfit: opp.ExpectedProfit,
		GasCost:        gasCost,
		Strategy:       opp.Strategy,
		ChainID:        opp.ChainID,
		Confidence:     opp.Confidence,
	})
	if !riskRes.Approved {
		metrics.OpportunitiesRejected.WithLabelValues("risk").Inc()
		return riskRes, arb.Reject("risk", firstWarning(riskRes.Warnings))
	}

	first := opp.Path.Edges[0]
	oracleRes := p.oracle.ValidateTokenPrice(ctx, first.From, first.To, first.Rate, opp.ChainID, weiToEther(opp.AmountIn))
	switch oracleRes.Recommendation {
	case RecommendReject:
		metrics.OpportunitiesRejected.WithLabelValues("oracle").Inc()
		res := arb.ValidationResult{Approved: false, RiskLevel: oracleRes.RiskLevel, Warnings: oracleRes.Warnings}
		return res, arb.Reject("oracle", fmt.Sprintf("manipulation score %d, deviation %.0fbps", oracleRes.ManipulationScore, oracleRes.DeviationBps))
	case RecommendCaution:
		metrics.ValidationCautions.Inc()
		p.logger.Warn().
			Str("opportunity", opp.ID).
			Int("manipulation_score", oracleRes.ManipulationScore).
			Strs("warnings", oracleRes.Warnings).
			Msg("oracle caution, proceeding")
	}

	minProfit := p.adaptive.CalculateOptimalThreshold(first.From, first.To, opp.AmountIn, gasCost, opp.ChainID)
	if opp.ExpectedProfit.Cmp(minProfit) < 0 {
		metrics.OpportunitiesRejected.WithLabelValues("adaptive_threshold").Inc()
		res := arb.ValidationResult{Approved: false, RiskLevel: riskRes.RiskLevel}
		return res, arb.Reject("adaptive_threshold", fmt.Sprintf("expected profit %s below adaptive minimum %s", opp.ExpectedProfit, minProfit))
	}

	slippageBps := p.slippage.CalculateOptimalSlippage(first.From, first.To, opp.AmountIn, opp.ChainID)

	warnings := append(append([]string{}, riskRes.Warnings...), oracleRes.Warnings...)
	level := riskRes.RiskLevel
	if oracleRes.RiskLevel > level {
		level = oracleRes.RiskLevel
	}
	return arb.ValidationResult{
		Approved:  true,
		RiskLevel: level,
		Warnings:  warnings,
		Params: arb.ExecutionParams{
			SlippageBps:  slippageBps,
			MinProfitWei: minProfit,
		},
	}, nil
}

func firstWarning(w []string) string {
	if len(w) == 0 {
		return "rejected"
	}
	return w[0]
}
