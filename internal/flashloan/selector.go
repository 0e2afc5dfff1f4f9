package flashloan

import (
	"context"
	"fmt"
	"math/big"

	"arbbot/internal/arb"
	"arbbot/internal/infra/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Quote is the winning provider for a requested loan. Quotes are computed on
// demand and never cached across amount changes.
type Quote struct {
	Provider Provider
	FeeBps   float64
	MaxLoan  *big.Int
	Score    float64
}

// Selector scores every registered provider for a chain and picks the best.
type Selector struct {
	providers map[uint64][]Provider
	logger    zerolog.Logger
}

func NewSelector(logger zerolog.Logger) *Selector {
	return &Selector{providers: map[uint64][]Provider{}, logger: logger}
}

func (s *Selector) Register(p Provider) {
	s.providers[p.ChainID()] = append(s.providers[p.ChainID()], p)
}

// SelectProvider scores candidates 0-100: +40 for sufficient liquidity, up to
// +30 inversely with fee, up to +20 with the liquidity/amount ratio (capped),
// up to +10 inversely with utilization (providers without a utilization
// concept take the full +10). Ties favor the zero-fee provider. Fails with
// NoProviderAvailable when nothing can fund the amount.
func (s *Selector) SelectProvider(ctx context.Context, asset common.Address, amount *big.Int, chainID uint64) (Quote, error) {
	candidates := s.providers[chainID]
	if len(candidates) == 0 {
		return Quote{}, fmt.Errorf("%w: no providers on chain %d", arb.ErrNoProviderAvailable, chainID)
	}
	var best Quote
	found := false
	for _, p := range candidates {
		terms, err := p.Quote(ctx, asset, amount)
		if err != nil {
			s.logger.Debug().Err(err).Str("provider", p.Name()).Msg("flash loan quote failed")
			continue
		}
		if terms.Liquidity == nil || terms.Liquidity.Cmp(amount) < 0 {
			continue
		}
		q := Quote{Provider: p, FeeBps: terms.FeeBps, MaxLoan: terms.Liquidity, Score: Score(terms, amount)}
		better := q.Score > best.Score ||
			(q.Score == best.Score && q.FeeBps == 0 && best.FeeBps > 0)
		if !found || better {
			best = q
			found = true
		}
	}
	if !found {
		return Quote{}, fmt.Errorf("%w: no provider has %s liquidity on chain %d", arb.ErrNoProviderAvailable, amount, chainID)
	}
	metrics.FlashLoanSelections.WithLabelValues(best.Provider.Name()).Inc()
	return best, nil
}

// Score computes the 0-100 provider score for the given terms and amount.
func Score(terms Terms, amount *big.Int) float64 {
	score := 0.0
	if terms.Liquidity != nil && terms.Liquidity.Cmp(amount) >= 0 {
		score += 40
	}
	score += 30 / (1 + terms.FeeBps)
	if amount.Sign() > 0 && terms.Liquidity != nil {
		ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(terms.Liquidity), new(big.Float).SetInt(amount)).Float64()
		depth := 20 * ratio / 10
		if depth > 20 {
			depth = 20
		}
		score += depth
	}
	if terms.Utilization < 0 {
		score += 10
	} else {
		u := terms.Utilization
		if u > 1 {
			u = 1
		}
		score += 10 * (1 - u)
	}
	return score
}
