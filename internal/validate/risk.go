package validate

import (
	"fmt"
	"math/big"
	"sync"

	"arbbot/internal/arb"

	"github.com/ethereum/go-ethereum/params"
)

// RiskAssessor gates trades against session-level capital limits. It is the
// only stage that carries state across opportunities: the running session
// loss.
type RiskAssessor struct {
	capitalEther       float64
	maxSessionLossFrac float64
	maxTradeFrac       float64

	mu          sync.Mutex
	sessionLoss float64 // ether, positive means lost
}

func NewRiskAssessor(capitalEther, maxSessionLossFrac, maxTradeFrac float64) *RiskAssessor {
	return &RiskAssessor{
		capitalEther:       capitalEther,
		maxSessionLossFrac: maxSessionLossFrac,
		maxTradeFrac:       maxTradeFrac,
	}
}

// RecordResult feeds realized profit (negative for losses) back into the
// session tally.
func (r *RiskAssessor) RecordResult(profitEther float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if profitEther < 0 {
		r.sessionLoss += -profitEther
	}
}

// SessionLoss returns the cumulative realized loss in ether.
func (r *RiskAssessor) SessionLoss() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionLoss
}

// RiskInput is everything the assessment needs, fixed at call time so the
// stage stays unit-testable.
type RiskInput struct {
	AmountIn       *big.Int
	ExpectedProfit *big.Int
	GasCost        *big.Int
	Strategy       arb.Strategy
	ChainID        uint64
	Confidence     float64
}

// AssessTradeRisk rejects when the trade would breach the per-trade capital
// cap or when a worst-case loss would push the session past its loss budget.
func (r *RiskAssessor) AssessTradeRisk(in RiskInput) arb.ValidationResult {
	amount := weiToEther(in.AmountIn)
	profit := weiToEther(in.ExpectedProfit)
	gasCost := weiToEther(in.GasCost)

	var warnings []string
	level := arb.RiskLow

	maxTrade := r.capitalEther * r.maxTradeFrac
	if amount > maxTrade {
		return arb.ValidationResult{
			Approved:  false,
			RiskLevel: arb.RiskCritical,
			Warnings:  []string{fmt.Sprintf("trade size %.4f exceeds per-trade cap %.4f", amount, maxTrade)},
		}
	}

	// Worst case on a reverted bundle is the gas burned.
	lossBudget := r.capitalEther * r.maxSessionLossFrac
	if r.SessionLoss()+gasCost > lossBudget {
		return arb.ValidationResult{
			Approved:  false,
			RiskLevel: arb.RiskCritical,
			Warnings:  []string{fmt.Sprintf("session loss %.4f + gas %.4f would exceed budget %.4f", r.SessionLoss(), gasCost, lossBudget)},
		}
	}

	if in.Confidence < 0.5 {
		warnings = append(warnings, fmt.Sprintf("low confidence %.2f", in.Confidence))
		level = arb.RiskMedium
	}
	if profit > 0 && gasCost > profit/2 {
		warnings = append(warnings, "gas cost exceeds half of expected profit")
		if level < arb.RiskMedium {
			level = arb.RiskMedium
		}
	}
	if in.Strategy == arb.StrategyMultiHop || in.Strategy == arb.StrategyCrossChain {
		warnings = append(warnings, string(in.Strategy)+" strategy carries extra legs")
		if level < arb.RiskMedium {
			level = arb.RiskMedium
		}
	}
	if amount > maxTrade*0.8 {
		warnings = append(warnings, "trade size near per-trade cap")
		level = arb.RiskHigh
	}

	return arb.ValidationResult{Approved: true, RiskLevel: level, Warnings: warnings}
}

func weiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return f
}
