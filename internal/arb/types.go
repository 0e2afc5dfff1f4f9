package arb

import (
	"math/big"
	"time"

	"arbbot/internal/graph"

	"github.com/google/uuid"
)

// Strategy tags how an opportunity was discovered.
type Strategy string

const (
	StrategyDirect     Strategy = "direct"
	StrategyTriangular Strategy = "triangular"
	StrategyMultiHop   Strategy = "multihop"
	StrategyCrossChain Strategy = "crosschain"
)

// RiskLevel grades validation outcomes.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Opportunity is a candidate trade produced by a scanner. At most one
// execution may ever be in flight per ID.
type Opportunity struct {
	ID             string
	Path           graph.Path
	AmountIn       *big.Int
	ExpectedProfit *big.Int // wei, at discovery time
	ChainID        uint64
	DiscoveredAt   time.Time
	Confidence     float64 // 0..1
	Strategy       Strategy
	Worker         int // scanner that found it
}

func NewOpportunity(path graph.Path, amountIn, expectedProfit *big.Int, chainID uint64, confidence float64, strategy Strategy) Opportunity {
	return Opportunity{
		ID:             uuid.NewString(),
		Path:           path,
		AmountIn:       amountIn,
		ExpectedProfit: expectedProfit,
		ChainID:        chainID,
		DiscoveredAt:   time.Now(),
		Confidence:     confidence,
		Strategy:       strategy,
	}
}

// StrategyFor derives the strategy tag from path shape.
func StrategyFor(p graph.Path) Strategy {
	switch {
	case p.IsTriangular():
		return StrategyTriangular
	case p.Hops() == 2:
		return StrategyDirect
	default:
		return StrategyMultiHop
	}
}

// ExecutionParams carries the tuned execution inputs produced by the
// validation pipeline.
type ExecutionParams struct {
	SlippageBps  float64
	MinProfitWei *big.Int
}

// ValidationResult is the outcome of one pipeline stage, or of the whole
// pipeline once the stages are merged.
type ValidationResult struct {
	Approved  bool
	RiskLevel RiskLevel
	Warnings  []string
	Params    ExecutionParams
}

// ExecutionResult reports what came back from the relay for one dispatched
// opportunity.
type ExecutionResult struct {
	Success bool
	Profit  *big.Int // wei, negative when the attempt lost money
	GasUsed uint64
}
