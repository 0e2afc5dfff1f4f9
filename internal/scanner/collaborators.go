package scanner

import (
	"context"
	"math/big"

	"arbbot/internal/market"
)

// RankedToken pairs a token with its live stats.
type RankedToken struct {
	Token market.Token
	Stats market.TokenStats
}

// LiquidityRanker is the external service producing the top tokens per chain
// by volume and volatility. The engine depends only on this contract, not on
// any particular backend.
type LiquidityRanker interface {
	TopTokens(ctx context.Context, chainID uint64, limit int) ([]RankedToken, error)
}

// BridgeQuote prices moving an asset between two chains.
type BridgeQuote struct {
	AmountOut  *big.Int
	FeeBps     float64
	EtaSeconds int
}

// BridgeRouter is the external cross-chain routing service.
type BridgeRouter interface {
	QuoteBridge(ctx context.Context, fromChain, toChain uint64, symbol string, amount *big.Int) (BridgeQuote, error)
}
