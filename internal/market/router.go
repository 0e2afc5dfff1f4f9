package market

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// RouterKind is the closed set of supported DEX quoting models.
type RouterKind int

const (
	AMMV2 RouterKind = iota
	AMMV3
	StableCurve
	PerpSpot
	WeightedBalancer
)

func (k RouterKind) String() string {
	switch k {
	case AMMV2:
		return "amm_v2"
	case AMMV3:
		return "amm_v3"
	case StableCurve:
		return "stable_curve"
	case PerpSpot:
		return "perp_spot"
	case WeightedBalancer:
		return "weighted_balancer"
	default:
		return "unknown"
	}
}

// ParseRouterKind maps a config string to a RouterKind.
func ParseRouterKind(s string) (RouterKind, bool) {
	switch s {
	case "amm_v2":
		return AMMV2, true
	case "amm_v3":
		return AMMV3, true
	case "stable_curve":
		return StableCurve, true
	case "perp_spot":
		return PerpSpot, true
	case "weighted_balancer":
		return WeightedBalancer, true
	}
	return 0, false
}

// Token identifies an ERC-20 on a specific chain. Live volatility and
// liquidity figures are cached by consumers, never stored here.
type Token struct {
	Address  common.Address
	Symbol   string
	ChainID  uint64
	Decimals uint8
}

// Router is one entry of the static per-chain router catalog.
type Router struct {
	Name           string
	Address        common.Address
	ChainID        uint64
	Kind           RouterKind
	GasLimit       uint64
	FeeBps         float64
	LiquidityScore float64

	// PoolTokens orders the pool's coins for index-addressed quoting
	// (StableCurve). PoolID identifies the pool on vault-routed kinds
	// (WeightedBalancer). Unused for the other kinds.
	PoolTokens []common.Address
	PoolID     [32]byte
}

// coinIndexes resolves the pool coin indexes of a token pair, for routers that
// quote by index rather than address.
func (r Router) coinIndexes(tokenIn, tokenOut common.Address) (int64, int64, bool) {
	i, j := int64(-1), int64(-1)
	for idx, c := range r.PoolTokens {
		if c == tokenIn {
			i = int64(idx)
		}
		if c == tokenOut {
			j = int64(idx)
		}
	}
	if i < 0 || j < 0 || i == j {
		return 0, 0, false
	}
	return i, j, true
}

// Catalog holds the router and token universe for every configured chain.
// Routers are static after startup; the token universe is replaced wholesale
// by the liquidity ranking refresh, so reads hand out the current slice and
// writers swap it under the lock.
type Catalog struct {
	mu      sync.RWMutex
	routers map[uint64][]Router
	tokens  map[uint64][]Token
}

func NewCatalog() *Catalog {
	return &Catalog{routers: map[uint64][]Router{}, tokens: map[uint64][]Token{}}
}

func (c *Catalog) AddRouter(r Router) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routers[r.ChainID] = append(c.routers[r.ChainID], r)
}

func (c *Catalog) AddToken(t Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[t.ChainID] = append(c.tokens[t.ChainID], t)
}

// Routers returns the router catalog for a chain; empty when none configured.
func (c *Catalog) Routers(chainID uint64) []Router {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.routers[chainID]
}

// Tokens returns the current token universe for a chain. Callers must not
// mutate the returned slice.
func (c *Catalog) Tokens(chainID uint64) []Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens[chainID]
}

// SetTokens replaces the token universe for a chain, used when the liquidity
// ranking refresh produces a new top list.
func (c *Catalog) SetTokens(chainID uint64, tokens []Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[chainID] = tokens
}

// TokenBySymbol looks a token up by symbol on one chain.
func (c *Catalog) TokenBySymbol(chainID uint64, symbol string) (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tokens[chainID] {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}
