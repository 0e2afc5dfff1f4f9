package market

import (
	"fmt"

	"arbbot/internal/config"

	"github.com/ethereum/go-ethereum/common"
)

// LoadCatalog builds the startup catalog from configuration. The token list
// seeds the universe until the first liquidity ranking refresh replaces it.
func LoadCatalog(cfg config.Config) (*Catalog, error) {
	c := NewCatalog()
	for _, entry := range cfg.Routers {
		kind, ok := ParseRouterKind(entry.Kind)
		if !ok {
			return nil, fmt.Errorf("router %q: unknown kind %q", entry.Name, entry.Kind)
		}
		if !common.IsHexAddress(entry.Address) {
			return nil, fmt.Errorf("router %q: bad address %q", entry.Name, entry.Address)
		}
		r := Router{
			Name:           entry.Name,
			Address:        common.HexToAddress(entry.Address),
			ChainID:        entry.ChainID,
			Kind:           kind,
			GasLimit:       entry.GasLimit,
			FeeBps:         entry.FeeBps,
			LiquidityScore: entry.LiquidityScore,
		}
		if r.GasLimit == 0 {
			r.GasLimit = 150_000
		}
		for _, pt := range entry.PoolTokens {
			if !common.IsHexAddress(pt) {
				return nil, fmt.Errorf("router %q: bad pool token %q", entry.Name, pt)
			}
			r.PoolTokens = append(r.PoolTokens, common.HexToAddress(pt))
		}
		if entry.PoolID != "" {
			id := common.HexToHash(entry.PoolID)
			copy(r.PoolID[:], id[:])
		}
		c.AddRouter(r)
	}
	for _, entry := range cfg.Tokens {
		if !common.IsHexAddress(entry.Address) {
			return nil, fmt.Errorf("token %q: bad address %q", entry.Symbol, entry.Address)
		}
		c.AddToken(Token{
			Address:  common.HexToAddress(entry.Address),
			Symbol:   entry.Symbol,
			ChainID:  entry.ChainID,
			Decimals: entry.Decimals,
		})
	}
	return c, nil
}
