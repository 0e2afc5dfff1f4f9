package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"

	"arbbot/internal/arb"
	"arbbot/internal/infra/network"
	"arbbot/internal/market"

	"github.com/ethereum/go-ethereum/common"
)

// HTTPRanker talks to the liquidity ranking service's JSON API. The service
// aggregates DEX volume off-path; the engine only reads its ranked output.
type HTTPRanker struct {
	base   string
	client *http.Client
}

func NewHTTPRanker(baseURL string) *HTTPRanker {
	return &HTTPRanker{base: baseURL, client: network.NewHTTPClient()}
}

type rankedTokenDTO struct {
	Symbol         string  `json:"symbol"`
	Address        string  `json:"address"`
	Decimals       uint8   `json:"decimals"`
	Volatility24h  float64 `json:"volatility_24h"`
	LiquidityDepth float64 `json:"liquidity_depth"`
	Volume24h      float64 `json:"volume_24h"`
}

func (r *HTTPRanker) TopTokens(ctx context.Context, chainID uint64, limit int) ([]RankedToken, error) {
	u := fmt.Sprintf("%s/v1/tokens/top?chain=%d&limit=%d", r.base, chainID, limit)
	var dtos []rankedTokenDTO
	if err := getJSON(ctx, r.client, u, &dtos); err != nil {
		return nil, err
	}
	out := make([]RankedToken, 0, len(dtos))
	for _, d := range dtos {
		if !common.IsHexAddress(d.Address) {
			continue
		}
		out = append(out, RankedToken{
			Token: market.Token{
				Address:  common.HexToAddress(d.Address),
				Symbol:   d.Symbol,
				ChainID:  chainID,
				Decimals: d.Decimals,
			},
			Stats: market.TokenStats{
				Volatility24h:  d.Volatility24h,
				LiquidityDepth: d.LiquidityDepth,
				Volume24h:      d.Volume24h,
			},
		})
	}
	return out, nil
}

// HTTPBridge quotes asset transfers through the bridge aggregator's API.
type HTTPBridge struct {
	base   string
	client *http.Client
}

func NewHTTPBridge(baseURL string) *HTTPBridge {
	return &HTTPBridge{base: baseURL, client: network.NewHTTPClient()}
}

type bridgeQuoteDTO struct {
	AmountOut  string  `json:"amount_out"`
	FeeBps     float64 `json:"fee_bps"`
	EtaSeconds int     `json:"eta_seconds"`
}

func (b *HTTPBridge) QuoteBridge(ctx context.Context, fromChain, toChain uint64, symbol string, amount *big.Int) (BridgeQuote, error) {
	u := fmt.Sprintf("%s/v1/quote?from=%d&to=%d&symbol=%s&amount=%s",
		b.base, fromChain, toChain, url.QueryEscape(symbol), amount)
	var dto bridgeQuoteDTO
	if err := getJSON(ctx, b.client, u, &dto); err != nil {
		return BridgeQuote{}, err
	}
	out, ok := new(big.Int).SetString(dto.AmountOut, 10)
	if !ok {
		return BridgeQuote{}, fmt.Errorf("bridge quote: bad amount_out %q", dto.AmountOut)
	}
	return BridgeQuote{AmountOut: out, FeeBps: dto.FeeBps, EtaSeconds: dto.EtaSeconds}, nil
}

func getJSON(ctx context.Context, client *http.Client, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", arb.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", arb.ErrNetwork, req.URL.Host, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
