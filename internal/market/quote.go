package market

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller abstracts the eth_call surface of a chain client so quoting
// stays independent of the RPC implementation.
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Quote is the result of asking one router for a swap price.
type Quote struct {
	AmountOut   *big.Int
	GasEstimate uint64
}

var (
	v2ABI       = mustABI(`[{"name":"getAmountsOut","type":"function","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}]`)
	v3QuoterABI = mustABI(`[{"name":"quoteExactInputSingle","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"amountIn","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}],"outputs":[{"name":"amountOut","type":"uint256"}]}]`)
	curveABI    = mustABI(`[{"name":"get_dy","type":"function","stateMutability":"view","inputs":[{"name":"i","type":"int128"},{"name":"j","type":"int128"},{"name":"dx","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}]`)
	vaultABI    = mustABI(`[{"name":"getMaxPrice","type":"function","stateMutability":"view","inputs":[{"name":"_token","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},{"name":"getMinPrice","type":"function","stateMutability":"view","inputs":[{"name":"_token","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`)
	weightedABI = mustABI(`[{"name":"queryBatchSwap","type":"function","stateMutability":"nonpayable","inputs":[{"name":"kind","type":"uint8"},{"name":"swaps","type":"tuple[]","components":[{"name":"poolId","type":"bytes32"},{"name":"assetInIndex","type":"uint256"},{"name":"assetOutIndex","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"userData","type":"bytes"}]},{"name":"assets","type":"address[]"},{"name":"funds","type":"tuple","components":[{"name":"sender","type":"address"},{"name":"fromInternalBalance","type":"bool"},{"name":"recipient","type":"address"},{"name":"toInternalBalance","type":"bool"}]}],"outputs":[{"name":"assetDeltas","type":"int256[]"}]}]`)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Quoter prices a swap on one router. Implementations are selected by a
// switch over the router kind; the catalog stays data-driven.
type Quoter struct {
	caller ContractCaller
}

func NewQuoter(caller ContractCaller) *Quoter {
	return &Quoter{caller: caller}
}

// Quote asks router r for the output of swapping amountIn of tokenIn into
// tokenOut. The returned gas estimate is the catalog gas limit for the router;
// routers do not expose per-swap gas over eth_call.
func (q *Quoter) Quote(ctx context.Context, r Router, tokenIn, tokenOut common.Address, amountIn *big.Int) (Quote, error) {
	var (
		out *big.Int
		err error
	)
	switch r.Kind {
	case AMMV2:
		out, err = q.quoteV2(ctx, r, tokenIn, tokenOut, amountIn)
	case AMMV3:
		out, err = q.quoteV3(ctx, r, tokenIn, tokenOut, amountIn)
	case StableCurve:
		out, err = q.quoteCurve(ctx, r, tokenIn, tokenOut, amountIn)
	case PerpSpot:
		out, err = q.quotePerp(ctx, r, tokenIn, tokenOut, amountIn)
	case WeightedBalancer:
		out, err = q.quoteWeighted(ctx, r, tokenIn, tokenOut, amountIn)
	default:
		return Quote{}, fmt.Errorf("unsupported router kind %s", r.Kind)
	}
	if err != nil {
		return Quote{}, err
	}
	if out == nil || out.Sign() <= 0 {
		return Quote{}, fmt.Errorf("router %s returned empty quote", r.Name)
	}
	return Quote{AmountOut: out, GasEstimate: r.GasLimit}, nil
}

func (q *Quoter) quoteV2(ctx context.Context, r Router, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	data, err := v2ABI.Pack("getAmountsOut", amountIn, []common.Address{tokenIn, tokenOut})
	if err != nil {
		return nil, err
	}
	raw, err := q.caller.CallContract(ctx, r.Address, data)
	if err != nil {
		return nil, err
	}
	vals, err := v2ABI.Unpack("getAmountsOut", raw)
	if err != nil {
		return nil, err
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("malformed getAmountsOut response from %s", r.Name)
	}
	return amounts[len(amounts)-1], nil
}

func (q *Quoter) quoteV3(ctx context.Context, r Router, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	// feeBps is stored in bps; the V3 fee tier unit is hundredths of a bip.
	feeTier := big.NewInt(int64(r.FeeBps * 100))
	data, err := v3QuoterABI.Pack("quoteExactInputSingle", tokenIn, tokenOut, feeTier, amountIn, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	raw, err := q.caller.CallContract(ctx, r.Address, data)
	if err != nil {
		return nil, err
	}
	vals, err := v3QuoterABI.Unpack("quoteExactInputSingle", raw)
	if err != nil {
		return nil, err
	}
	return vals[0].(*big.Int), nil
}

func (q *Quoter) quoteCurve(ctx context.Context, r Router, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	i, j, ok := r.coinIndexes(tokenIn, tokenOut)
	if !ok {
		return nil, fmt.Errorf("pair not in pool %s", r.Name)
	}
	data, err := curveABI.Pack("get_dy", big.NewInt(i), big.NewInt(j), amountIn)
	if err != nil {
		return nil, err
	}
	raw, err := q.caller.CallContract(ctx, r.Address, data)
	if err != nil {
		return nil, err
	}
	vals, err := curveABI.Unpack("get_dy", raw)
	if err != nil {
		return nil, err
	}
	return vals[0].(*big.Int), nil
}

// quotePerp prices through a GMX-style vault: buy tokenIn at its max price,
// sell tokenOut at its min price, both USD-scaled to 1e30.
func (q *Quoter) quotePerp(ctx context.Context, r Router, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	priceIn, err := q.vaultPrice(ctx, r.Address, "getMinPrice", tokenIn)
	if err != nil {
		return nil, err
	}
	priceOut, err := q.vaultPrice(ctx, r.Address, "getMaxPrice", tokenOut)
	if err != nil {
		return nil, err
	}
	if priceOut.Sign() == 0 {
		return nil, fmt.Errorf("zero price for token out on %s", r.Name)
	}
	out := new(big.Int).Mul(amountIn, priceIn)
	return out.Quo(out, priceOut), nil
}

func (q *Quoter) vaultPrice(ctx context.Context, vault common.Address, method string, token common.Address) (*big.Int, error) {
	data, err := vaultABI.Pack(method, token)
	if err != nil {
		return nil, err
	}
	raw, err := q.caller.CallContract(ctx, vault, data)
	if err != nil {
		return nil, err
	}
	vals, err := vaultABI.Unpack(method, raw)
	if err != nil {
		return nil, err
	}
	return vals[0].(*big.Int), nil
}

type batchSwapStep struct {
	PoolId        [32]byte
	AssetInIndex  *big.Int
	AssetOutIndex *big.Int
	Amount        *big.Int
	UserData      []byte
}

type fundManagement struct {
	Sender              common.Address
	FromInternalBalance bool
	Recipient           common.Address
	ToInternalBalance   bool
}

func (q *Quoter) quoteWeighted(ctx context.Context, r Router, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	swaps := []batchSwapStep{{
		PoolId:        r.PoolID,
		AssetInIndex:  big.NewInt(0),
		AssetOutIndex: big.NewInt(1),
		Amount:        amountIn,
		UserData:      []byte{},
	}}
	funds := fundManagement{}
	data, err := weightedABI.Pack("queryBatchSwap", uint8(0), swaps, []common.Address{tokenIn, tokenOut}, funds)
	if err != nil {
		return nil, err
	}
	raw, err := q.caller.CallContract(ctx, r.Address, data)
	if err != nil {
		return nil, err
	}
	vals, err := weightedABI.Unpack("queryBatchSwap", raw)
	if err != nil {
		return nil, err
	}
	deltas, ok := vals[0].([]*big.Int)
	if !ok || len(deltas) < 2 {
		return nil, fmt.Errorf("malformed queryBatchSwap response from %s", r.Name)
	}
	// The vault reports the out-asset delta as a negative number.
	return new(big.Int).Neg(deltas[1]), nil
}
