package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"arbbot/internal/arb"
	"arbbot/internal/chain"
	"arbbot/internal/config"
	"arbbot/internal/flashloan"
	"arbbot/internal/infra/metrics"
	"arbbot/internal/market"
	"arbbot/internal/relay"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// stalenessFloor: a re-quoted path keeping less than this fraction of its
// discovery-time profit is stale and never reaches the relay.
const stalenessFloor = 0.8

// settlementOverheadGas covers the flash-loan borrow and repay around the
// swap sequence.
const settlementOverheadGas = 250_000

var settlementABI = mustABI(`[{"name":"executeArbitrage","type":"function","stateMutability":"nonpayable","inputs":[{"name":"lender","type":"address"},{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"routers","type":"address[]"},{"name":"path","type":"address[]"},{"name":"minAmountOut","type":"uint256"}],"outputs":[]}]`)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// PathQuoter re-prices one swap leg. Satisfied by market.Quoter.
type PathQuoter interface {
	Quote(ctx context.Context, r market.Router, tokenIn, tokenOut common.Address, amountIn *big.Int) (market.Quote, error)
}

// Executor re-validates a dispatched opportunity against live quotes, selects
// the funding provider and hands a signed bundle to the relay. It holds no
// cross-opportunity state; the coordinator serializes dispatch.
type Executor struct {
	clients   map[uint64]*chain.Client
	quoters   map[uint64]PathQuoter
	selector  *flashloan.Selector
	submitter relay.Submitter
	key       *ecdsa.PrivateKey // nil in paper mode
	from      common.Address
	contract  common.Address
	offset    uint64
	live      bool
	logger    zerolog.Logger
}

func New(cfg config.Config, clients map[uint64]*chain.Client, selector *flashloan.Selector, submitter relay.Submitter, logger zerolog.Logger) (*Executor, error) {
	e := &Executor{
		clients:   clients,
		quoters:   map[uint64]PathQuoter{},
		selector:  selector,
		submitter: submitter,
		offset:    cfg.Execution.TargetBlockOffset,
		live:      cfg.Execution.Live,
		logger:    logger,
	}
	for chainID, c := range clients {
		e.quoters[chainID] = market.NewQuoter(c)
	}
	if cfg.Execution.Live {
		key, err := crypto.HexToECDSA(cfg.Execution.SignerKey)
		if err != nil {
			return nil, fmt.Errorf("%w: signer key: %v", arb.ErrConfiguration, err)
		}
		e.key = key
		e.from = crypto.PubkeyToAddress(key.PublicKey)
		if !common.IsHexAddress(cfg.Execution.Contract) {
			return nil, fmt.Errorf("%w: settlement contract %q is not an address", arb.ErrConfiguration, cfg.Execution.Contract)
		}
		e.contract = common.HexToAddress(cfg.Execution.Contract)
	}
	return e, nil
}

// Execute runs the final pre-flight (fresh quotes, then funding) and submits.
// It returns ErrStaleOpportunity without touching the relay when the market
// has moved, and ErrExecutionReverted when the relay simulation fails.
func (e *Executor) Execute(ctx context.Context, opp arb.Opportunity, p arb.ExecutionParams) (arb.ExecutionResult, error) {
	freshOut, err := e.requote(ctx, opp)
	if err != nil {
		return arb.ExecutionResult{}, err
	}
	freshProfit := new(big.Int).Sub(freshOut, opp.AmountIn)
	freshProfit.Sub(freshProfit, opp.Path.GasCost())
	floor, _ := new(big.Float).Mul(new(big.Float).SetInt(opp.ExpectedProfit), big.NewFloat(stalenessFloor)).Int(nil)
	if freshProfit.Cmp(floor) < 0 {
		e.logger.Info().
			Str("opportunity", opp.ID).
			Str("expected", opp.ExpectedProfit.String()).
			Str("fresh", freshProfit.String()).
			Dur("age", time.Since(opp.DiscoveredAt)).
			Msg("opportunity decayed below floor")
		return arb.ExecutionResult{}, fmt.Errorf("%w: profit %s below %s", arb.ErrStaleOpportunity, freshProfit, floor)
	}

	asset := opp.Path.Source().Address
	loan, err := e.selector.SelectProvider(ctx, asset, opp.AmountIn, opp.ChainID)
	if err != nil {
		return arb.ExecutionResult{}, err
	}
	loanFee, _ := new(big.Float).Mul(new(big.Float).SetInt(opp.AmountIn), big.NewFloat(loan.FeeBps/10000)).Int(nil)
	netProfit := new(big.Int).Sub(freshProfit, loanFee)
	if p.MinProfitWei != nil && netProfit.Cmp(p.MinProfitWei) < 0 {
		return arb.ExecutionResult{}, arb.Reject("flash_fee", fmt.Sprintf("net %s below minimum after %s loan fee", netProfit, loanFee))
	}

	if !e.live {
		metrics.BundlesSubmitted.Inc()
		e.logger.Info().
			Str("opportunity", opp.ID).
			Str("provider", loan.Provider.Name()).
			Str("net_profit_wei", netProfit.String()).
			Msg("paper trade recorded")
		return arb.ExecutionResult{Success: true, Profit: netProfit, GasUsed: e.gasLimit(opp)}, nil
	}

	client, ok := e.clients[opp.ChainID]
	if !ok {
		return arb.ExecutionResult{}, fmt.Errorf("%w: no client for chain %d", arb.ErrConfiguration, opp.ChainID)
	}
	bundle, err := e.buildBundle(ctx, client, opp, p, loan, freshOut)
	if err != nil {
		return arb.ExecutionResult{}, err
	}
	sim, err := e.submitter.SubmitBundle(ctx, bundle)
	if err != nil {
		return arb.ExecutionResult{}, err
	}
	if !sim.Success {
		metrics.BundlesReverted.Inc()
		loss := e.gasLossWei(ctx, client, sim.GasUsed)
		return arb.ExecutionResult{Success: false, Profit: new(big.Int).Neg(loss), GasUsed: sim.GasUsed},
			fmt.Errorf("%w: %s", arb.ErrExecutionReverted, sim.Err)
	}
	metrics.BundlesSubmitted.Inc()
	profit := netProfit
	if sim.Profit != nil && sim.Profit.Sign() != 0 {
		profit = sim.Profit
	}
	return arb.ExecutionResult{Success: true, Profit: profit, GasUsed: sim.GasUsed}, nil
}

// requote walks the path with live quotes and returns the final output in the
// source asset.
func (e *Executor) requote(ctx context.Context, opp arb.Opportunity) (*big.Int, error) {
	quoter, ok := e.quoters[opp.ChainID]
	if !ok {
		return nil, fmt.Errorf("%w: no quoter for chain %d", arb.ErrConfiguration, opp.ChainID)
	}
	amount := new(big.Int).Set(opp.AmountIn)
	for _, edge := range opp.Path.Edges {
		q, err := quoter.Quote(ctx, edge.Router, edge.From.Address, edge.To.Address, amount)
		if err != nil {
			return nil, err
		}
		amount = q.AmountOut
	}
	return amount, nil
}

func (e *Executor) buildBundle(ctx context.Context, client *chain.Client, opp arb.Opportunity, p arb.ExecutionParams, loan flashloan.Quote, freshOut *big.Int) (relay.Bundle, error) {
	routers := make([]common.Address, 0, len(opp.Path.Edges))
	hops := make([]common.Address, 0, len(opp.Path.Edges)+1)
	hops = append(hops, opp.Path.Source().Address)
	for _, edge := range opp.Path.Edges {
		routers = append(routers, edge.Router.Address)
		hops = append(hops, edge.To.Address)
	}
	// minAmountOut bounds the whole cycle, not each hop; per-hop limits are
	// the settlement contract's concern.
	minOut, _ := new(big.Float).Mul(new(big.Float).SetInt(freshOut), big.NewFloat(1-p.SlippageBps/10000)).Int(nil)
	data, err := settlementABI.Pack("executeArbitrage", loan.Provider.Address(), opp.Path.Source().Address, opp.AmountIn, routers, hops, minOut)
	if err != nil {
		return relay.Bundle{}, fmt.Errorf("encode settlement call: %w", err)
	}

	nonce, err := client.Nonce(ctx, e.from)
	if err != nil {
		return relay.Bundle{}, err
	}
	fd, err := client.FeeData(ctx)
	if err != nil {
		return relay.Bundle{}, err
	}
	feeCap := new(big.Int)
	if fd.BaseFee != nil {
		feeCap.Mul(fd.BaseFee, big.NewInt(2))
	}
	if fd.TipCap != nil {
		feeCap.Add(feeCap, fd.TipCap)
	}
	if feeCap.Sign() == 0 && fd.GasPrice != nil {
		feeCap.Set(fd.GasPrice)
	}
	chainID := new(big.Int).SetUint64(opp.ChainID)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: fd.TipCap,
		GasFeeCap: feeCap,
		Gas:       e.gasLimit(opp),
		To:        &e.contract,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), e.key)
	if err != nil {
		return relay.Bundle{}, fmt.Errorf("sign settlement tx: %w", err)
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return relay.Bundle{}, err
	}
	return relay.Bundle{Transactions: []*types.Transaction{signed}, TargetBlock: head + e.offset}, nil
}

func (e *Executor) gasLimit(opp arb.Opportunity) uint64 {
	limit := uint64(settlementOverheadGas)
	for _, edge := range opp.Path.Edges {
		limit += edge.Router.GasLimit
	}
	return limit
}

// gasLossWei prices the gas burned by a reverted bundle so the breaker sees
// the loss. A failed fee lookup reports zero rather than guessing.
func (e *Executor) gasLossWei(ctx context.Context, client *chain.Client, gasUsed uint64) *big.Int {
	if fd, err := client.FeeData(ctx); err == nil && fd.GasPrice != nil {
		return new(big.Int).Mul(fd.GasPrice, new(big.Int).SetUint64(gasUsed))
	}
	return new(big.Int)
}
