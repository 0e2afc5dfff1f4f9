package relay

import (
	"context"
	"fmt"
	"math/big"

	"arbbot/internal/arb"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Bundle is an ordered list of signed transactions targeting one block.
type Bundle struct {
	Transactions []*types.Transaction
	TargetBlock  uint64
}

// SimulationResult is the relay's verdict. A failed simulation is dropped,
// never resubmitted for the same block.
type SimulationResult struct {
	Success bool
	Profit  *big.Int
	GasUsed uint64
	Err     string
}

// Submitter is the opaque bundle relay collaborator.
type Submitter interface {
	SubmitBundle(ctx context.Context, b Bundle) (SimulationResult, error)
}

// Client submits bundles over the relay's JSON-RPC surface.
type Client struct {
	rpc *rpc.Client
}

func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial relay: %v", arb.ErrNetwork, err)
	}
	return &Client{rpc: c}, nil
}

type bundleArgs struct {
	Txs         []hexutil.Bytes `json:"txs"`
	BlockNumber hexutil.Uint64  `json:"blockNumber"`
}

type callBundleResult struct {
	TotalGasUsed     hexutil.Uint64 `json:"totalGasUsed"`
	CoinbaseDiffWei  *hexutil.Big   `json:"coinbaseDiff"`
	FirstRevertError string         `json:"firstRevert"`
}

// SubmitBundle simulates the bundle and, when the simulation holds, submits
// it for inclusion. The relay protocol beyond these two calls is out of the
// engine's hands.
func (c *Client) SubmitBundle(ctx context.Context, b Bundle) (SimulationResult, error) {
	args := bundleArgs{BlockNumber: hexutil.Uint64(b.TargetBlock)}
	for _, tx := range b.Transactions {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return SimulationResult{}, fmt.Errorf("encode bundle tx: %w", err)
		}
		args.Txs = append(args.Txs, raw)
	}

	var sim callBundleResult
	if err := c.rpc.CallContext(ctx, &sim, "eth_callBundle", args); err != nil {
		return SimulationResult{}, fmt.Errorf("%w: eth_callBundle: %v", arb.ErrNetwork, err)
	}
	if sim.FirstRevertError != "" {
		return SimulationResult{Success: false, GasUsed: uint64(sim.TotalGasUsed), Err: sim.FirstRevertError}, nil
	}

	var ignored interface{}
	if err := c.rpc.CallContext(ctx, &ignored, "eth_sendBundle", args); err != nil {
		return SimulationResult{}, fmt.Errorf("%w: eth_sendBundle: %v", arb.ErrNetwork, err)
	}
	profit := new(big.Int)
	if sim.CoinbaseDiffWei != nil {
		profit.Set(sim.CoinbaseDiffWei.ToInt())
	}
	return SimulationResult{Success: true, Profit: profit, GasUsed: uint64(sim.TotalGasUsed)}, nil
}
