package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"arbbot/internal/arb"
	"arbbot/internal/config"
	"arbbot/internal/infra/metrics"
	"arbbot/internal/infra/network"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps one chain's JSON-RPC endpoint. Clients are not shared across
// workers; each worker dials its own so nonce and connection state never
// contend.
type Client struct {
	chainID uint64
	name    string
	eth     *ethclient.Client
	limiter *network.TokenBucket
	timeout time.Duration

	calls     atomic.Int64
	latencyMs atomic.Int64 // EMA, stored as integer milliseconds
}

// FeeData is the gas pricing snapshot used by the cost model.
type FeeData struct {
	GasPrice *big.Int
	TipCap   *big.Int
	BaseFee  *big.Int
}

func Dial(ctx context.Context, cfg config.Chain, rpcTimeout time.Duration) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", arb.ErrNetwork, cfg.Name, err)
	}
	rate := cfg.RateLimitPerSec
	if rate <= 0 {
		rate = 20
	}
	return &Client{
		chainID: cfg.ChainID,
		name:    cfg.Name,
		eth:     ec,
		limiter: network.NewTokenBucket(rate, float64(rate), 50),
		timeout: rpcTimeout,
	}, nil
}

func (c *Client) ChainID() uint64 { return c.chainID }
func (c *Client) Name() string    { return c.name }

func (c *Client) Close() { c.eth.Close() }

// CallContract performs eth_call against to with data. Implements
// market.ContractCaller.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	return out, err
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.do(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		n, err = c.eth.BlockNumber(ctx)
		return err
	})
	return n, err
}

func (c *Client) Nonce(ctx context.Context, account common.Address) (uint64, error) {
	var n uint64
	err := c.do(ctx, "eth_getTransactionCount", func(ctx context.Context) error {
		var err error
		n, err = c.eth.PendingNonceAt(ctx, account)
		return err
	})
	return n, err
}

// FeeData fetches the current gas price, tip cap and base fee in one pass.
func (c *Client) FeeData(ctx context.Context) (FeeData, error) {
	var fd FeeData
	err := c.do(ctx, "eth_feeData", func(ctx context.Context) error {
		gasPrice, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		tip, err := c.eth.SuggestGasTipCap(ctx)
		if err != nil {
			return err
		}
		head, err := c.eth.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		fd = FeeData{GasPrice: gasPrice, TipCap: tip, BaseFee: head.BaseFee}
		return nil
	})
	if err == nil && fd.GasPrice != nil {
		gwei := new(big.Float).Quo(new(big.Float).SetInt(fd.GasPrice), big.NewFloat(1e9))
		f, _ := gwei.Float64()
		metrics.GasPriceGwei.WithLabelValues(c.name).Set(f)
	}
	return fd, err
}

// do runs one RPC call under the rate limiter, a bounded timeout and a short
// exponential retry. Errors that survive the retry are wrapped as network
// errors so callers can route them.
func (c *Client) do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(callCtx)
	}, bo)
	elapsed := time.Since(start)
	metrics.RPCLatencyMs.WithLabelValues(c.name).Observe(float64(elapsed.Milliseconds()))
	c.observeLatency(elapsed)
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.name, method).Inc()
		return fmt.Errorf("%w: %s %s: %v", arb.ErrNetwork, c.name, method, err)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	for !c.limiter.Allow(time.Now()) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", arb.ErrNetwork, ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

func (c *Client) observeLatency(d time.Duration) {
	ms := d.Milliseconds()
	prev := c.latencyMs.Load()
	c.latencyMs.Store((prev*7 + ms) / 8)
	if c.calls.Add(1)%256 == 0 {
		c.limiter.AdjustForRTT(float64(c.latencyMs.Load()))
	}
}
