package flashloan

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"arbbot/internal/market"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Terms is one provider's answer for a requested loan.
type Terms struct {
	Liquidity   *big.Int
	FeeBps      float64
	Utilization float64 // 0..1; <0 when the provider has no utilization concept
}

// Provider reads loan availability from an on-chain lender. The engine never
// implements the borrow callback; that lives in the settlement contract.
type Provider interface {
	Name() string
	ChainID() uint64
	Address() common.Address
	Quote(ctx context.Context, asset common.Address, amount *big.Int) (Terms, error)
}

var (
	erc3156ABI = mustABI(`[{"name":"maxFlashLoan","type":"function","stateMutability":"view","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},{"name":"flashFee","type":"function","stateMutability":"view","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}]`)
	poolABI    = mustABI(`[{"name":"getReserveData","type":"function","stateMutability":"view","inputs":[{"name":"asset","type":"address"}],"outputs":[{"name":"availableLiquidity","type":"uint256"},{"name":"totalDebt","type":"uint256"}]},{"name":"flashLoanPremiumTotal","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint128"}]}]`)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// VaultProvider is an ERC-3156 pooled vault, typically zero-fee.
type VaultProvider struct {
	name    string
	chainID uint64
	address common.Address
	caller  market.ContractCaller
}

func NewVaultProvider(name string, chainID uint64, address common.Address, caller market.ContractCaller) *VaultProvider {
	return &VaultProvider{name: name, chainID: chainID, address: address, caller: caller}
}

func (p *VaultProvider) Name() string            { return p.name }
func (p *VaultProvider) ChainID() uint64         { return p.chainID }
func (p *VaultProvider) Address() common.Address { return p.address }

func (p *VaultProvider) Quote(ctx context.Context, asset common.Address, amount *big.Int) (Terms, error) {
	maxLoan, err := p.callUint(ctx, erc3156ABI, "maxFlashLoan", asset)
	if err != nil {
		return Terms{}, err
	}
	fee, err := p.callUint(ctx, erc3156ABI, "flashFee", asset, amount)
	if err != nil {
		return Terms{}, err
	}
	feeBps := 0.0
	if amount.Sign() > 0 && fee.Sign() > 0 {
		f := new(big.Float).Quo(new(big.Float).SetInt(fee), new(big.Float).SetInt(amount))
		ratio, _ := f.Float64()
		feeBps = ratio * 10000
	}
	return Terms{Liquidity: maxLoan, FeeBps: feeBps, Utilization: -1}, nil
}

func (p *VaultProvider) callUint(ctx context.Context, parsed abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	raw, err := p.caller.CallContract(ctx, p.address, data)
	if err != nil {
		return nil, err
	}
	vals, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, err
	}
	out, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected %s result", p.name, method)
	}
	return out, nil
}

// LendingPoolProvider is a fee-bearing money-market pool with utilization.
type LendingPoolProvider struct {
	name       string
	chainID    uint64
	address    common.Address
	caller     market.ContractCaller
	feeBpsHint float64 // used when the premium call fails
}

func NewLendingPoolProvider(name string, chainID uint64, address common.Address, feeBpsHint float64, caller market.ContractCaller) *LendingPoolProvider {
	return &LendingPoolProvider{name: name, chainID: chainID, address: address, feeBpsHint: feeBpsHint, caller: caller}
}

func (p *LendingPoolProvider) Name() string            { return p.name }
func (p *LendingPoolProvider) ChainID() uint64         { return p.chainID }
func (p *LendingPoolProvider) Address() common.Address { return p.address }

func (p *LendingPoolProvider) Quote(ctx context.Context, asset common.Address, amount *big.Int) (Terms, error) {
	data, err := poolABI.Pack("getReserveData", asset)
	if err != nil {
		return Terms{}, err
	}
	raw, err := p.caller.CallContract(ctx, p.address, data)
	if err != nil {
		return Terms{}, err
	}
	vals, err := poolABI.Unpack("getReserveData", raw)
	if err != nil {
		return Terms{}, err
	}
	liquidity, _ := vals[0].(*big.Int)
	debt, _ := vals[1].(*big.Int)
	if liquidity == nil {
		return Terms{}, fmt.Errorf("%s: empty reserve data", p.name)
	}
	util := 0.0
	if debt != nil && debt.Sign() > 0 {
		total := new(big.Float).SetInt(new(big.Int).Add(liquidity, debt))
		d := new(big.Float).SetInt(debt)
		ratio, _ := new(big.Float).Quo(d, total).Float64()
		util = ratio
	}
	feeBps := p.feeBpsHint
	if premium, err := p.premium(ctx); err == nil {
		feeBps = premium
	}
	return Terms{Liquidity: liquidity, FeeBps: feeBps, Utilization: util}, nil
}

func (p *LendingPoolProvider) premium(ctx context.Context) (float64, error) {
	data, err := poolABI.Pack("flashLoanPremiumTotal")
	if err != nil {
		return 0, err
	}
	raw, err := p.caller.CallContract(ctx, p.address, data)
	if err != nil {
		return 0, err
	}
	vals, err := poolABI.Unpack("flashLoanPremiumTotal", raw)
	if err != nil {
		return 0, err
	}
	premium, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected premium result")
	}
	return float64(premium.Int64()), nil
}
