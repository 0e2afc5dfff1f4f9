package gas

import (
	"math/big"
)

// Model prices execution gas for one chain under the fee conditions of the
// current scan cycle. Rollup chains pay L2 execution plus L1 calldata
// posting; settlement chains pay execution only.
type Model struct {
	gasPrice   *big.Int
	l1GasPrice *big.Int // nil when the chain settles its own data
	calldata   uint64   // estimated calldata bytes per swap leg
}

// Non-zero calldata bytes cost 16 gas each post-Istanbul; a swap leg is
// roughly 200 bytes of calldata in a bundled transaction.
const (
	gasPerCalldataByte = 16
	swapCalldataBytes  = 200
)

func NewModel(gasPrice, l1GasPrice *big.Int) Model {
	return Model{gasPrice: gasPrice, l1GasPrice: l1GasPrice, calldata: swapCalldataBytes}
}

// EdgeCost is the wei cost of executing one swap leg. Implements the graph
// builder's EdgeCoster.
func (m Model) EdgeCost(gasLimit uint64) *big.Int {
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), m.safeGasPrice())
	if m.l1GasPrice != nil {
		dataGas := new(big.Int).SetUint64(m.calldata * gasPerCalldataByte)
		cost.Add(cost, dataGas.Mul(dataGas, m.l1GasPrice))
	}
	return cost
}

// TxCost prices a whole transaction given its total gas limit and calldata
// size.
func (m Model) TxCost(gasLimit, calldataBytes uint64) *big.Int {
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), m.safeGasPrice())
	if m.l1GasPrice != nil {
		dataGas := new(big.Int).SetUint64(calldataBytes * gasPerCalldataByte)
		cost.Add(cost, dataGas.Mul(dataGas, m.l1GasPrice))
	}
	return cost
}

func (m Model) safeGasPrice() *big.Int {
	if m.gasPrice == nil {
		return big.NewInt(0)
	}
	return m.gasPrice
}
