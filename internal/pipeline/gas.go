package pipeline

import (
	"math"
	"math/big"
)

// inflateGas adds a random 0-10% margin to an estimate. r is in [0, 1)
func inflateGas(estimate uint64, r float64) uint64 {
	return uint64(math.Floor(float64(estimate) * (1 + r/10)))
}

// estimatedCost is gas * gasPrice in wei
func estimatedCost(gas uint64, gasPrice *big.Int) *big.Int {
	if gasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
}
