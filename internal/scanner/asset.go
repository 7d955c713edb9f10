package scanner

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Asset is one holding discovered by a scan. Records are created fresh on
// every scan and immutable once produced. Contract is nil for the chain's
// native currency.
type Asset struct {
	Contract  *common.Address
	Symbol    string
	Name      string
	Balance   *big.Int
	Decimals  uint8
	FiatValue float64
}

// IsNative reports whether the asset is the chain's native currency.
func (a Asset) IsNative() bool {
	return a.Contract == nil
}

// ID returns the lowercase price-lookup identifier: the contract address for
// tokens, the symbol for the native currency.
func (a Asset) ID() string {
	if a.Contract == nil {
		return strings.ToLower(a.Symbol)
	}
	return strings.ToLower(a.Contract.Hex())
}

// Units returns the balance scaled down by the decimal exponent.
func (a Asset) Units() float64 {
	if a.Balance == nil {
		return 0
	}
	units := new(big.Float).SetInt(a.Balance)
	divisor := new(big.Float).SetFloat64(pow10(a.Decimals))
	result, _ := new(big.Float).Quo(units, divisor).Float64()
	return result
}

func pow10(decimals uint8) float64 {
	result := 1.0
	for i := uint8(0); i < decimals; i++ {
		result *= 10
	}
	return result
}
