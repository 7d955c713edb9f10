package evmrpc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABI fragment covering the reads and the transfer call the pipeline uses.
// nonces() and version() come from the EIP-2612 permit extension.
const erc20ABIJSON = `[
	{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"nonces","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"version","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// PackNameCall encodes a name() call.
func PackNameCall() []byte {
	data, _ := erc20ABI.Pack("name")
	return data
}

// PackSymbolCall encodes a symbol() call.
func PackSymbolCall() []byte {
	data, _ := erc20ABI.Pack("symbol")
	return data
}

// PackDecimalsCall encodes a decimals() call.
func PackDecimalsCall() []byte {
	data, _ := erc20ABI.Pack("decimals")
	return data
}

// PackBalanceOfCall encodes a balanceOf(owner) call.
func PackBalanceOfCall(owner common.Address) []byte {
	data, _ := erc20ABI.Pack("balanceOf", owner)
	return data
}

// PackNoncesCall encodes a nonces(owner) call.
func PackNoncesCall(owner common.Address) []byte {
	data, _ := erc20ABI.Pack("nonces", owner)
	return data
}

// PackVersionCall encodes a version() call.
func PackVersionCall() []byte {
	data, _ := erc20ABI.Pack("version")
	return data
}

// PackTransferCall encodes transfer(to, value) calldata.
func PackTransferCall(to common.Address, value *big.Int) []byte {
	data, _ := erc20ABI.Pack("transfer", to, value)
	return data
}

// UnpackString decodes a single string return value.
func UnpackString(method string, data []byte) (string, error) {
	values, err := erc20ABI.Unpack(method, data)
	if err != nil {
		return "", fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	value, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s result type", method)
	}
	return value, nil
}

// UnpackUint8 decodes a single uint8 return value.
func UnpackUint8(method string, data []byte) (uint8, error) {
	values, err := erc20ABI.Unpack(method, data)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	value, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected %s result type", method)
	}
	return value, nil
}

// UnpackBigInt decodes a single uint256 return value.
func UnpackBigInt(method string, data []byte) (*big.Int, error) {
	values, err := erc20ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type", method)
	}
	return value, nil
}
