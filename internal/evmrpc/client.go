package evmrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrBalanceFetchFailed indicates the token balance enumeration returned no
// usable result. The scan cannot proceed without it.
var ErrBalanceFetchFailed = errors.New("token balance enumeration failed")

// Backend is the narrow JSON-RPC surface the client needs; *rpc.Client
// satisfies it, tests substitute a fake.
type Backend interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Client provides the indexing and contract reads the pipeline needs from a
// chain RPC endpoint.
type Client struct {
	backend Backend
}

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	return NewClient(rpcClient), nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend) *Client {
	return &Client{backend: backend}
}

// TokenBalance is one entry from the balance enumeration.
type TokenBalance struct {
	Contract common.Address
	Balance  *big.Int
}

type tokenBalancesResult struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string `json:"contractAddress"`
		TokenBalance    string `json:"tokenBalance"`
	} `json:"tokenBalances"`
}

// TokenBalances enumerates all ERC-20 balances held by the owner via the
// indexing RPC. Zero balances are kept; the caller filters them.
func (c *Client) TokenBalances(ctx context.Context, owner common.Address) ([]TokenBalance, error) {
	var result tokenBalancesResult
	err := c.backend.CallContext(ctx, &result, "alchemy_getTokenBalances", owner.Hex(), "erc20")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBalanceFetchFailed, err)
	}
	if result.Address == "" {
		return nil, fmt.Errorf("%w: empty result", ErrBalanceFetchFailed)
	}

	balances := make([]TokenBalance, 0, len(result.TokenBalances))
	for _, entry := range result.TokenBalances {
		if !common.IsHexAddress(entry.ContractAddress) {
			continue
		}
		balance, ok := parseHexBalance(entry.TokenBalance)
		if !ok {
			continue
		}
		balances = append(balances, TokenBalance{
			Contract: common.HexToAddress(entry.ContractAddress),
			Balance:  balance,
		})
	}

	return balances, nil
}

// CallContract executes a read-only contract call at the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var result hexutil.Bytes
	args := map[string]interface{}{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	if err := c.backend.CallContext(ctx, &result, "eth_call", args, "latest"); err != nil {
		return nil, fmt.Errorf("eth_call to %s failed: %w", to.Hex(), err)
	}
	return result, nil
}

// NativeBalance returns the owner's native currency balance in wei.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	var result hexutil.Big
	if err := c.backend.CallContext(ctx, &result, "eth_getBalance", owner.Hex(), "latest"); err != nil {
		return nil, fmt.Errorf("failed to get native balance: %w", err)
	}
	return (*big.Int)(&result), nil
}

// GasPrice returns the current fee per gas in wei.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.backend.CallContext(ctx, &result, "eth_gasPrice"); err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return (*big.Int)(&result), nil
}

func parseHexBalance(value string) (*big.Int, bool) {
	trimmed := strings.TrimPrefix(value, "0x")
	if trimmed == "" {
		return nil, false
	}
	balance, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, false
	}
	return balance, true
}
