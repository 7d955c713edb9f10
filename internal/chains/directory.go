package chains

import (
	"errors"
	"fmt"
)

// ErrUnsupportedChain is returned when a chain id has no configured entry.
var ErrUnsupportedChain = errors.New("unsupported chain")

// NativeCurrency describes a chain's native asset.
type NativeCurrency struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Network describes one supported chain: where to reach it and how to price
// its assets.
type Network struct {
	ChainID        int64
	Name           string
	RPCURL         string // contains one %s slot for the RPC API key
	NativeCurrency NativeCurrency
	// PricePlatform is the oracle platform identifier used for
	// contract-address price lookups on this chain.
	PricePlatform string
	// NativePriceID is the oracle identifier for the chain's native asset.
	NativePriceID string
}

var networks = map[int64]Network{
	1: {
		ChainID:        1,
		Name:           "ethereum",
		RPCURL:         "https://eth-mainnet.g.alchemy.com/v2/%s",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		PricePlatform:  "ethereum",
		NativePriceID:  "ethereum",
	},
	10: {
		ChainID:        10,
		Name:           "optimism",
		RPCURL:         "https://opt-mainnet.g.alchemy.com/v2/%s",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		PricePlatform:  "optimistic-ethereum",
		NativePriceID:  "ethereum",
	},
	56: {
		ChainID:        56,
		Name:           "bnb",
		RPCURL:         "https://bnb-mainnet.g.alchemy.com/v2/%s",
		NativeCurrency: NativeCurrency{Name: "BNB", Symbol: "BNB", Decimals: 18},
		PricePlatform:  "binance-smart-chain",
		NativePriceID:  "binancecoin",
	},
	137: {
		ChainID:        137,
		Name:           "polygon",
		RPCURL:         "https://polygon-mainnet.g.alchemy.com/v2/%s",
		NativeCurrency: NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
		PricePlatform:  "polygon-pos",
		NativePriceID:  "polygon-ecosystem-token",
	},
	8453: {
		ChainID:        8453,
		Name:           "base",
		RPCURL:         "https://base-mainnet.g.alchemy.com/v2/%s",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		PricePlatform:  "base",
		NativePriceID:  "ethereum",
	},
	42161: {
		ChainID:        42161,
		Name:           "arbitrum",
		RPCURL:         "https://arb-mainnet.g.alchemy.com/v2/%s",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		PricePlatform:  "arbitrum-one",
		NativePriceID:  "ethereum",
	},
	43114: {
		ChainID:        43114,
		Name:           "avalanche",
		RPCURL:         "https://avax-mainnet.g.alchemy.com/v2/%s",
		NativeCurrency: NativeCurrency{Name: "Avalanche", Symbol: "AVAX", Decimals: 18},
		PricePlatform:  "avalanche",
		NativePriceID:  "avalanche-2",
	},
	11155111: {
		ChainID:        11155111,
		Name:           "sepolia",
		RPCURL:         "https://eth-sepolia.g.alchemy.com/v2/%s",
		NativeCurrency: NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
		PricePlatform:  "ethereum",
		NativePriceID:  "ethereum",
	},
}

// Resolve looks up the network configuration for a chain id.
func Resolve(chainID int64) (Network, error) {
	network, ok := networks[chainID]
	if !ok {
		return Network{}, fmt.Errorf("%w: chain id %d", ErrUnsupportedChain, chainID)
	}
	return network, nil
}

// RPCEndpoint returns the network's RPC URL with the API key filled in.
func (n Network) RPCEndpoint(apiKey string) string {
	return fmt.Sprintf(n.RPCURL, apiKey)
}
