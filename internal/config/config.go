package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the environment-driven runtime configuration.
type Config struct {
	// Stage selects the logger profile ("prod" enables JSON output).
	Stage string

	// ChainID is the network the pipeline runs against.
	ChainID int64

	// RPCAPIKey authenticates against the RPC provider endpoint.
	RPCAPIKey string

	// RelayBaseURL and RelayAPIKey locate and authenticate the relay.
	RelayBaseURL string
	RelayAPIKey  string

	// OracleBaseURL overrides the default price oracle endpoint; empty keeps
	// the default.
	OracleBaseURL string

	// WalletPrivateKey is the hex key for the local signer.
	WalletPrivateKey string

	// IncludeNative adds the native currency as a batch candidate.
	IncludeNative bool

	// MinBatchValueUSD filters batch candidates; zero applies the default.
	MinBatchValueUSD float64
}

// Load reads configuration from a .env file (if present) and the process
// environment. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current process environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Stage:            getEnv("STAGE", "dev"),
		RPCAPIKey:        os.Getenv("RPC_API_KEY"),
		RelayBaseURL:     os.Getenv("RELAY_BASE_URL"),
		RelayAPIKey:      os.Getenv("RELAY_API_KEY"),
		OracleBaseURL:    os.Getenv("ORACLE_BASE_URL"),
		WalletPrivateKey: os.Getenv("WALLET_PRIVATE_KEY"),
		IncludeNative:    getEnv("INCLUDE_NATIVE", "false") == "true",
	}

	for name, value := range map[string]string{
		"RPC_API_KEY":        cfg.RPCAPIKey,
		"RELAY_BASE_URL":     cfg.RelayBaseURL,
		"RELAY_API_KEY":      cfg.RelayAPIKey,
		"WALLET_PRIVATE_KEY": cfg.WalletPrivateKey,
	} {
		if value == "" {
			return nil, fmt.Errorf("%s environment variable is required", name)
		}
	}

	chainID, err := strconv.ParseInt(getEnv("CHAIN_ID", "1"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CHAIN_ID: %w", err)
	}
	cfg.ChainID = chainID

	if raw := os.Getenv("MIN_BATCH_VALUE_USD"); raw != "" {
		minValue, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MIN_BATCH_VALUE_USD: %w", err)
		}
		cfg.MinBatchValueUSD = minValue
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
