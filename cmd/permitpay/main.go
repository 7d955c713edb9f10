package main

import (
	"context"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/permitpay/permitpay-go/internal/chains"
	"github.com/permitpay/permitpay-go/internal/config"
	"github.com/permitpay/permitpay-go/internal/evmrpc"
	"github.com/permitpay/permitpay-go/internal/logger"
	"github.com/permitpay/permitpay-go/internal/pipeline"
	"github.com/permitpay/permitpay-go/internal/prices"
	"github.com/permitpay/permitpay-go/internal/relay"
	"github.com/permitpay/permitpay-go/internal/scanner"
	"github.com/permitpay/permitpay-go/internal/valuation"
	"github.com/permitpay/permitpay-go/internal/wallet"
	"go.uber.org/zap"
)

// localProvider exposes an in-process key through the provider interface the
// registry expects from announced wallets.
type localProvider struct {
	signer  *wallet.LocalSigner
	chainID int64
}

func (p *localProvider) Info() wallet.ProviderInfo {
	return wallet.ProviderInfo{ID: "local", Name: "Local Key"}
}

func (p *localProvider) RequestAccounts(_ context.Context) (wallet.Signer, common.Address, int64, error) {
	return p.signer, p.signer.Address(), p.chainID, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v\n", err)
	}

	logger.InitLogger(cfg.Stage)
	defer func() { _ = logger.Sync() }()

	network, err := chains.Resolve(cfg.ChainID)
	if err != nil {
		logger.Error("Unsupported chain", zap.Int64("chain_id", cfg.ChainID))
		os.Exit(1)
	}

	ctx := context.Background()

	evm, err := evmrpc.Dial(ctx, network.RPCEndpoint(cfg.RPCAPIKey))
	if err != nil {
		logger.Error("Failed to connect to RPC endpoint", zap.Error(err))
		os.Exit(1)
	}

	signer, err := wallet.NewLocalSigner(cfg.WalletPrivateKey)
	if err != nil {
		logger.Error("Failed to load wallet key", zap.Error(err))
		os.Exit(1)
	}

	registry := wallet.NewRegistry()
	registry.Register("local", &localProvider{signer: signer, chainID: cfg.ChainID})

	oracle := prices.NewHTTPOracle()
	if cfg.OracleBaseURL != "" {
		oracle = prices.NewHTTPOracleWithBaseURL(cfg.OracleBaseURL)
	}

	p := pipeline.NewPipeline(
		registry,
		scanner.NewScanner(evm, scanner.Config{IncludeNative: cfg.IncludeNative}),
		valuation.NewEngine(prices.NewService(oracle)),
		relay.NewClient(cfg.RelayBaseURL, cfg.RelayAPIKey),
		evm,
	)

	kind := pipeline.KindPermit
	if os.Getenv("MODE") == "batch" {
		kind = pipeline.KindBatch
	}

	result := p.Run(ctx, pipeline.RunParams{
		ProviderID:       "local",
		Kind:             kind,
		MinBatchValueUSD: cfg.MinBatchValueUSD,
	})

	logger.Info("Run finished",
		zap.String("status", string(result.Status)),
		zap.String("message", result.Message),
		zap.String("contract_address", result.ContractAddress),
		zap.String("bundle_id", result.BundleID))

	if result.Status == pipeline.StatusFailed {
		os.Exit(1)
	}
}
