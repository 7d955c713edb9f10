package scanner

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/permitpay/permitpay-go/internal/chains"
	"github.com/permitpay/permitpay-go/internal/constants"
	"github.com/permitpay/permitpay-go/internal/evmrpc"
	"github.com/permitpay/permitpay-go/internal/logger"
	"github.com/permitpay/permitpay-go/internal/wallet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChainReader is the RPC surface the scanner needs; *evmrpc.Client satisfies it.
type ChainReader interface {
	TokenBalances(ctx context.Context, owner common.Address) ([]evmrpc.TokenBalance, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Known permit-capable tokens; the probe is short-circuited for these.
var permitAllowList = map[common.Address]bool{
	common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"): true, // USDC ethereum
	common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"): true, // USDC base
	common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"): true, // USDC polygon
	common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"): true, // USDC arbitrum
	common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"): true, // DAI ethereum
}

// Config controls optional scan behavior.
type Config struct {
	// IncludeNative appends the chain's native currency as a pseudo-asset
	// after subtracting a fee reserve.
	IncludeNative bool
}

// Scanner enumerates an account's non-zero token balances, probes each for
// permit support and fetches per-asset metadata.
type Scanner struct {
	reader ChainReader
	config Config
}

// NewScanner creates a scanner over the given chain reader.
func NewScanner(reader ChainReader, config Config) *Scanner {
	return &Scanner{
		reader: reader,
		config: config,
	}
}

// Scan returns the session account's compatible holdings in enumeration
// order. A single token's probe or metadata failure drops only that token;
// the scan fails wholesale only when the balance enumeration itself fails.
func (s *Scanner) Scan(ctx context.Context, session *wallet.Session) ([]Asset, error) {
	if session == nil {
		return nil, wallet.ErrNoSession
	}

	balances, err := s.reader.TokenBalances(ctx, session.Account)
	if err != nil {
		return nil, err
	}

	nonZero := make([]evmrpc.TokenBalance, 0, len(balances))
	for _, balance := range balances {
		if balance.Balance != nil && balance.Balance.Sign() > 0 {
			nonZero = append(nonZero, balance)
		}
	}

	compatible := s.probeAll(ctx, session.Account, nonZero)

	assets := s.fetchMetadata(ctx, session.Account, nonZero, compatible)

	if s.config.IncludeNative {
		if native, ok := s.nativeAsset(ctx, session); ok {
			assets = append(assets, native)
		}
	}

	logger.Info("Asset scan complete",
		zap.String("account", session.Account.Hex()),
		zap.Int("candidates", len(nonZero)),
		zap.Int("compatible", len(assets)))

	return assets, nil
}

// probeAll runs the compatibility probe for every token concurrently and
// returns a per-index compatibility flag. A probe reads nonces(owner); any
// revert or undecodable result marks the token incompatible.
func (s *Scanner) probeAll(ctx context.Context, owner common.Address, balances []evmrpc.TokenBalance) []bool {
	compatible := make([]bool, len(balances))

	g, gctx := errgroup.WithContext(ctx)
	for i, balance := range balances {
		if permitAllowList[balance.Contract] {
			compatible[i] = true
			continue
		}

		g.Go(func() error {
			result, err := s.reader.CallContract(gctx, balance.Contract, evmrpc.PackNoncesCall(owner))
			if err != nil {
				logger.Debug("Compatibility probe reverted",
					zap.String("contract", balance.Contract.Hex()),
					zap.Error(err))
				return nil
			}
			if _, err := evmrpc.UnpackBigInt("nonces", result); err != nil {
				return nil
			}
			compatible[i] = true
			return nil
		})
	}
	_ = g.Wait()

	return compatible
}

// fetchMetadata fetches name, symbol, decimals and balance for each
// compatible token, four calls per token in parallel. A failed token is
// dropped; the returned slice preserves enumeration order.
func (s *Scanner) fetchMetadata(ctx context.Context, owner common.Address, balances []evmrpc.TokenBalance, compatible []bool) []Asset {
	results := make([]*Asset, len(balances))

	g, gctx := errgroup.WithContext(ctx)
	for i, balance := range balances {
		if !compatible[i] {
			continue
		}

		g.Go(func() error {
			asset, err := s.fetchOne(gctx, owner, balance.Contract)
			if err != nil {
				logger.Warn("Token metadata fetch failed, dropping token",
					zap.String("contract", balance.Contract.Hex()),
					zap.Error(err))
				return nil
			}
			results[i] = asset
			return nil
		})
	}
	_ = g.Wait()

	assets := make([]Asset, 0, len(balances))
	for _, asset := range results {
		if asset != nil {
			assets = append(assets, *asset)
		}
	}
	return assets
}

func (s *Scanner) fetchOne(ctx context.Context, owner, contract common.Address) (*Asset, error) {
	asset := &Asset{Contract: &contract}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := s.reader.CallContract(gctx, contract, evmrpc.PackNameCall())
		if err != nil {
			return err
		}
		asset.Name, err = evmrpc.UnpackString("name", data)
		return err
	})
	g.Go(func() error {
		data, err := s.reader.CallContract(gctx, contract, evmrpc.PackSymbolCall())
		if err != nil {
			return err
		}
		asset.Symbol, err = evmrpc.UnpackString("symbol", data)
		return err
	})
	g.Go(func() error {
		data, err := s.reader.CallContract(gctx, contract, evmrpc.PackDecimalsCall())
		if err != nil {
			return err
		}
		asset.Decimals, err = evmrpc.UnpackUint8("decimals", data)
		return err
	})
	g.Go(func() error {
		data, err := s.reader.CallContract(gctx, contract, evmrpc.PackBalanceOfCall(owner))
		if err != nil {
			return err
		}
		asset.Balance, err = evmrpc.UnpackBigInt("balanceOf", data)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return asset, nil
}

// nativeAsset builds the native pseudo-asset with a conservative fee reserve
// subtracted. The reserve covers worst-case batch execution; when it meets or
// exceeds the balance the native asset is excluded entirely.
func (s *Scanner) nativeAsset(ctx context.Context, session *wallet.Session) (Asset, bool) {
	network, err := chains.Resolve(session.ChainID)
	if err != nil {
		logger.Warn("Native asset skipped for unsupported chain",
			zap.Int64("chain_id", session.ChainID))
		return Asset{}, false
	}

	balance, err := s.reader.NativeBalance(ctx, session.Account)
	if err != nil {
		logger.Warn("Native balance fetch failed", zap.Error(err))
		return Asset{}, false
	}

	gasPrice, err := s.reader.GasPrice(ctx)
	if err != nil {
		logger.Warn("Gas price fetch failed", zap.Error(err))
		return Asset{}, false
	}

	// reserve = estimated gas × fee per gas, inflated by half again.
	reserve := new(big.Int).Mul(big.NewInt(constants.BatchGasLimitEstimate), gasPrice)
	reserve.Mul(reserve, big.NewInt(3))
	reserve.Div(reserve, big.NewInt(2))

	if balance.Cmp(reserve) <= 0 {
		logger.Debug("Native asset excluded, balance does not cover fee reserve",
			zap.String("balance", balance.String()),
			zap.String("reserve", reserve.String()))
		return Asset{}, false
	}

	return Asset{
		Contract: nil,
		Symbol:   network.NativeCurrency.Symbol,
		Name:     network.NativeCurrency.Name,
		Balance:  new(big.Int).Sub(balance, reserve),
		Decimals: network.NativeCurrency.Decimals,
	}, true
}
