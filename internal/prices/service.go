package prices

import (
	"context"
	"strings"

	"github.com/permitpay/permitpay-go/internal/chains"
	"github.com/permitpay/permitpay-go/internal/logger"
	"go.uber.org/zap"
)

// maxFetchAttempts bounds how many oracle passes a stale asset gets before it
// falls back to an explicit zero price. Batched requests have been observed to
// silently drop entries for some assets, so the second pass queries the
// missing assets one by one.
const maxFetchAttempts = 2

// Service serves USD prices through the cache, fetching stale or missing
// entries from the oracle. Every requested asset resolves to a price or an
// explicit zero; callers must treat zero as "unknown", not a market price.
type Service struct {
	cache  *Cache
	oracle Oracle
}

// NewService creates a price service with the standard cache TTL.
func NewService(oracle Oracle) *Service {
	return NewServiceWithCache(oracle, NewCache())
}

// NewServiceWithCache creates a price service around an existing cache.
func NewServiceWithCache(oracle Oracle, cache *Cache) *Service {
	return &Service{
		cache:  cache,
		oracle: oracle,
	}
}

// GetPrices resolves USD prices for the given asset ids on a chain. Asset ids
// are contract addresses, or the chain's native symbol for the native
// currency. Fresh cache entries are served without a network call.
func (s *Service) GetPrices(ctx context.Context, assetIDs []string, chainID int64) map[string]float64 {
	result := make(map[string]float64, len(assetIDs))
	var stale []string

	for _, assetID := range assetIDs {
		if price, ok := s.cache.Get(assetID); ok {
			result[normalizeAssetID(assetID)] = price
		} else {
			stale = append(stale, normalizeAssetID(assetID))
		}
	}

	if len(stale) == 0 {
		return result
	}

	network, err := chains.Resolve(chainID)
	if err != nil {
		// No price platform for this chain; serve what the cache has.
		logger.Warn("No price platform for chain, serving cached prices only",
			zap.Int64("chain_id", chainID),
			zap.Int("unpriced_assets", len(stale)))
		return result
	}

	fetched := s.fetchStale(ctx, network, stale)
	for assetID, price := range fetched {
		result[assetID] = price
	}

	return result
}

// fetchStale resolves every stale asset to a price or an explicit zero.
func (s *Service) fetchStale(ctx context.Context, network chains.Network, stale []string) map[string]float64 {
	var contracts, natives []string
	for _, assetID := range stale {
		if strings.HasPrefix(assetID, "0x") {
			contracts = append(contracts, assetID)
		} else {
			natives = append(natives, assetID)
		}
	}

	result := make(map[string]float64, len(stale))

	missing := contracts
	for attempt := 1; attempt <= maxFetchAttempts && len(missing) > 0; attempt++ {
		missing = s.fetchContracts(ctx, network.PricePlatform, missing, attempt, result)
	}
	for _, assetID := range missing {
		logger.Warn("No price resolved for asset, falling back to zero",
			zap.String("asset_id", assetID))
		result[assetID] = 0
	}

	for _, symbol := range natives {
		result[symbol] = s.fetchNative(ctx, network, symbol)
	}

	return result
}

// fetchContracts runs one oracle pass and returns the assets still missing.
// The first attempt batches; later attempts query one asset per request.
func (s *Service) fetchContracts(ctx context.Context, platform string, contracts []string, attempt int, result map[string]float64) []string {
	chunks := [][]string{contracts}
	if attempt > 1 {
		chunks = make([][]string, 0, len(contracts))
		for _, contract := range contracts {
			chunks = append(chunks, []string{contract})
		}
	}

	var missing []string
	for _, chunk := range chunks {
		fetched, err := s.oracle.TokenPrices(ctx, platform, chunk)
		if err != nil {
			logger.Warn("Token price fetch failed",
				zap.String("platform", platform),
				zap.Int("attempt", attempt),
				zap.Int("assets", len(chunk)),
				zap.Error(err))
			missing = append(missing, chunk...)
			continue
		}

		for _, contract := range chunk {
			price, ok := fetched[contract]
			if !ok {
				missing = append(missing, contract)
				continue
			}
			s.cache.Set(contract, price)
			result[contract] = price
		}
	}

	return missing
}

// fetchNative resolves the native currency price, or zero when unavailable.
func (s *Service) fetchNative(ctx context.Context, network chains.Network, symbol string) float64 {
	fetched, err := s.oracle.AssetPrices(ctx, []string{network.NativePriceID})
	if err != nil {
		logger.Warn("Native price fetch failed",
			zap.String("asset_id", network.NativePriceID),
			zap.Error(err))
		return 0
	}

	price, ok := fetched[strings.ToLower(network.NativePriceID)]
	if !ok {
		return 0
	}

	s.cache.Set(symbol, price)
	return price
}
