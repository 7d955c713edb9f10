package prices_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/permitpay/permitpay-go/internal/logger"
	"github.com/permitpay/permitpay-go/internal/prices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
}

const (
	tokenA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tokenB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// fakeOracle counts calls and serves canned prices; entries absent from the
// price map are dropped from responses, mirroring the real oracle.
type fakeOracle struct {
	tokenPrices      map[string]float64
	assetPrices      map[string]float64
	tokenCalls       int
	assetCalls       int
	failTokenFetches bool
	// dropOnBatch lists contracts silently missing from batched responses
	// but served by single-asset requests.
	dropOnBatch map[string]bool
}

func (f *fakeOracle) TokenPrices(_ context.Context, _ string, contracts []string) (map[string]float64, error) {
	f.tokenCalls++
	if f.failTokenFetches {
		return nil, errors.New("oracle unavailable")
	}

	result := make(map[string]float64)
	for _, contract := range contracts {
		if len(contracts) > 1 && f.dropOnBatch[contract] {
			continue
		}
		if price, ok := f.tokenPrices[contract]; ok {
			result[contract] = price
		}
	}
	return result, nil
}

func (f *fakeOracle) AssetPrices(_ context.Context, ids []string) (map[string]float64, error) {
	f.assetCalls++
	result := make(map[string]float64)
	for _, id := range ids {
		if price, ok := f.assetPrices[id]; ok {
			result[id] = price
		}
	}
	return result, nil
}

func TestGetPricesCacheTTL(t *testing.T) {
	oracle := &fakeOracle{tokenPrices: map[string]float64{tokenA: 2.0}}
	cache := prices.NewCacheWithTTL(50 * time.Millisecond)
	service := prices.NewServiceWithCache(oracle, cache)
	ctx := context.Background()

	result := service.GetPrices(ctx, []string{tokenA}, 1)
	assert.Equal(t, 2.0, result[tokenA])
	assert.Equal(t, 1, oracle.tokenCalls)

	// Within the TTL the cache answers; no network call.
	result = service.GetPrices(ctx, []string{tokenA}, 1)
	assert.Equal(t, 2.0, result[tokenA])
	assert.Equal(t, 1, oracle.tokenCalls)

	// Past the TTL the entry is treated as absent and refetched.
	time.Sleep(60 * time.Millisecond)
	result = service.GetPrices(ctx, []string{tokenA}, 1)
	assert.Equal(t, 2.0, result[tokenA])
	assert.Equal(t, 2, oracle.tokenCalls)
}

func TestGetPricesCaseNormalization(t *testing.T) {
	oracle := &fakeOracle{tokenPrices: map[string]float64{tokenA: 2.0}}
	service := prices.NewService(oracle)
	ctx := context.Background()

	upper := "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	service.GetPrices(ctx, []string{upper}, 1)
	require.Equal(t, 1, oracle.tokenCalls)

	// A differently cased request must hit the same cache entry.
	result := service.GetPrices(ctx, []string{tokenA}, 1)
	assert.Equal(t, 2.0, result[tokenA])
	assert.Equal(t, 1, oracle.tokenCalls)
}

func TestGetPricesBatchDropFallsBackToSingleRequests(t *testing.T) {
	oracle := &fakeOracle{
		tokenPrices: map[string]float64{tokenA: 2.0, tokenB: 1000.0},
		dropOnBatch: map[string]bool{tokenB: true},
	}
	service := prices.NewService(oracle)

	result := service.GetPrices(context.Background(), []string{tokenA, tokenB}, 1)

	assert.Equal(t, 2.0, result[tokenA])
	assert.Equal(t, 1000.0, result[tokenB])
	// One batched request plus one single-asset retry for the dropped entry.
	assert.Equal(t, 2, oracle.tokenCalls)
}

func TestGetPricesFetchFailureYieldsExplicitZero(t *testing.T) {
	oracle := &fakeOracle{failTokenFetches: true}
	service := prices.NewService(oracle)

	result := service.GetPrices(context.Background(), []string{tokenA}, 1)

	// Never an unresolved gap: the asset resolves to an explicit zero.
	price, ok := result[tokenA]
	require.True(t, ok)
	assert.Equal(t, 0.0, price)
}

func TestGetPricesUnknownAssetZeroAfterAttempts(t *testing.T) {
	oracle := &fakeOracle{tokenPrices: map[string]float64{tokenA: 2.0}}
	service := prices.NewService(oracle)

	result := service.GetPrices(context.Background(), []string{tokenA, tokenB}, 1)

	assert.Equal(t, 2.0, result[tokenA])
	assert.Equal(t, 0.0, result[tokenB])
}

func TestGetPricesUnsupportedChainServesCacheOnly(t *testing.T) {
	oracle := &fakeOracle{tokenPrices: map[string]float64{tokenA: 2.0, tokenB: 3.0}}
	cache := prices.NewCache()
	service := prices.NewServiceWithCache(oracle, cache)
	ctx := context.Background()

	// Warm the cache for tokenA on a supported chain.
	service.GetPrices(ctx, []string{tokenA}, 1)
	calls := oracle.tokenCalls

	// Unsupported chain: cached subset only, no oracle traffic, no error.
	result := service.GetPrices(ctx, []string{tokenA, tokenB}, 424242)
	assert.Equal(t, 2.0, result[tokenA])
	_, ok := result[tokenB]
	assert.False(t, ok)
	assert.Equal(t, calls, oracle.tokenCalls)
}

func TestGetPricesNativeSymbol(t *testing.T) {
	oracle := &fakeOracle{assetPrices: map[string]float64{"ethereum": 3000.0}}
	service := prices.NewService(oracle)

	result := service.GetPrices(context.Background(), []string{"eth"}, 1)

	assert.Equal(t, 3000.0, result["eth"])
	assert.Equal(t, 1, oracle.assetCalls)

	// Served from cache on the second query.
	result = service.GetPrices(context.Background(), []string{"ETH"}, 1)
	assert.Equal(t, 3000.0, result["eth"])
	assert.Equal(t, 1, oracle.assetCalls)
}
