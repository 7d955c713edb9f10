package valuation

import (
	"context"
	"sort"

	"github.com/permitpay/permitpay-go/internal/logger"
	"github.com/permitpay/permitpay-go/internal/scanner"
	"go.uber.org/zap"
)

// PriceSource resolves USD prices for asset ids; *prices.Service satisfies it.
type PriceSource interface {
	GetPrices(ctx context.Context, assetIDs []string, chainID int64) map[string]float64
}

// Engine values scanned assets in USD and applies the selection policies.
type Engine struct {
	prices PriceSource
}

// NewEngine creates a valuation engine over a price source.
func NewEngine(prices PriceSource) *Engine {
	return &Engine{prices: prices}
}

// Rank returns the assets ordered by descending USD value. Assets with an
// unknown price keep value zero but stay ranked. The sort is stable: ties
// keep discovery order, and identical input yields identical output.
//
// With exactly one asset the price fetch and sort are skipped entirely and
// the asset is returned as-is; this fast path is deliberate.
func (e *Engine) Rank(ctx context.Context, assets []scanner.Asset, chainID int64) []scanner.Asset {
	if len(assets) <= 1 {
		return assets
	}

	ids := make([]string, len(assets))
	for i, asset := range assets {
		ids[i] = asset.ID()
	}

	priceMap := e.prices.GetPrices(ctx, ids, chainID)

	ranked := make([]scanner.Asset, len(assets))
	for i, asset := range assets {
		asset.FiatValue = asset.Units() * priceMap[asset.ID()]
		ranked[i] = asset
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FiatValue > ranked[j].FiatValue
	})

	logger.Debug("Assets ranked",
		zap.Int("count", len(ranked)),
		zap.Float64("top_value_usd", ranked[0].FiatValue))

	return ranked
}

// SelectHighest returns the single most valuable asset, or false when
// nothing qualifies. An empty result is "nothing to authorize", not an error.
func (e *Engine) SelectHighest(ctx context.Context, assets []scanner.Asset, chainID int64) (scanner.Asset, bool) {
	if len(assets) == 0 {
		return scanner.Asset{}, false
	}

	ranked := e.Rank(ctx, assets, chainID)
	return ranked[0], true
}

// SelectAboveValue returns every asset worth more than minUSD, ranked
// descending, for multi-asset batch flows. A single compatible asset is
// returned directly without pricing.
func (e *Engine) SelectAboveValue(ctx context.Context, assets []scanner.Asset, chainID int64, minUSD float64) []scanner.Asset {
	if len(assets) <= 1 {
		return assets
	}

	ranked := e.Rank(ctx, assets, chainID)

	selected := make([]scanner.Asset, 0, len(ranked))
	for _, asset := range ranked {
		if asset.FiatValue > minUSD {
			selected = append(selected, asset)
		}
	}
	return selected
}
