package prices

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/permitpay/permitpay-go/internal/client/httpclient"
)

const defaultOracleBaseURL = "https://api.coingecko.com/api/v3"

// Oracle fetches USD unit prices. An absent entry in a returned mapping means
// "no price available", not zero.
type Oracle interface {
	// TokenPrices returns USD prices for contract addresses on a platform,
	// keyed by lowercase contract address.
	TokenPrices(ctx context.Context, platform string, contracts []string) (map[string]float64, error)
	// AssetPrices returns USD prices for oracle asset ids (native currencies),
	// keyed by asset id.
	AssetPrices(ctx context.Context, ids []string) (map[string]float64, error)
}

// HTTPOracle is the price oracle client.
type HTTPOracle struct {
	httpClient *httpclient.Client
}

// NewHTTPOracle creates an oracle client against the default endpoint.
func NewHTTPOracle() *HTTPOracle {
	return NewHTTPOracleWithBaseURL(defaultOracleBaseURL)
}

// NewHTTPOracleWithBaseURL creates an oracle client against a custom endpoint.
func NewHTTPOracleWithBaseURL(baseURL string) *HTTPOracle {
	return &HTTPOracle{
		httpClient: httpclient.New(
			httpclient.WithBaseURL(baseURL),
		),
	}
}

// oracleQuote carries the per-currency quote map; "usd" may be absent when
// the oracle has no price for the asset.
type oracleQuote map[string]float64

// TokenPrices fetches prices for contract addresses on the given platform.
func (o *HTTPOracle) TokenPrices(ctx context.Context, platform string, contracts []string) (map[string]float64, error) {
	if len(contracts) == 0 {
		return map[string]float64{}, nil
	}

	path := fmt.Sprintf("/simple/token_price/%s", platform)
	resp, err := o.httpClient.Get(ctx, path,
		httpclient.WithQueryParam("contract_addresses", strings.ToLower(strings.Join(contracts, ","))),
		httpclient.WithQueryParam("vs_currencies", "usd"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token prices: %w", err)
	}

	return o.decodePrices(resp)
}

// AssetPrices fetches prices for oracle asset ids.
func (o *HTTPOracle) AssetPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	resp, err := o.httpClient.Get(ctx, "/simple/price",
		httpclient.WithQueryParam("ids", strings.ToLower(strings.Join(ids, ","))),
		httpclient.WithQueryParam("vs_currencies", "usd"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset prices: %w", err)
	}

	return o.decodePrices(resp)
}

func (o *HTTPOracle) decodePrices(resp *http.Response) (map[string]float64, error) {
	var body map[string]oracleQuote
	if err := o.httpClient.ProcessJSONResponse(resp, &body); err != nil {
		return nil, fmt.Errorf("failed to decode oracle response: %w", err)
	}

	result := make(map[string]float64, len(body))
	for assetID, quote := range body {
		usd, ok := quote["usd"]
		if !ok {
			// No price available; leave the entry absent rather than zero.
			continue
		}
		result[strings.ToLower(assetID)] = usd
	}
	return result, nil
}
