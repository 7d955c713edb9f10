package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/permitpay/permitpay-go/internal/client/httpclient"
	"github.com/permitpay/permitpay-go/internal/logger"
	"go.uber.org/zap"
)

// ErrRelayFailed indicates the relay rejected a submission or was unreachable.
var ErrRelayFailed = errors.New("relay submission failed")

// Client talks to the relay service. All endpoints are JSON over POST with an
// API-key header. No retries here beyond the transport defaults; retry
// policy belongs to the caller.
type Client struct {
	httpClient *httpclient.Client
}

// NewClient creates a relay client for the given endpoint and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: httpclient.New(
			httpclient.WithBaseURL(baseURL),
			httpclient.WithDefaultHeader("X-API-Key", apiKey),
		),
	}
}

// PermitAuthorization is the signed single-asset transfer authorization sent
// to the relay for execution.
type PermitAuthorization struct {
	Token    string `json:"token"`
	Owner    string `json:"owner"`
	Spender  string `json:"spender"`
	Value    string `json:"value"`
	Nonce    string `json:"nonce"`
	Deadline string `json:"deadline"`
	V        uint8  `json:"v"`
	R        string `json:"r"`
	S        string `json:"s"`
	ChainID  int64  `json:"chainId"`
}

// DepositAsset describes one selected asset in a batch initialization.
type DepositAsset struct {
	AssetID   string  `json:"assetId"`
	Symbol    string  `json:"symbol"`
	FiatValue float64 `json:"fiatValue"`
}

// SubmitResult is the relay's interpretation of a submission.
type SubmitResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	ContractAddress string `json:"contractAddress"`
}

type configResponse struct {
	RelayerAddress string `json:"relayerAddress"`
}

type depositResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	DepositAddress string `json:"depositAddress"`
}

// FetchConfig retrieves the relayer address that permits are granted to.
// This call gates the permit flow.
func (c *Client) FetchConfig(ctx context.Context) (common.Address, error) {
	resp, err := c.httpClient.Post(ctx, "/v1/config", struct{}{})
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}

	var config configResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &config); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	if !common.IsHexAddress(config.RelayerAddress) {
		return common.Address{}, fmt.Errorf("%w: invalid relayer address %q", ErrRelayFailed, config.RelayerAddress)
	}

	return common.HexToAddress(config.RelayerAddress), nil
}

// InitDeposit initializes a batch deposit for the selected assets and returns
// the destination address. This call gates the batch flow.
func (c *Client) InitDeposit(ctx context.Context, chainID int64, owner common.Address, assets []DepositAsset) (common.Address, error) {
	body := map[string]interface{}{
		"chainId": chainID,
		"owner":   owner.Hex(),
		"assets":  assets,
	}

	resp, err := c.httpClient.Post(ctx, "/v1/deposits", body)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s", ErrRelayFailed, serverMessage(err))
	}

	var deposit depositResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &deposit); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	if !deposit.Success {
		return common.Address{}, fmt.Errorf("%w: %s", ErrRelayFailed, messageOrDefault(deposit.Message))
	}
	if !common.IsHexAddress(deposit.DepositAddress) {
		return common.Address{}, fmt.Errorf("%w: invalid deposit address %q", ErrRelayFailed, deposit.DepositAddress)
	}

	return common.HexToAddress(deposit.DepositAddress), nil
}

// ExecuteTransfer submits a signed permit authorization for on-chain
// execution. Any non-success status or an explicit success:false body is a
// relay failure carrying the server message when present.
func (c *Client) ExecuteTransfer(ctx context.Context, auth PermitAuthorization) (*SubmitResult, error) {
	resp, err := c.httpClient.Post(ctx, "/v1/transfers", auth)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRelayFailed, serverMessage(err))
	}

	var result SubmitResult
	if err := c.httpClient.ProcessJSONResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrRelayFailed, messageOrDefault(result.Message))
	}

	return &result, nil
}

// serverMessage extracts the server-provided message from an error response
// body, falling back to the transport error.
func serverMessage(err error) string {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) && httpErr.Body != "" {
		var body struct {
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal([]byte(httpErr.Body), &body); jsonErr == nil && body.Message != "" {
			return body.Message
		}
	}
	return err.Error()
}

func messageOrDefault(message string) string {
	if message != "" {
		return message
	}
	return "relay rejected the request"
}

// TelemetryEvent is a best-effort connection report.
type TelemetryEvent struct {
	SessionID string         `json:"sessionId"`
	Account   string         `json:"account"`
	ChainID   int64          `json:"chainId"`
	Assets    []DepositAsset `json:"assets"`
}

// LogTelemetry reports a connection event. Failures are logged and never
// propagated; the critical path must not wait on or fail with telemetry.
func (c *Client) LogTelemetry(ctx context.Context, event TelemetryEvent) {
	resp, err := c.httpClient.Post(ctx, "/v1/telemetry", event)
	if err != nil {
		logger.Debug("Telemetry report failed", zap.Error(err))
		return
	}
	_ = resp.Body.Close()
}
