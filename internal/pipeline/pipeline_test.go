package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/permitpay/permitpay-go/internal/evmrpc"
	"github.com/permitpay/permitpay-go/internal/logger"
	"github.com/permitpay/permitpay-go/internal/pipeline"
	"github.com/permitpay/permitpay-go/internal/relay"
	"github.com/permitpay/permitpay-go/internal/scanner"
	"github.com/permitpay/permitpay-go/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
}

var (
	ownerAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	relayerAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenAddr   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
)

type stubSigner struct {
	signErr error
	sendErr error
}

func (s *stubSigner) Address() common.Address { return ownerAddr }

func (s *stubSigner) SignTypedData(_ context.Context, _ apitypes.TypedData) ([]byte, error) {
	if s.signErr != nil {
		return nil, s.signErr
	}
	return make([]byte, 65), nil
}

func (s *stubSigner) SendCalls(_ context.Context, _ wallet.BatchRequest) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return "bundle-1", nil
}

type stubProvider struct {
	signer     wallet.Signer
	connectErr error
}

func (p *stubProvider) Info() wallet.ProviderInfo {
	return wallet.ProviderInfo{ID: "stub", Name: "Stub Wallet"}
}

func (p *stubProvider) RequestAccounts(_ context.Context) (wallet.Signer, common.Address, int64, error) {
	if p.connectErr != nil {
		return nil, common.Address{}, 0, p.connectErr
	}
	return p.signer, ownerAddr, 1, nil
}

type fakeScanner struct {
	assets []scanner.Asset
	err    error
}

func (f *fakeScanner) Scan(_ context.Context, _ *wallet.Session) ([]scanner.Asset, error) {
	return f.assets, f.err
}

type fakeEngine struct {
	gotMinUSD float64
}

func (f *fakeEngine) SelectHighest(_ context.Context, assets []scanner.Asset, _ int64) (scanner.Asset, bool) {
	if len(assets) == 0 {
		return scanner.Asset{}, false
	}
	return assets[0], true
}

func (f *fakeEngine) SelectAboveValue(_ context.Context, assets []scanner.Asset, _ int64, minUSD float64) []scanner.Asset {
	f.gotMinUSD = minUSD
	return assets
}

type fakeRelay struct {
	configErr   error
	executeErr  error
	executed    *relay.PermitAuthorization
	configCalls int
	telemetry   chan relay.TelemetryEvent
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{telemetry: make(chan relay.TelemetryEvent, 1)}
}

func (f *fakeRelay) FetchConfig(_ context.Context) (common.Address, error) {
	f.configCalls++
	if f.configErr != nil {
		return common.Address{}, f.configErr
	}
	return relayerAddr, nil
}

func (f *fakeRelay) InitDeposit(_ context.Context, _ int64, _ common.Address, _ []relay.DepositAsset) (common.Address, error) {
	return common.HexToAddress("0x3333333333333333333333333333333333333333"), nil
}

func (f *fakeRelay) ExecuteTransfer(_ context.Context, auth relay.PermitAuthorization) (*relay.SubmitResult, error) {
	f.executed = &auth
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	return &relay.SubmitResult{Success: true, ContractAddress: "0x4444444444444444444444444444444444444444"}, nil
}

func (f *fakeRelay) LogTelemetry(_ context.Context, event relay.TelemetryEvent) {
	select {
	case f.telemetry <- event:
	default:
	}
}

type fakeReader struct{}

func (fakeReader) CallContract(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	selector := data[:4]
	switch {
	case bytes.Equal(selector, evmrpc.PackNoncesCall(ownerAddr)[:4]):
		return common.LeftPadBytes(big.NewInt(3).Bytes(), 32), nil
	case bytes.Equal(selector, evmrpc.PackNameCall()[:4]):
		return encodeString("Token A"), nil
	case bytes.Equal(selector, evmrpc.PackVersionCall()[:4]):
		return encodeString("1"), nil
	}
	return nil, errors.New("unexpected call")
}

func encodeString(value string) []byte {
	var encoded []byte
	encoded = append(encoded, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
	encoded = append(encoded, common.LeftPadBytes(big.NewInt(int64(len(value))).Bytes(), 32)...)
	encoded = append(encoded, common.RightPadBytes([]byte(value), 32)...)
	return encoded
}

func tokenAsset() scanner.Asset {
	contract := tokenAddr
	return scanner.Asset{
		Contract: &contract,
		Symbol:   "TKA",
		Name:     "Token A",
		Balance:  big.NewInt(5000000),
		Decimals: 6,
	}
}

func newPipeline(provider wallet.Provider, scan *fakeScanner, engine *fakeEngine, relayService *fakeRelay) *pipeline.Pipeline {
	registry := wallet.NewRegistry()
	registry.Register("stub", provider)
	return pipeline.NewPipeline(registry, scan, engine, relayService, fakeReader{})
}

func TestRunPermit(t *testing.T) {
	relayService := newFakeRelay()
	p := newPipeline(
		&stubProvider{signer: &stubSigner{}},
		&fakeScanner{assets: []scanner.Asset{tokenAsset()}},
		&fakeEngine{},
		relayService,
	)

	result := p.Run(context.Background(), pipeline.RunParams{ProviderID: "stub", Kind: pipeline.KindPermit})

	assert.Equal(t, pipeline.StatusCompleted, result.Status)
	assert.Equal(t, "payment authorized", result.Message)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", result.ContractAddress)

	require.NotNil(t, relayService.executed)
	assert.Equal(t, tokenAddr.Hex(), relayService.executed.Token)
	assert.Equal(t, relayerAddr.Hex(), relayService.executed.Spender)
	assert.Equal(t, "5000000", relayService.executed.Value)

	select {
	case event := <-relayService.telemetry:
		assert.Equal(t, ownerAddr.Hex(), event.Account)
		assert.Len(t, event.Assets, 1)
	case <-time.After(time.Second):
		t.Fatal("telemetry was never reported")
	}
}

func TestRunConnectionRejected(t *testing.T) {
	p := newPipeline(
		&stubProvider{connectErr: wallet.ErrConnectionRejected},
		&fakeScanner{}, &fakeEngine{}, newFakeRelay(),
	)

	result := p.Run(context.Background(), pipeline.RunParams{ProviderID: "stub"})
	assert.Equal(t, pipeline.StatusRejected, result.Status)
	assert.Equal(t, "wallet connection rejected", result.Message)
}

func TestRunUnknownProvider(t *testing.T) {
	p := newPipeline(&stubProvider{signer: &stubSigner{}},
		&fakeScanner{}, &fakeEngine{}, newFakeRelay())

	result := p.Run(context.Background(), pipeline.RunParams{ProviderID: "missing"})
	assert.Equal(t, pipeline.StatusFailed, result.Status)
}

func TestRunScanFailure(t *testing.T) {
	p := newPipeline(
		&stubProvider{signer: &stubSigner{}},
		&fakeScanner{err: evmrpc.ErrBalanceFetchFailed},
		&fakeEngine{}, newFakeRelay(),
	)

	result := p.Run(context.Background(), pipeline.RunParams{ProviderID: "stub"})
	assert.Equal(t, pipeline.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "failed to scan assets")
}

func TestRunNothingToAuthorize(t *testing.T) {
	relayService := newFakeRelay()
	p := newPipeline(
		&stubProvider{signer: &stubSigner{}},
		&fakeScanner{}, &fakeEngine{}, relayService,
	)

	result := p.Run(context.Background(), pipeline.RunParams{ProviderID: "stub", Kind: pipeline.KindPermit})

	assert.Equal(t, pipeline.StatusNothingToAuthorize, result.Status)
	// With nothing to authorize the relay must not be consulted.
	assert.Zero(t, relayService.configCalls)
}

func TestRunPermitSkipsNativeAssets(t *testing.T) {
	relayService := newFakeRelay()
	native := scanner.Asset{Symbol: "ETH", Balance: big.NewInt(1), Decimals: 18}
	p := newPipeline(
		&stubProvider{signer: &stubSigner{}},
		&fakeScanner{assets: []scanner.Asset{native}},
		&fakeEngine{}, relayService,
	)

	result := p.Run(context.Background(), pipeline.RunParams{ProviderID: "stub", Kind: pipeline.KindPermit})
	assert.Equal(t, pipeline.StatusNothingToAuthorize, result.Status)
}

func TestRunPermitSigningRejected(t *testing.T) {
	p := newPipeline(
		&stubProvider{signer: &stubSigner{signErr: wallet.ErrSigningRejected}},
		&fakeScanner{assets: []scanner.Asset{tokenAsset()}},
		&fakeEngine{}, newFakeRelay(),
	)

	result := p.Run(context.Background(), pipeline.RunParams{ProviderID: "stub", Kind: pipeline.KindPermit})
	assert.Equal(t, pipeline.StatusRejected, result.Status)
	assert.Equal(t, "signature request rejected", result.Message)
}

func TestRunPermitRelayFailure(t *testing.T) {
	relayService := newFakeRelay()
	relayService.executeErr = relay.ErrRelayFailed
	p := newPipeline(
		&stubProvider{signer: &stubSigner{}},
		&fakeScanner{assets: []scanner.Asset{tokenAsset()}},
		&fakeEngine{}, relayService,
	)

	result := p.Run(context.Background(), pipeline.RunParams{ProviderID: "stub", Kind: pipeline.KindPermit})
	assert.Equal(t, pipeline.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "relay execution failed")
}

func TestRunBatch(t *testing.T) {
	engine := &fakeEngine{}
	p := newPipeline(
		&stubProvider{signer: &stubSigner{}},
		&fakeScanner{assets: []scanner.Asset{tokenAsset()}},
		engine, newFakeRelay(),
	)

	result := p.Run(context.Background(), pipeline.RunParams{ProviderID: "stub", Kind: pipeline.KindBatch})

	assert.Equal(t, pipeline.StatusCompleted, result.Status)
	assert.Equal(t, "bundle-1", result.BundleID)
	// Zero threshold falls back to the $1 default.
	assert.Equal(t, 1.0, engine.gotMinUSD)
}

func TestRunBatchUnsupportedWallet(t *testing.T) {
	p := newPipeline(
		&stubProvider{signer: &stubSigner{sendErr: wallet.ErrBatchUnsupported}},
		&fakeScanner{assets: []scanner.Asset{tokenAsset()}},
		&fakeEngine{}, newFakeRelay(),
	)

	result := p.Run(context.Background(), pipeline.RunParams{ProviderID: "stub", Kind: pipeline.KindBatch})
	assert.Equal(t, pipeline.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "atomic batches")
}
