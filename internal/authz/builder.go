package authz

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/permitpay/permitpay-go/internal/constants"
	"github.com/permitpay/permitpay-go/internal/evmrpc"
	"github.com/permitpay/permitpay-go/internal/logger"
	"github.com/permitpay/permitpay-go/internal/relay"
	"github.com/permitpay/permitpay-go/internal/scanner"
	"github.com/permitpay/permitpay-go/internal/wallet"
	"go.uber.org/zap"
)

// ErrAuthorizationFailed indicates the authorization could not be built or
// submitted. User rejection is reported as wallet.ErrSigningRejected instead.
var ErrAuthorizationFailed = errors.New("authorization failed")

// State is the builder's position in the authorization lifecycle.
type State int

const (
	StateIdle State = iota
	StateAssetsSelected
	StateNonceFetched
	StateSigned
	StateSubmitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAssetsSelected:
		return "assets_selected"
	case StateNonceFetched:
		return "nonce_fetched"
	case StateSigned:
		return "signed"
	case StateSubmitted:
		return "submitted"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ChainReader is the read capability the builder needs: nonce and EIP-712
// domain fields come from the token contract, never from a cache.
type ChainReader interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// DepositInitializer acquires the destination address for a batch.
// *relay.Client satisfies it.
type DepositInitializer interface {
	InitDeposit(ctx context.Context, chainID int64, owner common.Address, assets []relay.DepositAsset) (common.Address, error)
}

// Builder assembles one authorization per instance. It walks
// idle → assets_selected → nonce_fetched → signed → submitted, or drops into
// failed; both submitted and failed are terminal, and reusing a finished
// builder is an error.
type Builder struct {
	reader   ChainReader
	deposits DepositInitializer

	mu    sync.Mutex
	state State
}

// NewBuilder creates a single-use authorization builder.
func NewBuilder(reader ChainReader, deposits DepositInitializer) *Builder {
	return &Builder{reader: reader, deposits: deposits}
}

// State returns the builder's current lifecycle state.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Builder) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateIdle {
		return fmt.Errorf("%w: builder already used (state %s)", ErrAuthorizationFailed, b.state)
	}
	b.state = StateAssetsSelected
	return nil
}

func (b *Builder) advance(to State) {
	b.mu.Lock()
	from := b.state
	b.state = to
	b.mu.Unlock()

	logger.Debug("Authorization state transition",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

func (b *Builder) fail(err error) error {
	b.advance(StateFailed)
	return err
}

// Complete records a successful relay submission, moving signed → submitted.
func (b *Builder) Complete() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateSigned {
		return fmt.Errorf("%w: cannot complete from state %s", ErrAuthorizationFailed, b.state)
	}
	b.state = StateSubmitted
	return nil
}

// Fail records an external failure, e.g. a relay rejection after signing.
func (b *Builder) Fail() {
	b.advance(StateFailed)
}

// BuildPermit produces a signed EIP-2612 permit over the asset's full balance
// granted to spender. The permit nonce is read fresh from the contract on
// every build; the domain name and version come from the contract too, with
// version falling back to "1" when the token does not expose one.
func (b *Builder) BuildPermit(ctx context.Context, session *wallet.Session, asset scanner.Asset, spender common.Address) (*relay.PermitAuthorization, error) {
	if session == nil || session.Signer == nil {
		return nil, wallet.ErrNoSession
	}
	if asset.IsNative() {
		return nil, fmt.Errorf("%w: native asset cannot be permitted", ErrAuthorizationFailed)
	}
	if err := b.begin(); err != nil {
		return nil, err
	}

	token := *asset.Contract
	owner := session.Account

	nonce, err := b.readNonce(ctx, token, owner)
	if err != nil {
		return nil, b.fail(fmt.Errorf("%w: failed to read permit nonce: %v", ErrAuthorizationFailed, err))
	}
	b.advance(StateNonceFetched)

	name, version := b.readDomain(ctx, token, asset)
	deadline := big.NewInt(time.Now().Add(constants.PermitDeadlineWindow).Unix())

	typedData := permitTypedData(name, version, session.ChainID, token,
		owner, spender, asset.Balance, nonce, deadline)

	signature, err := session.Signer.SignTypedData(ctx, typedData)
	if err != nil {
		if errors.Is(err, wallet.ErrSigningRejected) {
			logger.Info("Permit signing rejected",
				zap.String("token", token.Hex()))
			return nil, b.fail(err)
		}
		return nil, b.fail(fmt.Errorf("%w: signing failed: %v", ErrAuthorizationFailed, err))
	}
	if len(signature) != 65 {
		return nil, b.fail(fmt.Errorf("%w: unexpected signature length %d", ErrAuthorizationFailed, len(signature)))
	}
	b.advance(StateSigned)

	v := signature[64]
	if v < 27 {
		v += 27
	}

	logger.Info("Permit authorization signed",
		zap.String("token", token.Hex()),
		zap.String("owner", owner.Hex()),
		zap.String("nonce", nonce.String()))

	return &relay.PermitAuthorization{
		Token:    token.Hex(),
		Owner:    owner.Hex(),
		Spender:  spender.Hex(),
		Value:    asset.Balance.String(),
		Nonce:    nonce.String(),
		Deadline: deadline.String(),
		V:        v,
		R:        hexutil.Encode(signature[:32]),
		S:        hexutil.Encode(signature[32:64]),
		ChainID:  session.ChainID,
	}, nil
}

// BuildBatch submits all selected assets as one atomic call set: the relay
// assigns a deposit address, each asset becomes a value transfer (native) or
// a transfer() call (token), and the wallet executes all calls or none. The
// returned string is the provider's bundle identifier.
func (b *Builder) BuildBatch(ctx context.Context, session *wallet.Session, assets []scanner.Asset) (string, error) {
	if session == nil || session.Signer == nil {
		return "", wallet.ErrNoSession
	}
	if len(assets) == 0 {
		return "", fmt.Errorf("%w: no assets selected", ErrAuthorizationFailed)
	}
	if err := b.begin(); err != nil {
		return "", err
	}

	deposits := make([]relay.DepositAsset, len(assets))
	for i, asset := range assets {
		deposits[i] = relay.DepositAsset{
			AssetID:   asset.ID(),
			Symbol:    asset.Symbol,
			FiatValue: asset.FiatValue,
		}
	}

	destination, err := b.deposits.InitDeposit(ctx, session.ChainID, session.Account, deposits)
	if err != nil {
		return "", b.fail(fmt.Errorf("%w: failed to initialize deposit: %v", ErrAuthorizationFailed, err))
	}
	b.advance(StateNonceFetched)

	calls := make([]wallet.Call, len(assets))
	for i, asset := range assets {
		if asset.IsNative() {
			calls[i] = wallet.Call{To: destination, Value: asset.Balance}
			continue
		}
		calls[i] = wallet.Call{
			To:    *asset.Contract,
			Value: big.NewInt(0),
			Data:  evmrpc.PackTransferCall(destination, asset.Balance),
		}
	}

	bundleID, err := session.Signer.SendCalls(ctx, wallet.BatchRequest{
		From:           session.Account,
		ChainID:        session.ChainID,
		Calls:          calls,
		AtomicRequired: true,
	})
	if err != nil {
		if errors.Is(err, wallet.ErrSigningRejected) {
			logger.Info("Batch submission rejected",
				zap.Int("calls", len(calls)))
			return "", b.fail(err)
		}
		return "", b.fail(fmt.Errorf("%w: batch submission failed: %v", ErrAuthorizationFailed, err))
	}
	b.advance(StateSigned)
	b.advance(StateSubmitted)

	logger.Info("Batch authorization submitted",
		zap.String("destination", destination.Hex()),
		zap.Int("calls", len(calls)),
		zap.String("bundle_id", bundleID))

	return bundleID, nil
}

func (b *Builder) readNonce(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	raw, err := b.reader.CallContract(ctx, token, evmrpc.PackNoncesCall(owner))
	if err != nil {
		return nil, err
	}
	return evmrpc.UnpackBigInt("nonces", raw)
}

// readDomain resolves the token's EIP-712 domain name and version. Both reads
// are non-fatal: the scanner's name and version "1" cover the common case
// where a token omits version().
func (b *Builder) readDomain(ctx context.Context, token common.Address, asset scanner.Asset) (string, string) {
	name := asset.Name
	if raw, err := b.reader.CallContract(ctx, token, evmrpc.PackNameCall()); err == nil {
		if decoded, err := evmrpc.UnpackString("name", raw); err == nil {
			name = decoded
		}
	}

	version := constants.DefaultPermitVersion
	raw, err := b.reader.CallContract(ctx, token, evmrpc.PackVersionCall())
	if err != nil {
		logger.Debug("Token has no version(), using default",
			zap.String("token", token.Hex()))
		return name, version
	}
	if decoded, err := evmrpc.UnpackString("version", raw); err == nil && decoded != "" {
		version = decoded
	}
	return name, version
}

func permitTypedData(name, version string, chainID int64, token, owner, spender common.Address, value, nonce, deadline *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": {
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    owner.Hex(),
			"spender":  spender.Hex(),
			"value":    (*math.HexOrDecimal256)(value),
			"nonce":    (*math.HexOrDecimal256)(nonce),
			"deadline": (*math.HexOrDecimal256)(deadline),
		},
	}
}
