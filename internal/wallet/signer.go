package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Call is one on-chain call inside a batch: a value transfer when Data is
// empty, a contract call otherwise.
type Call struct {
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
	Data  []byte         `json:"data"`
}

// BatchRequest is an atomic multi-call submission. AtomicRequired means the
// provider must execute all calls or none.
type BatchRequest struct {
	From           common.Address `json:"from"`
	ChainID        int64          `json:"chainId"`
	Calls          []Call         `json:"calls"`
	AtomicRequired bool           `json:"atomicRequired"`
}

// Signer is the capability a connected wallet provider exposes: typed-data
// signing and/or atomic multi-call submission.
type Signer interface {
	// Address returns the account the signer controls.
	Address() common.Address

	// SignTypedData produces a 65-byte signature over the EIP-712 digest of
	// the given typed data. User rejection surfaces as ErrSigningRejected.
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)

	// SendCalls submits an atomic batch and returns a provider-assigned
	// bundle identifier. Partial execution must never be assumed.
	SendCalls(ctx context.Context, batch BatchRequest) (string, error)
}
