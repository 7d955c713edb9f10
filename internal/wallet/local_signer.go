package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// LocalSigner signs typed data with an in-process private key. It backs the
// CLI and tests; browser-wallet capabilities plug in through the same Signer
// interface. An EOA key cannot provide atomic batching, so SendCalls always
// fails with ErrBatchUnsupported.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewLocalSigner creates a signer from a hex-encoded private key.
func NewLocalSigner(privateKeyHex string) (*LocalSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &LocalSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// NewLocalSignerFromKey creates a signer from an existing key.
func NewLocalSignerFromKey(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the account the signer controls.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignTypedData signs the EIP-712 digest of the typed data.
func (s *LocalSigner) SignTypedData(_ context.Context, typedData apitypes.TypedData) ([]byte, error) {
	digest, err := TypedDataDigest(typedData)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}

	// Normalize the recovery id to the on-chain 27/28 convention.
	signature[64] += 27

	return signature, nil
}

// SendCalls is unsupported for a bare key; atomic batching is a wallet
// capability.
func (s *LocalSigner) SendCalls(_ context.Context, _ BatchRequest) (string, error) {
	return "", ErrBatchUnsupported
}

// TypedDataDigest computes the EIP-712 signing digest
// keccak256(0x1901 || domainSeparator || structHash).
func TypedDataDigest(typedData apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	return crypto.Keccak256(rawData), nil
}
