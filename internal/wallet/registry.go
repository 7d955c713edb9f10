package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/permitpay/permitpay-go/internal/logger"
	"go.uber.org/zap"
)

// ProviderInfo describes an announced wallet provider.
type ProviderInfo struct {
	ID   string
	Name string
	Icon string
}

// Provider is an announced wallet that can be asked for accounts. The
// announcement transport itself is out of scope; providers are handed to the
// registry already discovered.
type Provider interface {
	Info() ProviderInfo
	// RequestAccounts prompts for access and, on approval, yields the signing
	// capability, the selected account and the active chain id.
	RequestAccounts(ctx context.Context) (Signer, common.Address, int64, error)
}

// Session is a live wallet connection. At most one session exists per
// pipeline instance; all downstream stages require it.
type Session struct {
	ID      uuid.UUID
	Signer  Signer
	Account common.Address
	ChainID int64
}

// Registry tracks wallet providers as they announce themselves.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under the given id. Re-registering an id is a
// no-op; the first registration wins.
func (r *Registry) Register(id string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[id]; exists {
		return
	}
	r.providers[id] = provider
	r.order = append(r.order, id)
}

// List returns the registered provider descriptors in registration order.
func (r *Registry) List() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(r.order))
	for _, id := range r.order {
		infos = append(infos, r.providers[id].Info())
	}
	return infos
}

// Connect invokes the provider's account request and creates a session on
// success. User rejection surfaces as ErrConnectionRejected, any other
// provider failure as ErrConnectionFailed; neither leaves a session behind.
func (r *Registry) Connect(ctx context.Context, providerID string) (*Session, error) {
	r.mu.RLock()
	provider, ok := r.providers[providerID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}

	signer, account, chainID, err := provider.RequestAccounts(ctx)
	if err != nil {
		if errors.Is(err, ErrConnectionRejected) {
			logger.Info("Wallet connection rejected",
				zap.String("provider_id", providerID))
			return nil, err
		}
		logger.Error("Wallet connection failed",
			zap.String("provider_id", providerID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	session := &Session{
		ID:      uuid.New(),
		Signer:  signer,
		Account: account,
		ChainID: chainID,
	}

	logger.Info("Wallet connected",
		zap.String("provider_id", providerID),
		zap.String("account", account.Hex()),
		zap.Int64("chain_id", chainID))

	return session, nil
}
