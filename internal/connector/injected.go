package connector

import (
	"context"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"epicnft/internal/provider"
)

// Injected connects through the local wallet provider.
type Injected struct {
	supported []uint64
	handle    *provider.Handle
}

// NewInjected binds to handle, which may be nil when no provider is present.
func NewInjected(handle *provider.Handle, supportedChainIDs ...uint64) *Injected {
	return &Injected{supported: slices.Clone(supportedChainIDs), handle: handle}
}

func (c *Injected) Kind() Kind { return KindInjected }

func (c *Injected) SupportedChainIDs() []uint64 { return slices.Clone(c.supported) }

func (c *Injected) Activate(ctx context.Context) error {
	if c.handle == nil {
		return ErrNoProvider
	}
	accounts, err := c.handle.RequestAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return provider.ErrNoAccounts
	}
	chainID, err := c.handle.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	return checkChainID(chainID.Uint64(), c.supported)
}

func (c *Injected) Account(ctx context.Context) (common.Address, error) {
	if c.handle == nil {
		return common.Address{}, ErrNoProvider
	}
	accounts, err := c.handle.Accounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, provider.ErrNoAccounts
	}
	return accounts[0], nil
}

// Deactivate is a no-op: the provider owns the session.
func (c *Injected) Deactivate() {}
