// Package connector holds the wallet connection strategies the application offers.
package connector

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// Kind names a connection strategy.
type Kind string

const (
	KindInjected      Kind = "injected"
	KindWalletConnect Kind = "walletconnect"
	KindIdentity      Kind = "uauth"
)

var (
	ErrNoProvider    = errors.New("no injected provider found")
	ErrNotActive     = errors.New("connector is not active")
	ErrNotAuthorized = errors.New("identity login has not been authorized")
)

// Connector establishes a session with a wallet and exposes its account.
type Connector interface {
	Kind() Kind
	SupportedChainIDs() []uint64
	Activate(ctx context.Context) error
	Account(ctx context.Context) (common.Address, error)
	Deactivate()
}

// UnsupportedChainIDError is returned when a wallet is on a network the connector does not accept.
type UnsupportedChainIDError struct {
	ChainID   uint64
	Supported []uint64
}

func (e *UnsupportedChainIDError) Error() string {
	return fmt.Sprintf("unsupported chain id %d, supported: %v", e.ChainID, e.Supported)
}

func checkChainID(id uint64, supported []uint64) error {
	if slices.Contains(supported, id) {
		return nil
	}
	return &UnsupportedChainIDError{ChainID: id, Supported: slices.Clone(supported)}
}
