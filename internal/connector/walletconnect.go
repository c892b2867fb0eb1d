package connector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"epicnft/internal/provider"
	"epicnft/internal/walletconnect"
)

var errMissingInfuraID = errors.New("walletconnect: missing rpc or infuraId")

var infuraNetworks = map[uint64]string{
	1:  "mainnet",
	3:  "ropsten",
	4:  "rinkeby",
	5:  "goerli",
	42: "kovan",
}

// WalletConnectOptions configures the relay pairing.
type WalletConnectOptions struct {
	InfuraID          string
	Bridge            string
	SupportedChainIDs []uint64
	QRCode            bool
	// Display receives the pairing URI when QRCode is set.
	Display func(uri string)
	Meta    walletconnect.PeerMeta
}

// WalletConnect pairs with a remote wallet through a bridge.
type WalletConnect struct {
	opts   WalletConnectOptions
	client *walletconnect.Client

	mu      sync.Mutex
	session *walletconnect.Session
}

func NewWalletConnect(opts WalletConnectOptions) *WalletConnect {
	opts.SupportedChainIDs = slices.Clone(opts.SupportedChainIDs)
	return &WalletConnect{
		opts:   opts,
		client: &walletconnect.Client{Bridge: opts.Bridge, Meta: opts.Meta},
	}
}

func (c *WalletConnect) Kind() Kind { return KindWalletConnect }

func (c *WalletConnect) SupportedChainIDs() []uint64 { return slices.Clone(c.opts.SupportedChainIDs) }

func (c *WalletConnect) QRCode() bool { return c.opts.QRCode }

// RPCURL is the read endpoint the relay credential unlocks for chainID.
func (c *WalletConnect) RPCURL(chainID uint64) (string, error) {
	if c.opts.InfuraID == "" {
		return "", errMissingInfuraID
	}
	network, ok := infuraNetworks[chainID]
	if !ok {
		return "", &UnsupportedChainIDError{ChainID: chainID, Supported: c.SupportedChainIDs()}
	}
	return fmt.Sprintf("https://%s.infura.io/v3/%s", network, c.opts.InfuraID), nil
}

func (c *WalletConnect) Activate(ctx context.Context) error {
	if len(c.opts.SupportedChainIDs) == 0 {
		return errors.New("walletconnect: no supported chain ids")
	}
	chainID := c.opts.SupportedChainIDs[0]
	if _, err := c.RPCURL(chainID); err != nil {
		return err
	}

	display := func(uri string) {
		log.Info("WalletConnect pairing ready", "qrcode", c.opts.QRCode)
		if c.opts.QRCode && c.opts.Display != nil {
			c.opts.Display(uri)
		}
	}
	session, err := c.client.Connect(ctx, chainID, display)
	if err != nil {
		return err
	}
	if err := checkChainID(session.ChainID, c.opts.SupportedChainIDs); err != nil {
		_ = session.Kill()
		return err
	}

	c.mu.Lock()
	prev := c.session
	c.session = session
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

func (c *WalletConnect) Account(context.Context) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return common.Address{}, ErrNotActive
	}
	if len(c.session.Accounts) == 0 {
		return common.Address{}, provider.ErrNoAccounts
	}
	return c.session.Accounts[0], nil
}

func (c *WalletConnect) Deactivate() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session != nil {
		if err := session.Kill(); err != nil {
			log.Debug("WalletConnect session close failed", "err", err)
		}
	}
}
