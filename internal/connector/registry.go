package connector

import (
	"fmt"

	"epicnft/internal/config"
	"epicnft/internal/pending"
	"epicnft/internal/provider"
	"epicnft/internal/uauth"
	"epicnft/internal/walletconnect"
)

// Registry is the fixed set of connectors, built once and handed to the application.
type Registry struct {
	Injected      *Injected
	WalletConnect *WalletConnect
	Identity      *Identity
}

// NewRegistry builds the three connectors from cfg. handle may be nil;
// display receives WalletConnect pairing URIs.
func NewRegistry(cfg *config.AppConfig, handle *provider.Handle, display func(uri string)) (*Registry, error) {
	chainID := cfg.Chain.ChainID

	injected := NewInjected(handle, chainID)
	wc := NewWalletConnect(WalletConnectOptions{
		InfuraID:          cfg.WalletConnect.InfuraID,
		Bridge:            cfg.WalletConnect.BridgeURL,
		SupportedChainIDs: []uint64{chainID},
		QRCode:            cfg.WalletConnect.QRCode,
		Display:           display,
		Meta: walletconnect.PeerMeta{
			Name:        "My NFT Collection",
			Description: "Each unique. Each beautiful. Discover your NFT today.",
			URL:         cfg.Identity.RedirectURI,
			Icons:       []string{},
		},
	})

	client, err := uauth.NewClient(uauth.Config{
		ClientID:    cfg.Identity.ClientID,
		RedirectURI: cfg.Identity.RedirectURI,
		Scope:       cfg.Identity.Scope,
		AuthURL:     cfg.Identity.AuthURL,
		TokenURL:    cfg.Identity.TokenURL,
		UserInfoURL: cfg.Identity.UserInfoURL,
	}, pending.NewMemoryStore())
	if err != nil {
		return nil, fmt.Errorf("identity client: %w", err)
	}

	return &Registry{
		Injected:      injected,
		WalletConnect: wc,
		Identity:      NewIdentity(client, injected, wc),
	}, nil
}

func (r *Registry) All() []Connector {
	return []Connector{r.Injected, r.WalletConnect, r.Identity}
}
