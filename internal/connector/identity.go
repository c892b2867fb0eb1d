package connector

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/oauth2"

	"epicnft/internal/uauth"
)

// Identity logs the user in with the identity service and then activates
// whichever wallet transport the profile names.
type Identity struct {
	client     *uauth.Client
	transports map[string]Connector
	fallback   Connector

	mu      sync.Mutex
	token   *oauth2.Token
	profile *uauth.Profile
	active  Connector
}

// NewIdentity wires the injected and WalletConnect transports under the login.
func NewIdentity(client *uauth.Client, injected, walletConnect Connector) *Identity {
	return &Identity{
		client: client,
		transports: map[string]Connector{
			"web3":          injected,
			"injected":      injected,
			"walletconnect": walletConnect,
		},
		fallback: injected,
	}
}

func (c *Identity) Kind() Kind { return KindIdentity }

func (c *Identity) SupportedChainIDs() []uint64 { return c.fallback.SupportedChainIDs() }

// LoginURL starts a login at the identity service.
func (c *Identity) LoginURL(ctx context.Context) (string, error) {
	return c.client.AuthCodeURL(ctx)
}

// Authorize completes the redirect leg of the login.
func (c *Identity) Authorize(ctx context.Context, code, state string) error {
	tok, err := c.client.Exchange(ctx, code, state)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token, c.profile = tok, nil
	return nil
}

func (c *Identity) Activate(ctx context.Context) error {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok == nil {
		return ErrNotAuthorized
	}

	profile, err := c.client.User(ctx, tok)
	if err != nil {
		return err
	}
	transport := c.transport(profile.WalletTypeHint)
	if err := transport.Activate(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.active, c.profile = transport, profile
	c.mu.Unlock()
	return nil
}

// User returns the identity profile for the authorized session, reusing the
// one fetched during activation.
func (c *Identity) User(ctx context.Context) (*uauth.Profile, error) {
	c.mu.Lock()
	tok, profile := c.token, c.profile
	c.mu.Unlock()
	if tok == nil {
		return nil, ErrNotAuthorized
	}
	if profile != nil {
		return profile, nil
	}

	profile, err := c.client.User(ctx, tok)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
	return profile, nil
}

func (c *Identity) Account(ctx context.Context) (common.Address, error) {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil {
		return common.Address{}, ErrNotActive
	}
	return active.Account(ctx)
}

func (c *Identity) Deactivate() {
	c.mu.Lock()
	active := c.active
	c.token, c.profile, c.active = nil, nil, nil
	c.mu.Unlock()
	if active != nil {
		active.Deactivate()
	}
}

func (c *Identity) transport(hint string) Connector {
	if t, ok := c.transports[hint]; ok && t != nil {
		return t
	}
	return c.fallback
}
