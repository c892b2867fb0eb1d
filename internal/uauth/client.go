// Package uauth implements the Unstoppable identity login: an OpenID Connect
// authorization-code flow with PKCE followed by a user profile lookup.
package uauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"epicnft/internal/oauthstate"
	"epicnft/internal/pending"
)

const defaultLoginTTL = 10 * time.Minute

var (
	ErrUnknownLogin  = errors.New("uauth: no pending login for state")
	ErrNoIDToken     = errors.New("uauth: token response has no id_token")
	ErrNonceMismatch = errors.New("uauth: id_token nonce mismatch")
)

// Config mirrors the identity client registration.
type Config struct {
	ClientID    string
	RedirectURI string
	Scope       string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	LoginTTL    time.Duration
}

// Profile is the user info the identity service returns.
type Profile struct {
	Sub              string `json:"sub"`
	WalletAddress    string `json:"wallet_address"`
	WalletTypeHint   string `json:"wallet_type_hint"`
	EIP4361Message   string `json:"eip4361_message,omitempty"`
	EIP4361Signature string `json:"eip4361_signature,omitempty"`
}

type Client struct {
	oauth       *oauth2.Config
	userInfoURL string
	ttl         time.Duration
	states      *oauthstate.Signer
	pending     pending.Store
}

func NewClient(cfg Config, store pending.Store) (*Client, error) {
	ttl := cfg.LoginTTL
	if ttl <= 0 {
		ttl = defaultLoginTTL
	}
	states, err := oauthstate.NewSigner(ttl)
	if err != nil {
		return nil, fmt.Errorf("state signer: %w", err)
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      strings.Fields(cfg.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		ttl:         ttl,
		states:      states,
		pending:     store,
	}, nil
}

// AuthCodeURL starts a login and returns where to send the user.
func (c *Client) AuthCodeURL(ctx context.Context) (string, error) {
	state, err := c.states.Issue()
	if err != nil {
		return "", fmt.Errorf("issue state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	nonce := uuid.NewString()

	now := time.Now()
	if err := c.pending.Save(ctx, state, pending.Record{
		Verifier:  verifier,
		Nonce:     nonce,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}); err != nil {
		return "", fmt.Errorf("save pending login: %w", err)
	}

	return c.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("nonce", nonce),
	), nil
}

// Exchange finishes a login started by AuthCodeURL.
func (c *Client) Exchange(ctx context.Context, code, state string) (*oauth2.Token, error) {
	if err := c.states.Verify(state); err != nil {
		return nil, err
	}
	rec, err := c.pending.Take(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("load pending login: %w", err)
	}
	if rec == nil {
		return nil, ErrUnknownLogin
	}

	tok, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(rec.Verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, ErrNoIDToken
	}
	// The token came straight from the token endpoint, so only the nonce is checked here.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse id_token: %w", err)
	}
	if nonce, _ := claims["nonce"].(string); nonce != rec.Nonce {
		return nil, ErrNonceMismatch
	}
	return tok, nil
}

// User fetches the profile for an authorized token.
func (c *Client) User(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo: unexpected status %d", resp.StatusCode)
	}
	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if profile.Sub == "" {
		return nil, errors.New("userinfo: profile has no subject")
	}
	return &profile, nil
}
