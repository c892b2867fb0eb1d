package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// RinkebyChainID is the only network the connectors accept.
	RinkebyChainID uint64 = 4

	DefaultContractAddress = "0xCAd466b31689853e5a65BFEf2d4B4DbAF93ec327"

	RedirectURI   = "http://localhost:3000"
	IdentityScope = "openid wallet"

	defaultInjectedURL  = "http://127.0.0.1:1248"
	defaultBridgeURL    = "https://bridge.walletconnect.org"
	defaultExplorerURL  = "https://rinkeby.etherscan.io"
	defaultMarketURL    = "https://testnets.opensea.io"
	defaultAuthURL      = "https://auth.unstoppabledomains.com/oauth2/auth"
	defaultTokenURL     = "https://auth.unstoppabledomains.com/oauth2/token"
	defaultUserInfoURL  = "https://auth.unstoppabledomains.com/userinfo"
	defaultShutdownSecs = 10
)

// DeploymentConfig represents deployments.json.
type DeploymentConfig struct {
	ChainID   uint64 `json:"chainId"`
	Deployer  string `json:"deployer"`
	Contracts struct {
		MyEpicNFT string `json:"MyEpicNFT"`
	} `json:"contracts"`
}

// AppConfig ties together environment, deployment info and fixed values.
type AppConfig struct {
	Service       ServiceConfig
	Chain         ChainConfig
	Contract      ContractConfig
	WalletConnect WalletConnectConfig
	Identity      IdentityConfig
}

type ServiceConfig struct {
	HTTPPort        int
	ShutdownTimeout time.Duration
	LogLevel        string
}

type ChainConfig struct {
	ChainID     uint64
	InjectedURL string
	ExplorerURL string
}

type ContractConfig struct {
	Address        string
	ArtifactPath   string
	MarketplaceURL string
}

type WalletConnectConfig struct {
	InfuraID  string
	BridgeURL string
	QRCode    bool
}

type IdentityConfig struct {
	ClientID    string
	RedirectURI string
	Scope       string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// Load aggregates configuration from environment and an optional deployments file.
// Connector credentials are read as-is; a missing value surfaces later as a connector error.
func Load() (*AppConfig, error) {
	contract := ContractConfig{
		Address:        DefaultContractAddress,
		ArtifactPath:   envOr("NFT_ARTIFACT_PATH", ""),
		MarketplaceURL: envOr("MARKETPLACE_URL", defaultMarketURL),
	}

	if path := envOr("DEPLOYMENTS_PATH", ""); path != "" {
		deployCfg, err := loadDeployments(path)
		if err != nil {
			return nil, fmt.Errorf("load deployments: %w", err)
		}
		if deployCfg.ChainID != 0 && deployCfg.ChainID != RinkebyChainID {
			return nil, fmt.Errorf("deployments target chain %d, want %d", deployCfg.ChainID, RinkebyChainID)
		}
		if deployCfg.Contracts.MyEpicNFT != "" {
			contract.Address = deployCfg.Contracts.MyEpicNFT
		}
	}

	return &AppConfig{
		Service: ServiceConfig{
			HTTPPort:        envOrInt("API_HTTP_PORT", 3000),
			ShutdownTimeout: time.Duration(envOrInt("SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownSecs)) * time.Second,
			LogLevel:        strings.ToLower(envOr("LOG_LEVEL", "info")),
		},
		Chain: ChainConfig{
			ChainID:     RinkebyChainID,
			InjectedURL: envOr("INJECTED_PROVIDER_URL", defaultInjectedURL),
			ExplorerURL: defaultExplorerURL,
		},
		Contract: contract,
		WalletConnect: WalletConnectConfig{
			InfuraID:  os.Getenv("INFURA_ID"),
			BridgeURL: envOr("WALLETCONNECT_BRIDGE", defaultBridgeURL),
			QRCode:    true,
		},
		Identity: IdentityConfig{
			ClientID:    os.Getenv("UAUTH_CLIENT_ID"),
			RedirectURI: RedirectURI,
			Scope:       IdentityScope,
			AuthURL:     envOr("UAUTH_AUTH_URL", defaultAuthURL),
			TokenURL:    envOr("UAUTH_TOKEN_URL", defaultTokenURL),
			UserInfoURL: envOr("UAUTH_USERINFO_URL", defaultUserInfoURL),
		},
	}, nil
}

// TxURL builds the block-explorer link for a transaction hash.
func (c ChainConfig) TxURL(hash string) string {
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + hash
}

// CollectionURL is the marketplace listing for the contract.
func (c ContractConfig) CollectionURL() string {
	return strings.TrimRight(c.MarketplaceURL, "/") + "/" + c.Address
}

// AssetURL is the marketplace page of a single token.
func (c ContractConfig) AssetURL(tokenID string) string {
	return strings.TrimRight(c.MarketplaceURL, "/") + "/assets/" + c.Address + "/" + tokenID
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg DeploymentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
