// Package mint drives the makeAnEpicNFT transaction from submission to receipt.
package mint

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"epicnft/internal/config"
	"epicnft/internal/contracts"
	"epicnft/internal/provider"
)

// Reason says where a mint attempt stopped.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonNoProvider Reason = "no_provider"
	ReasonSigner     Reason = "signer"
	ReasonSubmit     Reason = "submit"
	ReasonConfirm    Reason = "confirm"
	ReasonReverted   Reason = "reverted"
)

var ErrReverted = errors.New("transaction reverted")

// Alerter shows a blocking notice to the user.
type Alerter interface {
	Alert(msg string)
}

// Outcome is the result of one mint attempt.
type Outcome struct {
	TxHash   common.Hash
	TxURL    string
	TokenID  string
	AssetURL string
	Reason   Reason
	Err      error
}

func (o Outcome) OK() bool { return o.Reason == ReasonNone }

type Minter struct {
	handle *provider.Handle
	chain  config.ChainConfig
	nft    config.ContractConfig
	abi    abi.ABI
	alert  Alerter
	log    log.Logger
}

// New builds a minter. handle may be nil when no injected provider is present.
func New(handle *provider.Handle, cfg *config.AppConfig, parsed abi.ABI, alerter Alerter, logger log.Logger) *Minter {
	if logger == nil {
		logger = log.Root()
	}
	return &Minter{
		handle: handle,
		chain:  cfg.Chain,
		nft:    cfg.Contract,
		abi:    parsed,
		alert:  alerter,
		log:    logger,
	}
}

// AskContractToMintNft submits makeAnEpicNFT through the injected wallet and
// alerts the explorer link once the transaction is mined. Failures are only logged.
func (m *Minter) AskContractToMintNft(ctx context.Context) Outcome {
	if m.handle == nil {
		m.log.Info("Ethereum object doesn't exist!")
		return Outcome{Reason: ReasonNoProvider}
	}

	signer, err := m.handle.Signer(ctx)
	if err != nil {
		return m.fail(Outcome{}, ReasonSigner, err)
	}
	nft := contracts.NewEpicNFT(common.HexToAddress(m.nft.Address), m.abi, signer)

	m.log.Info("Going to pop wallet now to pay gas...")
	hash, err := nft.MakeAnEpicNFT(ctx)
	if err != nil {
		return m.fail(Outcome{}, ReasonSubmit, err)
	}

	out := Outcome{TxHash: hash, TxURL: m.chain.TxURL(hash.Hex())}
	m.log.Info("Mining...please wait.", "tx", hash)

	receipt, err := m.handle.WaitMined(ctx, hash)
	if err != nil {
		return m.fail(out, ReasonConfirm, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return m.fail(out, ReasonReverted, fmt.Errorf("%w: %s", ErrReverted, hash.Hex()))
	}

	m.log.Info("Mined", "url", out.TxURL)
	if ev, err := nft.ParseMinted(receipt); err == nil {
		out.TokenID = ev.TokenId.String()
		out.AssetURL = m.nft.AssetURL(out.TokenID)
		m.log.Info("Minted token", "id", out.TokenID, "owner", ev.Sender, "asset", out.AssetURL)
	} else {
		m.log.Debug("No mint event in receipt", "tx", hash, "err", err)
	}

	if m.alert != nil {
		m.alert.Alert("Mined, see transaction: " + out.TxURL)
	}
	return out
}

func (m *Minter) fail(out Outcome, reason Reason, err error) Outcome {
	m.log.Error("Mint failed", "step", reason, "tx", out.TxHash, "err", err)
	out.Reason = reason
	out.Err = err
	return out
}
