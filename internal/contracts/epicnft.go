// Package contracts binds the deployed MyEpicNFT contract.
package contracts

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:embed MyEpicNFT.json
var myEpicNFTArtifact []byte

const (
	mintMethod = "makeAnEpicNFT"
	mintEvent  = "NewEpicNFTMinted"
)

var ErrNoMintEvent = errors.New("receipt has no NewEpicNFTMinted event")

// Artifact is the subset of a compiler build artifact we read.
type Artifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
}

// LoadABI parses the interface description from a build artifact on disk,
// or from the bundled artifact when path is empty.
func LoadABI(path string) (abi.ABI, error) {
	raw := myEpicNFTArtifact
	if path != "" {
		blob, err := os.ReadFile(path)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("read artifact: %w", err)
		}
		raw = blob
	}

	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("decode artifact: %w", err)
	}
	if len(artifact.ABI) == 0 {
		return abi.ABI{}, errors.New("artifact has no abi")
	}

	parsed, err := abi.JSON(bytes.NewReader(artifact.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	if _, ok := parsed.Methods[mintMethod]; !ok {
		return abi.ABI{}, fmt.Errorf("abi has no %s method", mintMethod)
	}
	return parsed, nil
}

// Sender submits a transaction through the wallet that owns the signing key.
type Sender interface {
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}

// EpicNFT is a per-call handle to the contract, bound to a wallet sender.
type EpicNFT struct {
	address  common.Address
	abi      abi.ABI
	sender   Sender
	contract *bind.BoundContract
}

// Minted mirrors the NewEpicNFTMinted event.
type Minted struct {
	Sender  common.Address
	TokenId *big.Int
	Raw     types.Log
}

func NewEpicNFT(address common.Address, parsed abi.ABI, sender Sender) *EpicNFT {
	return &EpicNFT{
		address:  address,
		abi:      parsed,
		sender:   sender,
		contract: bind.NewBoundContract(address, parsed, nil, nil, nil),
	}
}

func (c *EpicNFT) Address() common.Address {
	return c.address
}

// MakeAnEpicNFT submits the mint call. The wallet prompts for approval out of band.
func (c *EpicNFT) MakeAnEpicNFT(ctx context.Context) (common.Hash, error) {
	data, err := c.abi.Pack(mintMethod)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", mintMethod, err)
	}
	hash, err := c.sender.SendTransaction(ctx, c.address, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s tx: %w", mintMethod, err)
	}
	return hash, nil
}

// ParseMinted returns the first mint event the contract emitted in receipt.
func (c *EpicNFT) ParseMinted(receipt *types.Receipt) (*Minted, error) {
	eventID := c.abi.Events[mintEvent].ID
	for _, l := range receipt.Logs {
		if l == nil || l.Address != c.address || len(l.Topics) == 0 || l.Topics[0] != eventID {
			continue
		}
		ev := new(Minted)
		if err := c.contract.UnpackLog(ev, mintEvent, *l); err != nil {
			return nil, fmt.Errorf("unpack %s: %w", mintEvent, err)
		}
		ev.Raw = *l
		return ev, nil
	}
	return nil, ErrNoMintEvent
}
