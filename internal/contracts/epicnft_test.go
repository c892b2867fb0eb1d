package contracts

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type recordingSender struct {
	to   common.Address
	data []byte
	hash common.Hash
	err  error
}

func (r *recordingSender) SendTransaction(_ context.Context, to common.Address, data []byte) (common.Hash, error) {
	r.to = to
	r.data = data
	return r.hash, r.err
}

var testAddress = common.HexToAddress("0xCAd466b31689853e5a65BFEf2d4B4DbAF93ec327")

func TestLoadABIEmbedded(t *testing.T) {
	parsed, err := LoadABI("")
	if err != nil {
		t.Fatalf("load abi: %v", err)
	}
	if _, ok := parsed.Events["NewEpicNFTMinted"]; !ok {
		t.Fatalf("expected mint event in abi")
	}
}

func TestLoadABIRejectsArtifactWithoutMint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Other.json")
	body := `{"contractName":"Other","abi":[{"inputs":[],"name":"ping","outputs":[],"stateMutability":"view","type":"function"}]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadABI(path); err == nil {
		t.Fatalf("expected error for artifact without makeAnEpicNFT")
	}
}

func TestMakeAnEpicNFTPacksSelector(t *testing.T) {
	parsed, err := LoadABI("")
	if err != nil {
		t.Fatalf("load abi: %v", err)
	}
	sender := &recordingSender{hash: common.HexToHash("0xabc123")}
	nft := NewEpicNFT(testAddress, parsed, sender)

	hash, err := nft.MakeAnEpicNFT(context.Background())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if hash != sender.hash {
		t.Fatalf("unexpected hash %s", hash.Hex())
	}
	if sender.to != testAddress {
		t.Fatalf("sent to %s", sender.to.Hex())
	}
	selector := crypto.Keccak256([]byte("makeAnEpicNFT()"))[:4]
	if !bytes.Equal(sender.data, selector) {
		t.Fatalf("unexpected call data %x", sender.data)
	}
}

func TestMakeAnEpicNFTWrapsSenderError(t *testing.T) {
	parsed, _ := LoadABI("")
	rejected := errors.New("user rejected transaction")
	nft := NewEpicNFT(testAddress, parsed, &recordingSender{err: rejected})

	if _, err := nft.MakeAnEpicNFT(context.Background()); !errors.Is(err, rejected) {
		t.Fatalf("expected wrapped rejection, got %v", err)
	}
}

func TestParseMinted(t *testing.T) {
	parsed, _ := LoadABI("")
	nft := NewEpicNFT(testAddress, parsed, &recordingSender{})

	minter := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	event := parsed.Events["NewEpicNFTMinted"]
	data, err := event.Inputs.Pack(minter, big.NewInt(7))
	if err != nil {
		t.Fatalf("pack event: %v", err)
	}

	receipt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{
			{Address: common.HexToAddress("0x01"), Topics: []common.Hash{event.ID}, Data: data},
			{Address: testAddress, Topics: []common.Hash{event.ID}, Data: data},
		},
	}

	minted, err := nft.ParseMinted(receipt)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if minted.Sender != minter || minted.TokenId.Int64() != 7 {
		t.Fatalf("unexpected event %+v", minted)
	}
	if minted.Raw.Address != testAddress {
		t.Fatalf("event taken from the wrong contract")
	}
}

func TestParseMintedMissing(t *testing.T) {
	parsed, _ := LoadABI("")
	nft := NewEpicNFT(testAddress, parsed, &recordingSender{})

	if _, err := nft.ParseMinted(&types.Receipt{}); !errors.Is(err, ErrNoMintEvent) {
		t.Fatalf("expected ErrNoMintEvent, got %v", err)
	}
}
