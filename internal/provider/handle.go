// Package provider wraps the wallet-managed JSON-RPC endpoint the application
// talks to, the same role an injected browser provider plays for a web page.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultPollingInterval governs receipt waits and chain id polling.
const DefaultPollingInterval = 12000 * time.Millisecond

var ErrNoAccounts = errors.New("provider exposes no accounts")

// ChainChanged is emitted when the provider reports a different chain id.
type ChainChanged struct {
	Old *big.Int
	New *big.Int
}

// Handle is a JSON-RPC capable view over a raw provider.
type Handle struct {
	PollingInterval time.Duration

	raw    *rpc.Client
	client *ethclient.Client

	chainFeed event.Feed
	watchOnce sync.Once
	closeOnce sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// MakeHandle wraps raw and applies the default polling interval.
// A nil raw provider yields a nil handle.
func MakeHandle(raw *rpc.Client) *Handle {
	if raw == nil {
		return nil
	}
	h := &Handle{
		raw:    raw,
		client: ethclient.NewClient(raw),
		quit:   make(chan struct{}),
	}
	h.PollingInterval = DefaultPollingInterval
	return h
}

// RequestAccounts asks the wallet to expose its accounts, prompting the user if needed.
func (h *Handle) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := h.raw.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, fmt.Errorf("eth_requestAccounts: %w", err)
	}
	return accounts, nil
}

// Accounts lists the accounts already exposed to this session.
func (h *Handle) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := h.raw.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return accounts, nil
}

func (h *Handle) ChainID(ctx context.Context) (*big.Int, error) {
	return h.client.ChainID(ctx)
}

func (h *Handle) Ping(ctx context.Context) error {
	_, err := h.client.BlockNumber(ctx)
	return err
}

// Signer returns a signer for the first exposed account.
func (h *Handle) Signer(ctx context.Context) (*Signer, error) {
	accounts, err := h.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	return &Signer{raw: h.raw, from: accounts[0]}, nil
}

// WaitMined polls until the transaction is mined or ctx is cancelled.
func (h *Handle) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(h.PollingInterval)
	defer ticker.Stop()

	for {
		receipt, err := h.client.TransactionReceipt(ctx, hash)
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SubscribeChainChanged delivers chain id changes to ch. Polling starts with the first subscriber.
func (h *Handle) SubscribeChainChanged(ch chan<- ChainChanged) event.Subscription {
	h.watchOnce.Do(func() {
		h.wg.Add(1)
		go h.pollChainID()
	})
	return h.chainFeed.Subscribe(ch)
}

// Close stops chain polling and releases the underlying client.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		close(h.quit)
		h.wg.Wait()
		h.raw.Close()
	})
}

func (h *Handle) pollChainID() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.PollingInterval)
	defer ticker.Stop()

	var last *big.Int
	for {
		ctx, cancel := context.WithTimeout(context.Background(), h.PollingInterval)
		id, err := h.client.ChainID(ctx)
		cancel()

		switch {
		case err != nil:
			log.Debug("Chain id poll failed", "err", err)
		case last == nil:
			last = id
		case last.Cmp(id) != 0:
			log.Info("Provider chain changed", "old", last, "new", id)
			h.chainFeed.Send(ChainChanged{Old: last, New: id})
			last = id
		}

		select {
		case <-h.quit:
			return
		case <-ticker.C:
		}
	}
}

// TxArgs is the eth_sendTransaction request body.
type TxArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to,omitempty"`
	Data hexutil.Bytes   `json:"data,omitempty"`
}

// Signer submits transactions through the provider, which holds the key.
type Signer struct {
	raw  *rpc.Client
	from common.Address
}

func (s *Signer) Address() common.Address {
	return s.from
}

func (s *Signer) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	args := TxArgs{From: s.from, To: &to, Data: data}
	var hash common.Hash
	if err := s.raw.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}
