package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/goleak"

	"epicnft/internal/provider"
	"epicnft/internal/provider/providertest"
)

var account = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func TestMakeHandleSetsPollingInterval(t *testing.T) {
	wallet := providertest.NewWallet(4, account)
	defer wallet.Stop()

	h := provider.MakeHandle(wallet.Dial())
	defer h.Close()

	if h.PollingInterval != 12000*time.Millisecond {
		t.Fatalf("expected 12000ms polling, got %v", h.PollingInterval)
	}
	if provider.MakeHandle(nil) != nil {
		t.Fatalf("expected nil handle for absent provider")
	}
}

func TestSignerSendsThroughProvider(t *testing.T) {
	wallet := providertest.NewWallet(4, account)
	defer wallet.Stop()
	wallet.NextHash = common.HexToHash("0xabc123")
	wallet.PendingPolls = 2

	h := provider.MakeHandle(wallet.Dial())
	h.PollingInterval = 5 * time.Millisecond
	defer h.Close()

	ctx := context.Background()
	signer, err := h.Signer(ctx)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if signer.Address() != account {
		t.Fatalf("unexpected signer %s", signer.Address().Hex())
	}

	to := common.HexToAddress("0xCAd466b31689853e5a65BFEf2d4B4DbAF93ec327")
	hash, err := signer.SendTransaction(ctx, to, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if hash != common.HexToHash("0xabc123") {
		t.Fatalf("unexpected hash %s", hash.Hex())
	}

	sent := wallet.Sent()
	if len(sent) != 1 || sent[0].From != account || *sent[0].To != to {
		t.Fatalf("unexpected sent txs %+v", sent)
	}

	receipt, err := h.WaitMined(ctx, hash)
	if err != nil {
		t.Fatalf("wait mined: %v", err)
	}
	if receipt.TxHash != hash {
		t.Fatalf("receipt for wrong tx %s", receipt.TxHash.Hex())
	}
}

func TestSignerWithoutAccounts(t *testing.T) {
	wallet := providertest.NewWallet(4)
	defer wallet.Stop()

	h := provider.MakeHandle(wallet.Dial())
	defer h.Close()

	if _, err := h.Signer(context.Background()); !errors.Is(err, provider.ErrNoAccounts) {
		t.Fatalf("expected ErrNoAccounts, got %v", err)
	}
}

func TestWaitMinedHonoursContext(t *testing.T) {
	wallet := providertest.NewWallet(4, account)
	defer wallet.Stop()

	h := provider.MakeHandle(wallet.Dial())
	h.PollingInterval = 5 * time.Millisecond
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := h.WaitMined(ctx, common.HexToHash("0xdead")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWaitMinedExpiredContext(t *testing.T) {
	wallet := providertest.NewWallet(4, account)
	defer wallet.Stop()

	h := provider.MakeHandle(wallet.Dial())
	defer h.Close()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	if _, err := h.WaitMined(ctx, common.HexToHash("0xdead")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSubscribeChainChanged(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	wallet := providertest.NewWallet(4, account)
	defer wallet.Stop()

	h := provider.MakeHandle(wallet.Dial())
	h.PollingInterval = 5 * time.Millisecond
	defer h.Close()

	ch := make(chan provider.ChainChanged, 1)
	sub := h.SubscribeChainChanged(ch)
	defer sub.Unsubscribe()

	// let the poller observe the starting chain first
	time.Sleep(30 * time.Millisecond)
	wallet.SetChainID(1)

	select {
	case ev := <-ch:
		if ev.Old.Int64() != 4 || ev.New.Int64() != 1 {
			t.Fatalf("unexpected change %v -> %v", ev.Old, ev.New)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no chain change delivered")
	}
}
