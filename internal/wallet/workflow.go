// Package wallet runs the connection workflows and owns the connection state.
package wallet

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"epicnft/internal/connector"
	"epicnft/internal/provider"
	"epicnft/internal/uauth"
)

// Reason says which step of a workflow failed.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonActivation Reason = "activation"
	ReasonAccount    Reason = "account"
	ReasonProfile    Reason = "profile"
)

// State is what the page shows about the connection.
type State struct {
	Account     string
	IsConnected bool
}

// Result is the outcome of one connection attempt.
type Result struct {
	Connector connector.Kind
	Account   string
	Address   common.Address
	Profile   *uauth.Profile
	Reason    Reason
	Err       error
}

func (r Result) OK() bool { return r.Reason == ReasonNone }

// NetworkChanged is published when the wallet moves to another chain.
type NetworkChanged struct {
	Old *big.Int
	New *big.Int
}

type Connector interface {
	Activate(ctx context.Context) error
	Account(ctx context.Context) (common.Address, error)
}

type IdentityConnector interface {
	Connector
	Authorize(ctx context.Context, code, state string) error
	User(ctx context.Context) (*uauth.Profile, error)
}

type ChainWatcher interface {
	SubscribeChainChanged(ch chan<- provider.ChainChanged) event.Subscription
}

// Workflow connects wallets. Failures are logged and leave the state untouched.
type Workflow struct {
	injected Connector
	identity IdentityConnector
	watcher  ChainWatcher
	log      log.Logger

	mu       sync.Mutex
	state    State
	listener event.Subscription

	networkFeed event.Feed
}

// New builds a workflow. watcher may be nil when no injected provider is present.
func New(injected Connector, identity IdentityConnector, watcher ChainWatcher, logger log.Logger) *Workflow {
	if logger == nil {
		logger = log.Root()
	}
	return &Workflow{
		injected: injected,
		identity: identity,
		watcher:  watcher,
		log:      logger,
	}
}

// ConnectWallet activates the injected connector and shows its account.
func (w *Workflow) ConnectWallet(ctx context.Context) Result {
	res := Result{Connector: connector.KindInjected}

	if err := w.injected.Activate(ctx); err != nil {
		return w.fail(res, ReasonActivation, err)
	}
	addr, err := w.injected.Account(ctx)
	if err != nil {
		return w.fail(res, ReasonAccount, err)
	}

	res.Address = addr
	res.Account = addr.Hex()
	w.connected(res)
	return res
}

// ULogin finishes an identity login and shows the profile subject instead of the address.
func (w *Workflow) ULogin(ctx context.Context, code, state string) Result {
	res := Result{Connector: connector.KindIdentity}

	if err := w.identity.Authorize(ctx, code, state); err != nil {
		return w.fail(res, ReasonActivation, err)
	}
	if err := w.identity.Activate(ctx); err != nil {
		return w.fail(res, ReasonActivation, err)
	}
	profile, err := w.identity.User(ctx)
	if err != nil {
		return w.fail(res, ReasonProfile, err)
	}
	addr, err := w.identity.Account(ctx)
	if err != nil {
		return w.fail(res, ReasonAccount, err)
	}

	res.Address = addr
	res.Profile = profile
	res.Account = profile.Sub
	w.connected(res)
	return res
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SubscribeNetwork delivers network changes for the connected session.
func (w *Workflow) SubscribeNetwork(ch chan<- NetworkChanged) event.Subscription {
	return w.networkFeed.Subscribe(ch)
}

// Reset drops the session and its network listener.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener != nil {
		w.listener.Unsubscribe()
		w.listener = nil
	}
	w.state = State{}
}

func (w *Workflow) fail(res Result, reason Reason, err error) Result {
	w.log.Error("Wallet connection failed", "connector", res.Connector, "step", reason, "err", err)
	res.Reason = reason
	res.Err = err
	return res
}

func (w *Workflow) connected(res Result) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = State{Account: res.Account, IsConnected: true}
	w.log.Info("Wallet connected", "connector", res.Connector, "account", res.Account, "address", res.Address)

	if w.listener != nil {
		return
	}
	if w.watcher == nil {
		w.log.Warn("No injected provider to watch for network changes")
		return
	}
	ch := make(chan provider.ChainChanged, 1)
	sub := w.watcher.SubscribeChainChanged(ch)
	w.listener = sub
	go w.forward(sub, ch)
}

func (w *Workflow) forward(sub event.Subscription, ch <-chan provider.ChainChanged) {
	for {
		select {
		case ev := <-ch:
			w.log.Info("Network changed", "old", ev.Old, "new", ev.New)
			w.networkFeed.Send(NetworkChanged{Old: ev.Old, New: ev.New})
		case <-sub.Err():
			return
		}
	}
}
