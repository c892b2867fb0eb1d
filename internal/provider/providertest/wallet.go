// Package providertest serves a scripted wallet over an in-process JSON-RPC
// connection so workflows can run against a real provider handle in tests.
package providertest

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"epicnft/internal/provider"
)

// Wallet is a fake account-holding provider.
type Wallet struct {
	mu       sync.Mutex
	chainID  *big.Int
	accounts []common.Address

	// RejectAccounts fails eth_requestAccounts and eth_accounts.
	RejectAccounts error
	// RejectSend fails eth_sendTransaction.
	RejectSend error
	// NextHash, when set, is returned for the next sent transaction.
	NextHash common.Hash
	// PendingPolls is how many receipt lookups report "not found" before mining.
	PendingPolls int
	// Mine builds the receipt for a sent transaction. Defaults to an empty successful receipt.
	Mine func(tx provider.TxArgs, hash common.Hash) *types.Receipt

	sent     []provider.TxArgs
	receipts map[common.Hash]*types.Receipt
	polls    map[common.Hash]int
	server   *rpc.Server
}

func NewWallet(chainID int64, accounts ...common.Address) *Wallet {
	w := &Wallet{
		chainID:  big.NewInt(chainID),
		accounts: accounts,
		receipts: make(map[common.Hash]*types.Receipt),
		polls:    make(map[common.Hash]int),
		server:   rpc.NewServer(),
	}
	if err := w.server.RegisterName("eth", &ethService{w: w}); err != nil {
		panic(err)
	}
	return w
}

// Dial opens an in-process client to the wallet.
func (w *Wallet) Dial() *rpc.Client {
	return rpc.DialInProc(w.server)
}

func (w *Wallet) Stop() {
	w.server.Stop()
}

func (w *Wallet) SetChainID(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainID = big.NewInt(id)
}

func (w *Wallet) Sent() []provider.TxArgs {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]provider.TxArgs(nil), w.sent...)
}

type ethService struct {
	w *Wallet
}

func (s *ethService) ChainId() *hexutil.Big {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return (*hexutil.Big)(new(big.Int).Set(s.w.chainID))
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(1)
}

func (s *ethService) Accounts() ([]common.Address, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.RejectAccounts != nil {
		return nil, s.w.RejectAccounts
	}
	return append([]common.Address{}, s.w.accounts...), nil
}

func (s *ethService) RequestAccounts() ([]common.Address, error) {
	return s.Accounts()
}

func (s *ethService) SendTransaction(args provider.TxArgs) (common.Hash, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.RejectSend != nil {
		return common.Hash{}, s.w.RejectSend
	}
	if args.To == nil {
		return common.Hash{}, errors.New("contract creation not supported")
	}

	hash := s.w.NextHash
	if hash == (common.Hash{}) {
		hash = crypto.Keccak256Hash(args.From.Bytes(), args.Data, big.NewInt(int64(len(s.w.sent))).Bytes())
	}
	s.w.NextHash = common.Hash{}
	s.w.sent = append(s.w.sent, args)

	var receipt *types.Receipt
	if s.w.Mine != nil {
		receipt = s.w.Mine(args, hash)
	}
	if receipt == nil {
		receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful}
	}
	if receipt.Logs == nil {
		receipt.Logs = []*types.Log{}
	}
	for _, l := range receipt.Logs {
		l.TxHash = hash
	}
	receipt.TxHash = hash
	receipt.BlockNumber = big.NewInt(1)
	s.w.receipts[hash] = receipt
	return hash, nil
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	receipt, ok := s.w.receipts[hash]
	if !ok {
		return nil, nil
	}
	if s.w.polls[hash] < s.w.PendingPolls {
		s.w.polls[hash]++
		return nil, nil
	}
	return receipt, nil
}
