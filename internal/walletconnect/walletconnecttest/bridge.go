// Package walletconnecttest runs a bridge that also plays the paired wallet.
package walletconnecttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"epicnft/internal/walletconnect"
)

// PeerID is the topic the wallet listens on once a session is approved.
const PeerID = "wallet-peer"

type message struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

type request struct {
	ID     int64             `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// Bridge approves every session request on a fixed chain.
type Bridge struct {
	*httptest.Server

	chainID  uint64
	accounts []string
	uris     chan string

	killOnce sync.Once
	killed   chan struct{}
}

func NewBridge(chainID uint64, accounts ...string) *Bridge {
	b := &Bridge{
		chainID:  chainID,
		accounts: accounts,
		uris:     make(chan string, 1),
		killed:   make(chan struct{}),
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

// Display is the pairing hook: the wallet "scans" the URI it is given.
func (b *Bridge) Display(uri string) {
	select {
	case b.uris <- uri:
	default:
	}
}

// Killed is closed once the dapp ends the session with wc_sessionUpdate.
func (b *Bridge) Killed() <-chan struct{} {
	return b.killed
}

func (b *Bridge) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var sub, pub message
	if err := conn.ReadJSON(&sub); err != nil || sub.Type != "sub" {
		return
	}
	if err := conn.ReadJSON(&pub); err != nil || pub.Type != "pub" {
		return
	}

	var uri string
	select {
	case uri = <-b.uris:
	case <-time.After(2 * time.Second):
		return
	}
	_, _, key, err := walletconnect.ParseURI(uri)
	if err != nil {
		return
	}

	plain, err := walletconnect.Open(key, pub.Payload)
	if err != nil {
		return
	}
	var req request
	if err := json.Unmarshal(plain, &req); err != nil || req.Method != "wc_sessionRequest" || len(req.Params) != 1 {
		return
	}
	var params struct {
		PeerID string `json:"peerId"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		return
	}

	result, _ := json.Marshal(map[string]interface{}{
		"approved": true,
		"chainId":  b.chainID,
		"accounts": b.accounts,
		"peerId":   PeerID,
		"peerMeta": map[string]interface{}{"name": "Test Wallet"},
	})
	body, _ := json.Marshal(map[string]interface{}{"id": req.ID, "jsonrpc": "2.0", "result": json.RawMessage(result)})
	payload, err := walletconnect.Seal(key, body)
	if err != nil {
		return
	}
	if err := conn.WriteJSON(message{Topic: params.PeerID, Type: "pub", Payload: payload}); err != nil {
		return
	}

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "pub" || msg.Topic != PeerID {
			continue
		}
		plain, err := walletconnect.Open(key, msg.Payload)
		if err != nil {
			continue
		}
		var update struct {
			Method string `json:"method"`
			Params []struct {
				Approved bool `json:"approved"`
			} `json:"params"`
		}
		if json.Unmarshal(plain, &update) != nil || update.Method != "wc_sessionUpdate" {
			continue
		}
		if len(update.Params) == 1 && !update.Params[0].Approved {
			b.killOnce.Do(func() { close(b.killed) })
		}
	}
}
