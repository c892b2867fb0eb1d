package walletconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

type handshake struct {
	ID     int64                  `json:"id"`
	Method string                 `json:"method"`
	Params []sessionRequestParams `json:"params"`
}

// newTestBridge plays both bridge and wallet: it waits for the pairing URI,
// decrypts the session request and answers with reply.
func newTestBridge(t *testing.T, uris <-chan string, reply func(handshake) rpcResponse) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub, pub socketMessage
		if err := conn.ReadJSON(&sub); err != nil || sub.Type != "sub" {
			t.Errorf("expected sub message, got %+v (%v)", sub, err)
			return
		}
		if err := conn.ReadJSON(&pub); err != nil || pub.Type != "pub" {
			t.Errorf("expected pub message, got %+v (%v)", pub, err)
			return
		}

		var uri string
		select {
		case uri = <-uris:
		case <-time.After(2 * time.Second):
			t.Errorf("pairing uri never displayed")
			return
		}
		topic, _, key, err := ParseURI(uri)
		if err != nil {
			t.Errorf("parse uri: %v", err)
			return
		}
		if topic != pub.Topic {
			t.Errorf("request published on %s, uri topic %s", pub.Topic, topic)
		}

		var sealed encryptedPayload
		if err := json.Unmarshal([]byte(pub.Payload), &sealed); err != nil {
			t.Errorf("payload: %v", err)
			return
		}
		plain, err := decrypt(key, &sealed)
		if err != nil {
			t.Errorf("decrypt: %v", err)
			return
		}
		var req handshake
		if err := json.Unmarshal(plain, &req); err != nil || len(req.Params) != 1 {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Params[0].PeerID != sub.Topic {
			t.Errorf("dapp subscribed to %s but announced peer %s", sub.Topic, req.Params[0].PeerID)
		}

		resp := reply(req)
		resp.ID = req.ID
		resp.JSONRPC = "2.0"
		body, _ := json.Marshal(resp)
		out, err := encrypt(key, body)
		if err != nil {
			t.Errorf("encrypt: %v", err)
			return
		}
		payload, _ := json.Marshal(out)
		// noise on another topic must be ignored
		_ = conn.WriteJSON(socketMessage{Topic: "someone-else", Type: "pub", Payload: "{}"})
		_ = conn.WriteJSON(socketMessage{Topic: req.Params[0].PeerID, Type: "pub", Payload: string(payload)})

		// hold the socket until the client is done
		_, _, _ = conn.ReadMessage()
	}))
}

func approve(chainID uint64, accounts ...string) func(handshake) rpcResponse {
	return func(req handshake) rpcResponse {
		result, _ := json.Marshal(sessionResult{
			Approved: true,
			ChainID:  chainID,
			Accounts: accounts,
			PeerID:   "wallet-peer",
			PeerMeta: &PeerMeta{Name: "Test Wallet"},
		})
		return rpcResponse{Result: result}
	}
}

func TestConnectApproved(t *testing.T) {
	uris := make(chan string, 1)
	bridge := newTestBridge(t, uris, approve(4, "0x00000000000000000000000000000000000000b2"))
	defer bridge.Close()

	client := &Client{Bridge: bridge.URL, Meta: PeerMeta{Name: "epicnft"}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := client.Connect(ctx, 4, func(uri string) { uris <- uri })
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	if session.ChainID != 4 {
		t.Fatalf("unexpected chain %d", session.ChainID)
	}
	if len(session.Accounts) != 1 || session.Accounts[0] != common.HexToAddress("0x00000000000000000000000000000000000000b2") {
		t.Fatalf("unexpected accounts %v", session.Accounts)
	}
	if session.PeerID != "wallet-peer" || session.PeerMeta.Name != "Test Wallet" {
		t.Fatalf("unexpected peer %s %+v", session.PeerID, session.PeerMeta)
	}
	if !strings.HasPrefix(session.URI, "wc:") {
		t.Fatalf("unexpected uri %s", session.URI)
	}
}

func TestConnectRejected(t *testing.T) {
	uris := make(chan string, 1)
	bridge := newTestBridge(t, uris, func(handshake) rpcResponse {
		return rpcResponse{Error: &rpcError{Code: -32000, Message: "User rejected"}}
	})
	defer bridge.Close()

	client := &Client{Bridge: bridge.URL}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Connect(ctx, 4, func(uri string) { uris <- uri })
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestConnectCancelled(t *testing.T) {
	// a bridge that never relays an answer
	upgrader := websocket.Upgrader{}
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer bridge.Close()

	client := &Client{Bridge: bridge.URL}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Connect(ctx, 4, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestURIRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	uri := FormatURI("topic-1", "https://bridge.walletconnect.org", key)

	topic, bridge, parsed, err := ParseURI(uri)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if topic != "topic-1" || bridge != "https://bridge.walletconnect.org" || !bytes.Equal(parsed, key) {
		t.Fatalf("unexpected parts %s %s %x", topic, bridge, parsed)
	}
}

func TestDecryptRejectsTamperedPayload(t *testing.T) {
	key := bytes.Repeat([]byte{0x22}, 32)
	sealed, err := encrypt(key, []byte(`{"id":1}`))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	sealed.Data = strings.Repeat("0", len(sealed.Data))

	if _, err := decrypt(key, sealed); !errors.Is(err, ErrBadMAC) {
		t.Fatalf("expected ErrBadMAC, got %v", err)
	}
}
