// Package walletconnect pairs with a mobile wallet through a WalletConnect v1 bridge.
package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const protocolVersion = 1

var ErrRejected = errors.New("walletconnect: session rejected by wallet")

// PeerMeta describes a session participant.
type PeerMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

type socketMessage struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

type rpcRequest struct {
	ID      int64         `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type sessionRequestParams struct {
	PeerID   string   `json:"peerId"`
	PeerMeta PeerMeta `json:"peerMeta"`
	ChainID  uint64   `json:"chainId"`
}

type sessionResult struct {
	Approved  bool      `json:"approved"`
	ChainID   uint64    `json:"chainId"`
	NetworkID uint64    `json:"networkId"`
	Accounts  []string  `json:"accounts"`
	RPCURL    string    `json:"rpcUrl,omitempty"`
	PeerID    string    `json:"peerId"`
	PeerMeta  *PeerMeta `json:"peerMeta"`
}

type sessionUpdate struct {
	Approved bool     `json:"approved"`
	ChainID  *uint64  `json:"chainId"`
	Accounts []string `json:"accounts"`
}

// Client opens sessions through a bridge server.
type Client struct {
	Bridge string
	Meta   PeerMeta
	Dialer *websocket.Dialer
}

// Session is an approved pairing with a wallet.
type Session struct {
	URI      string
	PeerID   string
	PeerMeta *PeerMeta
	ChainID  uint64
	Accounts []common.Address

	clientID string
	key      []byte
	mu       sync.Mutex
	conn     *websocket.Conn
}

// Connect publishes a session request for chainID, hands the pairing URI to display
// and blocks until the wallet answers or ctx ends.
func (c *Client) Connect(ctx context.Context, chainID uint64, display func(uri string)) (*Session, error) {
	key, err := newKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	clientID := uuid.NewString()
	handshakeTopic := uuid.NewString()
	handshakeID := payloadID()

	wsURL, err := socketURL(c.Bridge)
	if err != nil {
		return nil, err
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}

	s := &Session{
		URI:      FormatURI(handshakeTopic, c.Bridge, key),
		clientID: clientID,
		key:      key,
		conn:     conn,
	}

	if err := s.subscribe(clientID); err != nil {
		conn.Close()
		return nil, err
	}
	req := rpcRequest{
		ID:      handshakeID,
		JSONRPC: "2.0",
		Method:  "wc_sessionRequest",
		Params:  []interface{}{sessionRequestParams{PeerID: clientID, PeerMeta: c.Meta, ChainID: chainID}},
	}
	if err := s.publish(handshakeTopic, req); err != nil {
		conn.Close()
		return nil, err
	}
	if display != nil {
		display(s.URI)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	result, err := s.awaitResponse(handshakeID)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if !result.Approved {
		conn.Close()
		return nil, ErrRejected
	}

	s.PeerID = result.PeerID
	s.PeerMeta = result.PeerMeta
	s.ChainID = result.ChainID
	for _, a := range result.Accounts {
		if !common.IsHexAddress(a) {
			conn.Close()
			return nil, fmt.Errorf("walletconnect: invalid account %q", a)
		}
		s.Accounts = append(s.Accounts, common.HexToAddress(a))
	}
	return s, nil
}

// Kill tells the wallet the session is over and closes the socket.
func (s *Session) Kill() error {
	update := rpcRequest{
		ID:      payloadID(),
		JSONRPC: "2.0",
		Method:  "wc_sessionUpdate",
		Params:  []interface{}{sessionUpdate{Approved: false}},
	}
	err := s.publish(s.PeerID, update)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *Session) subscribe(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(socketMessage{Topic: topic, Type: "sub", Silent: true})
}

func (s *Session) publish(topic string, req rpcRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	payload, err := Seal(s.key, body)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", req.Method, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(socketMessage{Topic: topic, Type: "pub", Payload: payload, Silent: true}); err != nil {
		return fmt.Errorf("publish %s: %w", req.Method, err)
	}
	return nil
}

func (s *Session) awaitResponse(id int64) (*sessionResult, error) {
	for {
		var msg socketMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("read bridge: %w", err)
		}
		if msg.Type != "pub" || msg.Topic != s.clientID {
			continue
		}

		var sealed encryptedPayload
		if err := json.Unmarshal([]byte(msg.Payload), &sealed); err != nil {
			continue
		}
		plain, err := decrypt(s.key, &sealed)
		if err != nil {
			return nil, err
		}
		var resp rpcResponse
		if err := json.Unmarshal(plain, &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Error.Message)
		}

		var result sessionResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		return &result, nil
	}
}

// FormatURI builds the pairing URI a wallet scans.
func FormatURI(topic, bridge string, key []byte) string {
	return fmt.Sprintf("wc:%s@%d?bridge=%s&key=%s", topic, protocolVersion, url.QueryEscape(bridge), hex.EncodeToString(key))
}

// ParseURI splits a pairing URI into its topic, bridge and key.
func ParseURI(uri string) (topic, bridge string, key []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "wc:")
	if !ok {
		return "", "", nil, fmt.Errorf("not a walletconnect uri: %q", uri)
	}
	head, query, ok := strings.Cut(rest, "?")
	if !ok {
		return "", "", nil, fmt.Errorf("walletconnect uri has no parameters")
	}
	topic, version, ok := strings.Cut(head, "@")
	if !ok || version != fmt.Sprint(protocolVersion) {
		return "", "", nil, fmt.Errorf("unsupported walletconnect version %q", version)
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return "", "", nil, err
	}
	key, err = hex.DecodeString(values.Get("key"))
	if err != nil || len(key) != 32 {
		return "", "", nil, fmt.Errorf("invalid walletconnect key")
	}
	return topic, values.Get("bridge"), key, nil
}

func socketURL(bridge string) (string, error) {
	u, err := url.Parse(bridge)
	if err != nil {
		return "", fmt.Errorf("parse bridge url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported bridge scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func payloadID() int64 {
	return time.Now().UnixMilli()*1000 + int64(rand.Intn(1000))
}
