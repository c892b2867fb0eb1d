package server

import "sync"

// Board collects what background workflows want the next page render to show.
type Board struct {
	mu      sync.Mutex
	alerts  []string
	pairing string
}

func NewBoard() *Board {
	return &Board{}
}

// Alert queues a message for window.alert on the next render.
func (b *Board) Alert(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, msg)
}

// ShowPairing publishes a WalletConnect pairing URI for the QR view.
func (b *Board) ShowPairing(uri string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pairing = uri
}

func (b *Board) ClearPairing() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pairing = ""
}

func (b *Board) Pairing() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pairing
}

// drain returns queued alerts and forgets them.
func (b *Board) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	alerts := b.alerts
	b.alerts = nil
	return alerts
}
