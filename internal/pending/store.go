// Package pending keeps in-flight identity logins between the authorization
// redirect and the callback.
package pending

import (
	"context"
	"sync"
	"time"
)

// Record holds what the callback needs to finish a login.
type Record struct {
	Verifier  string    `json:"verifier"`
	Nonce     string    `json:"nonce"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store abstracts pending login storage.
type Store interface {
	Save(ctx context.Context, key string, record Record) error
	// Take returns the record and removes it; a record is usable once.
	Take(ctx context.Context, key string) (*Record, error)
}

// MemoryStore lives for the process lifetime only. Nothing is persisted.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Record
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
		now:  time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, key string, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.data[key] = record
	return nil
}

func (m *MemoryStore) Take(_ context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	delete(m.data, key)
	if m.now().After(rec.ExpiresAt) {
		return nil, nil
	}
	return &rec, nil
}

// Len reports how many logins are waiting for a callback.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *MemoryStore) sweep() {
	now := m.now()
	for key, rec := range m.data {
		if now.After(rec.ExpiresAt) {
			delete(m.data, key)
		}
	}
}
