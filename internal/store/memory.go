package store

import (
	"context"
	"sync"
)

// MemoryTokens is a process-local token store.
type MemoryTokens struct {
	mu    sync.Mutex
	token string
}

func NewMemoryTokens() *MemoryTokens { return &MemoryTokens{} }

func (m *MemoryTokens) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryTokens) Save(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokens) Clear(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokens) Close() error { return nil }
