package store

import (
	"context"
	"sync"
)

// Memory is a process-local KV. It does not survive restarts and exists for
// tests and throwaway runs.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemory() *Memory { return &Memory{items: map[string]string{}} }

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
