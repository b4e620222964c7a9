package store

import (
	"context"
	"sync"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
	saves  map[string]int
}

var _ KV = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		values: make(map[string][]byte),
		saves:  make(map[string]int),
	}
}

// Load returns a copy of the stored document.
func (m *Memory) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Save stores a copy of value.
func (m *Memory) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	m.saves[key]++
	return nil
}

// Saves reports how many times key was written.
func (m *Memory) Saves(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves[key]
}

// Reset drops every document.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string][]byte)
	m.saves = make(map[string]int)
}
