// SPDX-License-Identifier: MPL-2.0

package config

import (
	"encoding/json"
	"sync"
)

// Store persists JSON values by key. Implementations must not cache: a Get
// always reflects the latest Set, including Sets from other processes when
// the backend is shared.
type Store interface {
	// Get returns the raw JSON for key. found is false when key was never set.
	Get(key string) (value json.RawMessage, found bool, err error)
	Set(key string, value json.RawMessage) error
	Delete(key string) error
	All() (map[string]json.RawMessage, error)
	Close() error
}

// MemoryStore keeps values in process memory. Used by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]json.RawMessage)}
}

func (m *MemoryStore) Get(key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), v...), true, nil
}

func (m *MemoryStore) Set(key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append(json.RawMessage(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) All() (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(m.values))
	for k, v := range m.values {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
