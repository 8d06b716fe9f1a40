// Package state persists small pieces of process-local pipeline state (the
// watermark cursor and the applied-batch ledger) under string keys.
package state

import (
	"fmt"
	"sync"
)

// Store is a keyed byte store. Set must replace the previous value
// atomically: readers never observe a partial write.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// PersistenceError reports a failed state read or write.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// MemoryStore is an in-memory Store. GetErr and SetErr, when set, are
// returned from every call to simulate a failing backend.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte

	GetErr error
	SetErr error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

// Get implements Store.
func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, false, &PersistenceError{Op: "read", Key: key, Err: m.GetErr}
	}
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements Store.
func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return &PersistenceError{Op: "write", Key: key, Err: m.SetErr}
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}
