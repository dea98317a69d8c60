package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used by tests and single-node setups.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

// Get returns the value of key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return copyBytes(v), true, nil
}

// GetPrefix returns the pairs below prefix in key order.
func (s *MemoryStore) GetPrefix(_ context.Context, prefix string) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []KV
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, KV{Key: k, Value: copyBytes(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Put writes key.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = copyBytes(value)
	return nil
}

// Txn applies then or otherwise under a single lock.
func (s *MemoryStore) Txn(_ context.Context, conds []Condition, then, otherwise []KV) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := true
	for _, c := range conds {
		if _, exists := s.data[c.Key]; exists != c.Exists {
			ok = false
			break
		}
	}
	ops := otherwise
	if ok {
		ops = then
	}
	for _, op := range ops {
		s.data[op.Key] = copyBytes(op.Value)
	}
	return ok, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte{}, b...)
}
