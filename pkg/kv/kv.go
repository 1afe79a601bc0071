// Package kv is the device-local store stations use for UX continuity:
// dismissed requests, the pending display album, cached staff tokens.
package kv

import (
	"encoding/json"
	"fmt"
	"sync"
)

const (
	KeyBigScreenRequests = "bigscreen_requests"
	KeyDismissedRequests = "dismissed_requests"
)

func PendingDisplayKey(eventID uint) string {
	return fmt.Sprintf("pending_display:%d", eventID)
}

func StaffAuthKey(eventID uint) string {
	return fmt.Sprintf("staff_auth:%d", eventID)
}

// Store holds JSON-encoded values by key. Get reports false for a missing key.
type Store interface {
	Get(key string, v interface{}) (bool, error)
	Set(key string, v interface{}) error
	Delete(key string) error
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string, v interface{}) (bool, error) {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (m *MemoryStore) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// StringSet is a set of strings persisted under one key. Reads are served
// from memory after Load.
type StringSet struct {
	mu    sync.Mutex
	store Store
	key   string
	items map[string]struct{}
}

func LoadStringSet(store Store, key string) (*StringSet, error) {
	s := &StringSet{store: store, key: key, items: make(map[string]struct{})}
	var list []string
	if _, err := store.Get(key, &list); err != nil {
		return nil, err
	}
	for _, item := range list {
		s.items[item] = struct{}{}
	}
	return s, nil
}

func (s *StringSet) Has(item string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[item]
	return ok
}

func (s *StringSet) Add(item string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item]; ok {
		return nil
	}
	s.items[item] = struct{}{}
	return s.persist()
}

func (s *StringSet) Remove(item string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item]; !ok {
		return nil
	}
	delete(s.items, item)
	return s.persist()
}

func (s *StringSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *StringSet) persist() error {
	list := make([]string, 0, len(s.items))
	for item := range s.items {
		list = append(list, item)
	}
	return s.store.Set(s.key, list)
}
