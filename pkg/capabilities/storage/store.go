// Package storage is the key/value capability: storage.getItem, storage.setItem
// and storage.removeItem, partitioned by an optional biz tag.
package storage

import (
	"context"
	"sync"
	"time"
)

// Store persists items. Implementations must treat an expired item as absent.
type Store interface {
	Get(ctx context.Context, biz, key string) (value any, found bool, err error)
	// Set stores value. A zero ttl never expires.
	Set(ctx context.Context, biz, key string, value any, ttl time.Duration) error
	// Remove deletes the item and reports whether it existed.
	Remove(ctx context.Context, biz, key string) (bool, error)
}

type memoryKey struct {
	biz string
	key string
}

type memoryItem struct {
	value     any
	expiresAt time.Time
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	items map[memoryKey]memoryItem
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[memoryKey]memoryItem), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, biz, key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey{biz: biz, key: key}
	item, ok := s.items[k]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		delete(s.items, k)
		return nil, false, nil
	}
	return item.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, biz, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.items[memoryKey{biz: biz, key: key}] = item
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, biz, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey{biz: biz, key: key}
	_, ok := s.items[k]
	delete(s.items, k)
	return ok, nil
}

// Len returns the number of stored items, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
