package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process AttributionStore guarded by a mutex. It backs
// tests and single-node runs without Redis; the mutex gives the same
// linearizable take/remove semantics.
type MemoryStore struct {
	mu    sync.Mutex
	lists map[string]*memoryList
	vals  map[string]memoryValue
	now   func() time.Time
}

type memoryList struct {
	entries   []string
	expiresAt time.Time
}

type memoryValue struct {
	entry     string
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists: make(map[string]*memoryList),
		vals:  make(map[string]memoryValue),
		now:   time.Now,
	}
}

// SetClock replaces the store's clock. Tests use it to force expiry without
// waiting.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PushPending prepends the entry and refreshes the list TTL.
func (s *MemoryStore) PushPending(_ context.Context, workspaceID, provider, entry string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pendingKey(workspaceID, provider)
	list := s.liveList(key)
	if list == nil {
		list = &memoryList{}
		s.lists[key] = list
	}
	list.entries = append([]string{entry}, list.entries...)
	list.expiresAt = s.now().Add(ttl * pendingTTLFactor)
	return nil
}

// TakePending pops the head of the list.
func (s *MemoryStore) TakePending(_ context.Context, workspaceID, provider string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pendingKey(workspaceID, provider)
	list := s.liveList(key)
	if list == nil || len(list.entries) == 0 {
		return "", false, nil
	}

	entry := list.entries[0]
	list.entries = list.entries[1:]
	if len(list.entries) == 0 {
		delete(s.lists, key)
	}
	return entry, true, nil
}

// RemovePending removes the first element equal to entry.
func (s *MemoryStore) RemovePending(_ context.Context, workspaceID, provider, entry string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pendingKey(workspaceID, provider)
	list := s.liveList(key)
	if list == nil {
		return 0, nil
	}

	for i, e := range list.entries {
		if e == entry {
			list.entries = append(list.entries[:i], list.entries[i+1:]...)
			if len(list.entries) == 0 {
				delete(s.lists, key)
			}
			return 1, nil
		}
	}
	return 0, nil
}

// PutWaiting stores the marker, overwriting any prior one.
func (s *MemoryStore) PutWaiting(_ context.Context, workspaceID, entry string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vals[waitingKey(workspaceID)] = memoryValue{
		entry:     entry,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// TakeWaiting gets and deletes the workspace's marker.
func (s *MemoryStore) TakeWaiting(_ context.Context, workspaceID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := waitingKey(workspaceID)
	val, ok := s.liveValue(key)
	if !ok {
		return "", false, nil
	}
	delete(s.vals, key)
	return val.entry, true, nil
}

// LastClick reads the visitor's most-recent click pointer.
func (s *MemoryStore) LastClick(_ context.Context, workspaceID, visitorID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, ok := s.liveValue(clickKey(workspaceID, visitorID))
	if !ok {
		return "", false, nil
	}
	return val.entry, true, nil
}

// SaveLastClick stores the visitor's most-recent click pointer.
func (s *MemoryStore) SaveLastClick(_ context.Context, workspaceID, visitorID, entry string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vals[clickKey(workspaceID, visitorID)] = memoryValue{
		entry:     entry,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// liveList returns the list at key, expiring it lazily. Callers hold the lock.
func (s *MemoryStore) liveList(key string) *memoryList {
	list, ok := s.lists[key]
	if !ok {
		return nil
	}
	if s.now().After(list.expiresAt) {
		delete(s.lists, key)
		return nil
	}
	return list
}

// liveValue returns the value at key, expiring it lazily. Callers hold the lock.
func (s *MemoryStore) liveValue(key string) (memoryValue, bool) {
	val, ok := s.vals[key]
	if !ok {
		return memoryValue{}, false
	}
	if s.now().After(val.expiresAt) {
		delete(s.vals, key)
		return memoryValue{}, false
	}
	return val, true
}
