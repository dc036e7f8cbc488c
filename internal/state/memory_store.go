package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是基于内存的状态存储实现。过期采用惰性回收：
// 读到已过期的条目时当场删除并按不存在处理。
type MemoryStore struct {
	mu         sync.Mutex
	components map[string]map[string]*Entry
}

// NewMemoryStore 构造一个空的内存状态存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{components: make(map[string]map[string]*Entry)}
}

func (s *MemoryStore) Put(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.components[entry.ComponentName]
	if !ok {
		keys = make(map[string]*Entry)
		s.components[entry.ComponentName] = keys
	}
	if existing, ok := keys[entry.StateKey]; ok && !existing.Expired(time.Now().Unix()) {
		// 覆盖写保留首次创建的身份。
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	}
	keys[entry.StateKey] = cloneEntry(entry)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, component, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.components[component]
	if !ok {
		return nil, ErrStateNotFound
	}
	entry, ok := keys[key]
	if !ok {
		return nil, ErrStateNotFound
	}
	if entry.Expired(time.Now().Unix()) {
		delete(keys, key)
		return nil, ErrStateNotFound
	}
	return cloneEntry(entry), nil
}

func (s *MemoryStore) GetAll(_ context.Context, component string) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.components[component]
	now := time.Now().Unix()
	entries := make([]*Entry, 0, len(keys))
	for key, entry := range keys {
		if entry.Expired(now) {
			delete(keys, key)
			continue
		}
		entries = append(entries, cloneEntry(entry))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StateKey < entries[j].StateKey
	})
	return entries, nil
}

func (s *MemoryStore) Delete(_ context.Context, component, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keys, ok := s.components[component]; ok {
		delete(keys, key)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
