package workflow

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是基于内存的工作流仓库实现。
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Definition
	byName map[string]map[int]string
}

// NewMemoryStore 构造一个空的内存仓库。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Definition),
		byName: make(map[string]map[int]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.byName[def.Name]
	if !ok {
		versions = make(map[int]string)
		s.byName[def.Name] = versions
	}
	if _, exists := versions[def.Version]; exists {
		return ErrWorkflowConflict
	}
	s.byID[def.ID] = cloneDefinition(def)
	versions[def.Version] = def.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.byID[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return cloneDefinition(def), nil
}

func (s *MemoryStore) Latest(_ context.Context, name string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.byName[name]
	if !ok || len(versions) == 0 {
		return nil, ErrWorkflowNotFound
	}
	highest := 0
	for version := range versions {
		if version > highest {
			highest = version
		}
	}
	return cloneDefinition(s.byID[versions[highest]]), nil
}

func (s *MemoryStore) GetVersion(_ context.Context, name string, version int) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.byName[name]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	id, ok := versions[version]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return cloneDefinition(s.byID[id]), nil
}

func (s *MemoryStore) NextVersion(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := 0
	for version := range s.byName[name] {
		if version > highest {
			highest = version
		}
	}
	return highest + 1, nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	defs := make([]*Definition, 0, len(s.byID))
	for _, def := range s.byID {
		if filter.Name != "" && def.Name != filter.Name {
			continue
		}
		if filter.ActiveOnly && !def.IsActive {
			continue
		}
		defs = append(defs, cloneDefinition(def))
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Name == defs[j].Name {
			return defs[i].Version > defs[j].Version
		}
		return defs[i].Name < defs[j].Name
	})
	return defs, nil
}

func (s *MemoryStore) SetActive(_ context.Context, id string, active bool) (*Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.byID[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	def.IsActive = active
	def.UpdatedAt = time.Now().Unix()
	return cloneDefinition(def), nil
}

func (s *MemoryStore) Close() error { return nil }
