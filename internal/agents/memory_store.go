package agents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是基于内存的注册表实现，用于本地开发与测试。
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Agent
	byName map[string]string
}

// NewMemoryStore 构造一个空的内存注册表。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Agent),
		byName: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, agent *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[agent.Name]; exists {
		return ErrAgentConflict
	}
	s.byID[agent.ID] = cloneAgent(agent)
	s.byName[agent.Name] = agent.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.byID[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return cloneAgent(agent), nil
}

func (s *MemoryStore) GetByName(_ context.Context, name string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[name]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return cloneAgent(s.byID[id]), nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]*Agent, 0, len(s.byID))
	for _, agent := range s.byID {
		if filter.Status != "" && agent.Status != filter.Status {
			continue
		}
		if filter.Framework != "" && agent.Framework != filter.Framework {
			continue
		}
		agents = append(agents, cloneAgent(agent))
	}
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].CreatedAt == agents[j].CreatedAt {
			return agents[i].Name < agents[j].Name
		}
		return agents[i].CreatedAt > agents[j].CreatedAt
	})
	return agents, nil
}

func (s *MemoryStore) Touch(_ context.Context, name string, status Status, seenAt int64) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byName[name]
	if !ok {
		return nil, ErrAgentNotFound
	}
	agent := s.byID[id]
	agent.LastSeen = seenAt
	agent.UpdatedAt = time.Now().Unix()
	if status != "" {
		agent.Status = status
	}
	return cloneAgent(agent), nil
}

func (s *MemoryStore) Close() error { return nil }
