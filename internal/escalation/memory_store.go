package escalation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是基于内存的升级仓库实现。
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Escalation
}

// NewMemoryStore 构造一个空的内存仓库。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Escalation)}
}

func (s *MemoryStore) Create(_ context.Context, e *Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[e.ID] = cloneEscalation(e)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	return cloneEscalation(e), nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	escalations := make([]*Escalation, 0, len(s.byID))
	for _, e := range s.byID {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && e.Priority != filter.Priority {
			continue
		}
		if filter.AgentID != "" && e.AgentID != filter.AgentID {
			continue
		}
		if filter.AssignedTo != "" && e.AssignedTo != filter.AssignedTo {
			continue
		}
		escalations = append(escalations, cloneEscalation(e))
	}
	sort.Slice(escalations, func(i, j int) bool {
		if escalations[i].CreatedAt == escalations[j].CreatedAt {
			return escalations[i].ID < escalations[j].ID
		}
		return escalations[i].CreatedAt > escalations[j].CreatedAt
	})
	if filter.Limit > 0 && len(escalations) > filter.Limit {
		escalations = escalations[:filter.Limit]
	}
	return escalations, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, _ []Status, target Status, patch ResolvePatch) (*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	// 锁内读到的就是当前状态，Guard 的判定即 CAS 条件。
	if err := Lifecycle.Guard(e.Status, target); err != nil {
		return nil, err
	}

	e.Status = target
	e.UpdatedAt = time.Now().Unix()
	if Lifecycle.Terminal(target) {
		e.Resolution = patch.Resolution
		e.ResolvedBy = patch.ResolvedBy
		e.ResolvedAt = patch.ResolvedAt
	}
	return cloneEscalation(e), nil
}

func (s *MemoryStore) Close() error { return nil }
