package handoff

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是基于内存的交接仓库实现。
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Handoff
}

// NewMemoryStore 构造一个空的内存仓库。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Handoff)}
}

func (s *MemoryStore) Create(_ context.Context, h *Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[h.ID] = cloneHandoff(h)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Handoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.byID[id]
	if !ok {
		return nil, ErrHandoffNotFound
	}
	return cloneHandoff(h), nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Handoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handoffs := make([]*Handoff, 0, len(s.byID))
	for _, h := range s.byID {
		if filter.ToAgentID != "" && h.ToAgentID != filter.ToAgentID {
			continue
		}
		if filter.FromAgentID != "" && h.FromAgentID != filter.FromAgentID {
			continue
		}
		if filter.Status != "" && h.Status != filter.Status {
			continue
		}
		handoffs = append(handoffs, cloneHandoff(h))
	}
	sort.Slice(handoffs, func(i, j int) bool {
		if handoffs[i].CreatedAt == handoffs[j].CreatedAt {
			return handoffs[i].ID < handoffs[j].ID
		}
		return handoffs[i].CreatedAt > handoffs[j].CreatedAt
	})
	if filter.Limit > 0 && len(handoffs) > filter.Limit {
		handoffs = handoffs[:filter.Limit]
	}
	return handoffs, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, _ []Status, target Status, patch StampPatch) (*Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.byID[id]
	if !ok {
		return nil, ErrHandoffNotFound
	}
	// 锁内读到的就是当前状态，Guard 的判定即 CAS 条件。独占认领
	// 由此成立：第二个 accept 看到的已是 accepted。
	if err := Lifecycle.Guard(h.Status, target); err != nil {
		return nil, err
	}

	h.Status = target
	h.UpdatedAt = time.Now().Unix()
	if patch.AcceptedAt != 0 {
		h.AcceptedAt = patch.AcceptedAt
	}
	if patch.CompletedAt != 0 {
		h.CompletedAt = patch.CompletedAt
	}
	return cloneHandoff(h), nil
}

func (s *MemoryStore) Close() error { return nil }
