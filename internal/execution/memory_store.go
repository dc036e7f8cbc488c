package execution

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是基于内存的执行仓库实现，转移在互斥锁内完成，
// 与 MySQL 实现的比较并交换语义等价。
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Execution
}

// NewMemoryStore 构造一个空的内存仓库。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Execution)}
}

func (s *MemoryStore) Create(_ context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[exec.ID] = cloneExecution(exec)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.byID[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return cloneExecution(exec), nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execs := make([]*Execution, 0, len(s.byID))
	for _, exec := range s.byID {
		if filter.WorkflowID != "" && exec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.AgentID != "" && exec.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && exec.Status != filter.Status {
			continue
		}
		execs = append(execs, cloneExecution(exec))
	}
	sort.Slice(execs, func(i, j int) bool {
		if execs[i].CreatedAt == execs[j].CreatedAt {
			return execs[i].ID < execs[j].ID
		}
		return execs[i].CreatedAt > execs[j].CreatedAt
	})
	if filter.Limit > 0 && len(execs) > filter.Limit {
		execs = execs[:filter.Limit]
	}
	return execs, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, _ []Status, target Status, patch TerminalPatch) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.byID[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	// 锁内读到的就是当前状态，Guard 的判定即 CAS 条件。
	if err := Lifecycle.Guard(exec.Status, target); err != nil {
		return nil, err
	}

	exec.Status = target
	exec.UpdatedAt = time.Now().Unix()
	if Lifecycle.Terminal(target) {
		exec.OutputData = cloneValues(patch.OutputData)
		exec.ErrorMessage = patch.ErrorMessage
		exec.CostEstimate = patch.CostEstimate
		exec.CompletedAt = patch.CompletedAt
		duration := patch.CompletedAt - exec.StartedAt
		if duration < 0 {
			duration = 0
		}
		exec.DurationSeconds = duration
	}
	return cloneExecution(exec), nil
}

func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ByStatus: make(map[Status]int64)}
	var durationSum int64
	var durationCount int64
	for _, exec := range s.byID {
		stats.Total++
		stats.ByStatus[exec.Status]++
		if exec.Status == StatusCompleted {
			durationSum += exec.DurationSeconds
			durationCount++
		}
	}
	if durationCount > 0 {
		stats.AvgDurationSeconds = float64(durationSum) / float64(durationCount)
	}
	return stats, nil
}

func (s *MemoryStore) Close() error { return nil }
