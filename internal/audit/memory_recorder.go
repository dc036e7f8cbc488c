package audit

import (
	"context"
	"sync"
)

// MemoryRecorder 在内存中保留事件，供测试与 memory 驱动下的
// 审计查询接口使用。
type MemoryRecorder struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryRecorder 构造一个空的内存落点。
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Query 按过滤条件返回事件，新事件在前。
func (r *MemoryRecorder) Query(_ context.Context, filter Filter) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Event, 0, len(r.events))
	for i := len(r.events) - 1; i >= 0; i-- {
		event := r.events[i]
		if filter.ResourceType != "" && event.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != "" && event.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Action != "" && event.Action != filter.Action {
			continue
		}
		matched = append(matched, event)
		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}
	return matched, nil
}

// Events 返回全部事件的副本，按写入顺序。
func (r *MemoryRecorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Event(nil), r.events...)
}

func (r *MemoryRecorder) Close() error { return nil }
