package state

import (
	xerrors "AgentPlane/internal/errors"
)

// Entry 是一条按 (component_name, state_key) 唯一寻址的持久化状态。
// 写入是对该键对的整体覆盖；带过期时间的条目超时后逻辑死亡，
// 任何读取都不得再返回它。
type Entry struct {
	ID            string         `json:"id"`
	ComponentName string         `json:"component_name"`
	StateKey      string         `json:"state_key"`
	StateValue    map[string]any `json:"state_value"`
	AgentID       string         `json:"agent_id,omitempty"`
	CreatedAt     int64          `json:"created_at"`
	UpdatedAt     int64          `json:"updated_at"`
	ExpiresAt     int64          `json:"expires_at,omitempty"`
}

// Expired 报告条目在 now 时刻是否已经过期。
func (e *Entry) Expired(now int64) bool {
	return e.ExpiresAt != 0 && e.ExpiresAt <= now
}

// ErrStateNotFound 表示指定的状态不存在或已过期。
var ErrStateNotFound = xerrors.New(xerrors.CodeNotFound, "state entry not found")

func cloneValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	cloned := make(map[string]any, len(values))
	for key, value := range values {
		cloned[key] = value
	}
	return cloned
}

func cloneEntry(entry *Entry) *Entry {
	clone := *entry
	clone.StateValue = cloneValues(entry.StateValue)
	return &clone
}
