package agents

import (
	xerrors "AgentPlane/internal/errors"
)

// Status 表示智能体的注册状态。状态之间不设转移限制，
// 任何状态都可以直接切换到另一个状态。
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusDeprecated Status = "deprecated"
)

// Agent 描述一个在控制面注册过的智能体。name 全局唯一。
type Agent struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Framework    string         `json:"framework,omitempty"`
	Description  string         `json:"description,omitempty"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	Status       Status         `json:"status"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
	LastSeen     int64          `json:"last_seen"`
}

var (
	// ErrAgentNotFound 表示指定的智能体不存在。
	ErrAgentNotFound = xerrors.New(xerrors.CodeNotFound, "agent not found")
	// ErrAgentConflict 表示智能体名称已被占用。
	ErrAgentConflict = xerrors.New(xerrors.CodeConflict, "agent name already registered")
)

// IsValidStatus 检查给定的状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusActive, StatusInactive, StatusDeprecated:
		return true
	default:
		return false
	}
}

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

func cloneAgent(agent *Agent) *Agent {
	clone := *agent
	clone.Capabilities = cloneValues(agent.Capabilities)
	clone.Config = cloneValues(agent.Config)
	return &clone
}
