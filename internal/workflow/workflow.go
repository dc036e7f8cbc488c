package workflow

import (
	xerrors "AgentPlane/internal/errors"
)

// Definition 是一个带版本的工作流定义。同名工作流的版本从 1 开始
// 单调递增，(name, version) 全局唯一。定义体对控制面是不透明文本，
// 除激活标记外创建后不可变。
type Definition struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	Version           int            `json:"version"`
	Definition        string         `json:"definition"`
	DesignedByAgentID string         `json:"designed_by_agent_id,omitempty"`
	DesignedWithModel string         `json:"designed_with_model,omitempty"`
	ExecutableByModel string         `json:"executable_by_model,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	IsActive          bool           `json:"is_active"`
	CreatedAt         int64          `json:"created_at"`
	UpdatedAt         int64          `json:"updated_at"`
}

var (
	// ErrWorkflowNotFound 表示指定的工作流不存在。
	ErrWorkflowNotFound = xerrors.New(xerrors.CodeNotFound, "workflow not found")
	// ErrWorkflowConflict 表示 (name, version) 已存在。
	ErrWorkflowConflict = xerrors.New(xerrors.CodeConflict, "workflow version already exists")
)

func cloneDefinition(def *Definition) *Definition {
	clone := *def
	if def.Metadata != nil {
		metadata := make(map[string]any, len(def.Metadata))
		for key, value := range def.Metadata {
			metadata[key] = value
		}
		clone.Metadata = metadata
	}
	return &clone
}
