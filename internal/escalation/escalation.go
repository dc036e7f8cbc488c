package escalation

import (
	xerrors "AgentPlane/internal/errors"
	"AgentPlane/internal/lifecycle"
)

// Status 表示一次升级所处的阶段。
type Status = lifecycle.Status

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusDismissed  Status = "dismissed"
)

// Lifecycle 是升级记录的状态机：open 可以直接终结，也可以经过
// in_progress；resolved 与 dismissed 是终态。
var Lifecycle = lifecycle.New("escalation", StatusOpen, map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusResolved, StatusDismissed},
	StatusInProgress: {StatusResolved, StatusDismissed},
	StatusResolved:   {},
	StatusDismissed:  {},
})

// Priority 表示升级的紧急程度。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValidPriority 检查优先级是否为支持的枚举值。
func IsValidPriority(priority Priority) bool {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Escalation 是一次请求人工介入的记录。每条升级最终都应当以
// 一段可审计的 resolution 文本进入终态。
type Escalation struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agent_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	HandoffID   string         `json:"handoff_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	Reason      string         `json:"reason"`
	Priority    Priority       `json:"priority"`
	Context     map[string]any `json:"context,omitempty"`
	AssignedTo  string         `json:"assigned_to,omitempty"`
	Status      Status         `json:"status"`
	Resolution  string         `json:"resolution,omitempty"`
	ResolvedBy  string         `json:"resolved_by,omitempty"`
	ResolvedAt  int64          `json:"resolved_at,omitempty"`
	CreatedAt   int64          `json:"created_at"`
	UpdatedAt   int64          `json:"updated_at"`
}

// ErrEscalationNotFound 表示指定的升级记录不存在。
var ErrEscalationNotFound = xerrors.New(xerrors.CodeNotFound, "escalation not found")

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

func cloneEscalation(e *Escalation) *Escalation {
	clone := *e
	clone.Context = cloneValues(e.Context)
	return &clone
}
