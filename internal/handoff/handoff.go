package handoff

import (
	xerrors "AgentPlane/internal/errors"
	"AgentPlane/internal/lifecycle"
)

// Status 表示一次交接所处的阶段。
type Status = lifecycle.Status

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// Lifecycle 是交接记录的状态机：pending → {accepted, rejected}，
// accepted → completed。rejected 与 completed 是终态。
var Lifecycle = lifecycle.New("handoff", StatusPending, map[Status][]Status{
	StatusPending:   {StatusAccepted, StatusRejected},
	StatusAccepted:  {StatusCompleted},
	StatusRejected:  {},
	StatusCompleted: {},
})

// Handoff 把一个进行中的任务连同上下文从一个智能体转交给另一个。
// 上下文是被转移状态的全部，创建时必填。
type Handoff struct {
	ID          string         `json:"id"`
	FromAgentID string         `json:"from_agent_id,omitempty"`
	ToAgentID   string         `json:"to_agent_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Context     map[string]any `json:"context"`
	Reason      string         `json:"reason,omitempty"`
	Status      Status         `json:"status"`
	AcceptedAt  int64          `json:"accepted_at,omitempty"`
	CompletedAt int64          `json:"completed_at,omitempty"`
	CreatedAt   int64          `json:"created_at"`
	UpdatedAt   int64          `json:"updated_at"`
}

// ErrHandoffNotFound 表示指定的交接记录不存在。
var ErrHandoffNotFound = xerrors.New(xerrors.CodeNotFound, "handoff not found")

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

func cloneHandoff(h *Handoff) *Handoff {
	clone := *h
	clone.Context = cloneValues(h.Context)
	return &clone
}
