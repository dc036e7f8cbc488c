package execution

import (
	xerrors "AgentPlane/internal/errors"
	"AgentPlane/internal/lifecycle"
)

// Status 表示一次工作流执行所处的阶段。
type Status = lifecycle.Status

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Lifecycle 是执行记录的状态机：pending → running → {completed, failed}，
// 终态不可再转出。
var Lifecycle = lifecycle.New("execution", StatusPending, map[Status][]Status{
	StatusPending:   {StatusRunning},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
})

// Execution 是一次工作流运行。输入在创建时写入，输出与错误只在
// 进入终态时写入；completed_at 与 duration_seconds 在终态冻结。
type Execution struct {
	ID               string         `json:"id"`
	WorkflowID       string         `json:"workflow_id"`
	AgentID          string         `json:"agent_id,omitempty"`
	ExecutedWithModel string        `json:"executed_with_model,omitempty"`
	Status           Status         `json:"status"`
	InputData        map[string]any `json:"input_data,omitempty"`
	OutputData       map[string]any `json:"output_data,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	CostEstimate     float64        `json:"cost_estimate,omitempty"`
	StartedAt        int64          `json:"started_at"`
	CompletedAt      int64          `json:"completed_at,omitempty"`
	DurationSeconds  int64          `json:"duration_seconds,omitempty"`
	CreatedAt        int64          `json:"created_at"`
	UpdatedAt        int64          `json:"updated_at"`
}

// Terminal 报告执行是否已经进入终态。
func (e *Execution) Terminal() bool {
	return Lifecycle.Terminal(e.Status)
}

// ErrExecutionNotFound 表示指定的执行记录不存在。
var ErrExecutionNotFound = xerrors.New(xerrors.CodeNotFound, "execution not found")

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

func cloneExecution(exec *Execution) *Execution {
	clone := *exec
	clone.InputData = cloneValues(exec.InputData)
	clone.OutputData = cloneValues(exec.OutputData)
	return &clone
}
