package execution

import "context"

// ListFilter 约束 List 的返回范围。零值表示不过滤。
type ListFilter struct {
	WorkflowID string
	AgentID    string
	Status     Status
	Limit      int
}

// TerminalPatch 是终态转移时一并写入的字段。非终态转移传零值。
type TerminalPatch struct {
	OutputData   map[string]any
	ErrorMessage string
	CostEstimate float64
	CompletedAt  int64
}

// Stats 是执行记录的聚合视图，供观测接口使用。
type Stats struct {
	Total              int64            `json:"total"`
	ByStatus           map[Status]int64 `json:"by_status"`
	AvgDurationSeconds float64          `json:"avg_duration_seconds"`
	ErrorRate          float64          `json:"error_rate"`
}

// Store 定义执行记录的持久化契约。Transition 必须是比较并交换
// 语义：只有当前状态属于 sources 时才落盘，保证并发下的状态机
// 约束由存储层兜底。
type Store interface {
	Create(ctx context.Context, exec *Execution) error
	Get(ctx context.Context, id string) (*Execution, error)
	List(ctx context.Context, filter ListFilter) ([]*Execution, error)
	// Transition 在 sources 命中时把状态置为 target 并应用 patch，
	// 返回更新后的记录。记录不存在返回 NOT_FOUND，状态不匹配返回
	// INVALID_TRANSITION。duration_seconds 由存储层按已落盘的
	// started_at 计算，绝不信任调用方。
	Transition(ctx context.Context, id string, sources []Status, target Status, patch TerminalPatch) (*Execution, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
