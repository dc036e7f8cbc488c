package escalation

import "context"

// ListFilter 约束 List 的返回范围。零值表示不过滤。
type ListFilter struct {
	Status     Status
	Priority   Priority
	AgentID    string
	AssignedTo string
	Limit      int
}

// ResolvePatch 是终态转移时一并写入的处置信息。
type ResolvePatch struct {
	Resolution string
	ResolvedBy string
	ResolvedAt int64
}

// Store 定义升级记录的持久化契约。Transition 是比较并交换语义。
type Store interface {
	Create(ctx context.Context, e *Escalation) error
	Get(ctx context.Context, id string) (*Escalation, error)
	List(ctx context.Context, filter ListFilter) ([]*Escalation, error)
	Transition(ctx context.Context, id string, sources []Status, target Status, patch ResolvePatch) (*Escalation, error)
	Close() error
}
