package handoff

import "context"

// ListFilter 约束 List 的返回范围。零值表示不过滤。
type ListFilter struct {
	ToAgentID   string
	FromAgentID string
	Status      Status
	Limit       int
}

// StampPatch 是状态转移时一并写入的时间戳。
type StampPatch struct {
	AcceptedAt  int64
	CompletedAt int64
}

// Store 定义交接记录的持久化契约。Transition 是比较并交换语义：
// 同一条 pending 交接的两次并发 accept 只有一次能成功。
type Store interface {
	Create(ctx context.Context, h *Handoff) error
	Get(ctx context.Context, id string) (*Handoff, error)
	List(ctx context.Context, filter ListFilter) ([]*Handoff, error)
	Transition(ctx context.Context, id string, sources []Status, target Status, patch StampPatch) (*Handoff, error)
	Close() error
}
