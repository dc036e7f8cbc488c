package agents

import "context"

// ListFilter 约束 List 的返回范围。零值表示不过滤。
type ListFilter struct {
	Status    Status
	Framework string
}

// Store 定义智能体注册表的持久化契约。
type Store interface {
	// Create 持久化一个新的智能体。名称冲突时返回 CONFLICT。
	Create(ctx context.Context, agent *Agent) error
	// Get 按 ID 查询智能体，不存在时返回 NOT_FOUND。
	Get(ctx context.Context, id string) (*Agent, error)
	// GetByName 按名称查询智能体，不存在时返回 NOT_FOUND。
	GetByName(ctx context.Context, name string) (*Agent, error)
	// List 返回符合过滤条件的智能体，按注册时间倒序。
	List(ctx context.Context, filter ListFilter) ([]*Agent, error)
	// Touch 更新 last_seen 与可选的状态。不存在时返回 NOT_FOUND。
	Touch(ctx context.Context, name string, status Status, seenAt int64) (*Agent, error)
	// Close 释放底层资源。
	Close() error
}
