package workflow

import "context"

// ListFilter 约束 List 的返回范围。零值表示不过滤。
type ListFilter struct {
	Name       string
	ActiveOnly bool
}

// Store 定义工作流定义的持久化契约。
type Store interface {
	// Create 持久化一个新版本。(name, version) 冲突时返回 CONFLICT。
	Create(ctx context.Context, def *Definition) error
	// Get 按 ID 查询，不存在时返回 NOT_FOUND。
	Get(ctx context.Context, id string) (*Definition, error)
	// Latest 返回同名工作流的最高版本，不存在时返回 NOT_FOUND。
	Latest(ctx context.Context, name string) (*Definition, error)
	// GetVersion 返回指定版本，不存在时返回 NOT_FOUND。
	GetVersion(ctx context.Context, name string, version int) (*Definition, error)
	// NextVersion 返回 name 下一个可用的版本号，从 1 开始。
	NextVersion(ctx context.Context, name string) (int, error)
	// List 返回符合过滤条件的工作流，按名称与版本排序。
	List(ctx context.Context, filter ListFilter) ([]*Definition, error)
	// SetActive 切换激活标记，不存在时返回 NOT_FOUND。
	SetActive(ctx context.Context, id string, active bool) (*Definition, error)
	// Close 释放底层资源。
	Close() error
}
