package state

import "context"

// Store 定义状态存储的持久化契约。Put 是按 (component, key) 的
// 整体覆盖写，后写者胜；Get 与 GetAll 绝不返回已过期的条目。
type Store interface {
	Put(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, component, key string) (*Entry, error)
	GetAll(ctx context.Context, component string) ([]*Entry, error)
	// Delete 幂等：键不存在时也返回成功。
	Delete(ctx context.Context, component, key string) error
	Close() error
}
