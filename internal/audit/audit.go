// Package audit 记录控制面的生命周期事件。事件写入是尽力而为的:
// 记录失败只会产生一条错误日志，绝不会回滚已经完成的状态变更。
package audit

import (
	"context"
	"time"
)

// Event 描述一次已经发生的控制面动作。Details 只允许携带
// 标识类信息，状态写入事件只记录 component 与 key，不记录值。
type Event struct {
	ID           string         `json:"id,omitempty"`
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details,omitempty"`
	OccurredAt   int64          `json:"occurred_at"`
}

// Recorder 是单个审计落点的契约。实现必须可以并发调用。
type Recorder interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

// Filter 约束审计查询的范围，零值表示不过滤。
type Filter struct {
	ResourceType string
	ResourceID   string
	Action       string
	Limit        int
}

// Reader 由支持回查的落点实现（内存与 MySQL），日志与消息
// 队列落点只写不读。
type Reader interface {
	Query(ctx context.Context, filter Filter) ([]Event, error)
}

func stamp(event Event) Event {
	if event.OccurredAt == 0 {
		event.OccurredAt = time.Now().Unix()
	}
	if event.Actor == "" {
		event.Actor = "system"
	}
	return event
}
