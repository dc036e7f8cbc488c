package audit

import (
	"context"

	"github.com/google/uuid"

	"AgentPlane/pkg/logger"
)

// Trail 将事件扇出到所有配置的落点。任何落点失败都只记日志，
// 调用方无需也无法感知失败。
type Trail struct {
	recorders []Recorder
}

// NewTrail 组合若干落点为一条审计链。允许传入零个落点。
func NewTrail(recorders ...Recorder) *Trail {
	return &Trail{recorders: recorders}
}

// Record 补全事件元信息后写入所有落点。nil Trail 可安全调用。
func (t *Trail) Record(ctx context.Context, event Event) {
	if t == nil {
		return
	}
	event = stamp(event)
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	for _, recorder := range t.recorders {
		if err := recorder.Record(ctx, event); err != nil {
			logger.L().Error("audit record failed",
				"action", event.Action,
				"resource_type", event.ResourceType,
				"resource_id", event.ResourceID,
				"error", err,
			)
		}
	}
}

// Close 依次关闭所有落点，返回遇到的第一个错误。
func (t *Trail) Close() error {
	if t == nil {
		return nil
	}
	var first error
	for _, recorder := range t.recorders {
		if err := recorder.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
