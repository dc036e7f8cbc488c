package audit

import (
	"context"

	"AgentPlane/pkg/logger"
)

// SlogRecorder 把审计事件写到独立的审计日志文件（见 pkg/logger 的
// Audit 通道），是默认启用的落点。
type SlogRecorder struct{}

// NewSlogRecorder 构造日志落点。
func NewSlogRecorder() *SlogRecorder {
	return &SlogRecorder{}
}

func (r *SlogRecorder) Record(_ context.Context, event Event) error {
	logger.Audit().Info(event.Action,
		"event_id", event.ID,
		"actor", event.Actor,
		"resource_type", event.ResourceType,
		"resource_id", event.ResourceID,
		"details", event.Details,
		"occurred_at", event.OccurredAt,
	)
	return nil
}

func (r *SlogRecorder) Close() error { return nil }
