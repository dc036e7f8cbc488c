package escalation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"AgentPlane/internal/audit"
	xerrors "AgentPlane/internal/errors"
	"AgentPlane/internal/observability/alerting"
	"AgentPlane/pkg/logger"
)

// CreateRequest 描述一次升级的创建。Reason 必填。
type CreateRequest struct {
	Reason      string         `json:"reason"`
	Priority    Priority       `json:"priority,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	HandoffID   string         `json:"handoff_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	AssignedTo  string         `json:"assigned_to,omitempty"`
}

// TransitionRequest 描述一次状态转移。终态必须带 resolution。
type TransitionRequest struct {
	Status     Status `json:"status"`
	Resolution string `json:"resolution,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// Service 提供升级生命周期的业务入口。高优先级升级创建时会
// 通过告警渠道广播。
type Service struct {
	store      Store
	trail      *audit.Trail
	dispatcher alerting.Dispatcher
}

// NewService 构造升级服务。trail 与 dispatcher 都允许为 nil。
func NewService(store Store, trail *audit.Trail, dispatcher alerting.Dispatcher) *Service {
	return &Service{store: store, trail: trail, dispatcher: dispatcher}
}

// Create 创建一条 open 升级，优先级缺省为 medium。
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Escalation, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "escalation reason is required")
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !IsValidPriority(priority) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "unsupported escalation priority",
			xerrors.WithMetadata(map[string]any{"priority": string(priority)}))
	}

	now := time.Now().Unix()
	e := &Escalation{
		ID:          uuid.NewString(),
		AgentID:     req.AgentID,
		ExecutionID: req.ExecutionID,
		HandoffID:   req.HandoffID,
		WorkflowID:  req.WorkflowID,
		Reason:      reason,
		Priority:    priority,
		Context:     req.Context,
		AssignedTo:  req.AssignedTo,
		Status:      Lifecycle.Initial(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, e); err != nil {
		return nil, err
	}

	logger.L().Info("escalation created",
		"escalation_id", e.ID, "priority", string(e.Priority), "agent_id", e.AgentID)
	s.trail.Record(ctx, audit.Event{
		Actor:        req.AgentID,
		Action:       "escalation_open",
		ResourceType: "escalation",
		ResourceID:   e.ID,
		Details:      map[string]any{"priority": string(e.Priority)},
	})

	if s.dispatcher != nil && (priority == PriorityHigh || priority == PriorityUrgent) {
		event := alerting.Event{
			EscalationID: e.ID,
			Priority:     string(e.Priority),
			Reason:       e.Reason,
			AgentID:      e.AgentID,
			ExecutionID:  e.ExecutionID,
			OccurredAt:   time.Unix(now, 0),
		}
		if err := s.dispatcher.Notify(ctx, event); err != nil {
			logger.L().Error("escalation alert dispatch failed", "escalation_id", e.ID, "error", err)
		}
	}
	return e, nil
}

// Transition 推进升级状态机。resolved/dismissed 必须带 resolution
// 文本，并冻结 resolved_at 与 resolved_by。
func (s *Service) Transition(ctx context.Context, id string, req TransitionRequest) (*Escalation, error) {
	target := req.Status
	if !Lifecycle.Valid(target) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "unsupported escalation status",
			xerrors.WithMetadata(map[string]any{"status": string(target)}))
	}
	sources := Lifecycle.Sources(target)
	if len(sources) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidTransition, "escalation status has no inbound transitions",
			xerrors.WithMetadata(map[string]any{"to": string(target)}))
	}

	patch := ResolvePatch{}
	if Lifecycle.Terminal(target) {
		if strings.TrimSpace(req.Resolution) == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "resolution is required for terminal escalation status",
				xerrors.WithMetadata(map[string]any{"status": string(target)}))
		}
		patch = ResolvePatch{
			Resolution: req.Resolution,
			ResolvedBy: req.ResolvedBy,
			ResolvedAt: time.Now().Unix(),
		}
	}

	e, err := s.store.Transition(ctx, id, sources, target, patch)
	if err != nil {
		return nil, err
	}

	logger.L().Info("escalation transitioned",
		"escalation_id", e.ID, "status", string(e.Status), "resolved_by", e.ResolvedBy)
	s.trail.Record(ctx, audit.Event{
		Actor:        req.ResolvedBy,
		Action:       "escalation_" + string(target),
		ResourceType: "escalation",
		ResourceID:   e.ID,
		Details:      map[string]any{"priority": string(e.Priority)},
	})
	return e, nil
}

// Get 按 ID 查询升级记录。
func (s *Service) Get(ctx context.Context, id string) (*Escalation, error) {
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的升级记录。
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Escalation, error) {
	return s.store.List(ctx, filter)
}
