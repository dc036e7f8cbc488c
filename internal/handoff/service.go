package handoff

import (
	"context"
	"time"

	"github.com/google/uuid"

	"AgentPlane/internal/audit"
	xerrors "AgentPlane/internal/errors"
	"AgentPlane/pkg/logger"
)

// AgentDirectory 校验智能体引用。
type AgentDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// CreateRequest 描述一次交接的创建。Context 必填：没有上下文的
// 交接无法被接收方继续。
type CreateRequest struct {
	FromAgentID string         `json:"from_agent_id,omitempty"`
	ToAgentID   string         `json:"to_agent_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Context     map[string]any `json:"context"`
	Reason      string         `json:"reason,omitempty"`
}

// Service 提供交接协议的业务入口。
type Service struct {
	store  Store
	agents AgentDirectory
	trail  *audit.Trail
}

// NewService 构造交接服务。trail 允许为 nil。
func NewService(store Store, agents AgentDirectory, trail *audit.Trail) *Service {
	return &Service{store: store, agents: agents, trail: trail}
}

// Create 创建一条 pending 交接。给出的智能体引用必须存在。
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Handoff, error) {
	if len(req.Context) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "handoff context is required")
	}
	for field, agentID := range map[string]string{
		"from_agent_id": req.FromAgentID,
		"to_agent_id":   req.ToAgentID,
	} {
		if agentID == "" {
			continue
		}
		ok, err := s.agents.Exists(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, xerrors.New(xerrors.CodeNotFound, "agent not found",
				xerrors.WithMetadata(map[string]any{field: agentID}))
		}
	}

	now := time.Now().Unix()
	h := &Handoff{
		ID:          uuid.NewString(),
		FromAgentID: req.FromAgentID,
		ToAgentID:   req.ToAgentID,
		WorkflowID:  req.WorkflowID,
		ExecutionID: req.ExecutionID,
		Context:     req.Context,
		Reason:      req.Reason,
		Status:      Lifecycle.Initial(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, h); err != nil {
		return nil, err
	}

	logger.L().Info("handoff created",
		"handoff_id", h.ID, "from_agent_id", h.FromAgentID, "to_agent_id", h.ToAgentID)
	s.trail.Record(ctx, audit.Event{
		Actor:        req.FromAgentID,
		Action:       "handoff_pending",
		ResourceType: "handoff",
		ResourceID:   h.ID,
		Details:      map[string]any{"to_agent_id": h.ToAgentID},
	})
	return h, nil
}

// Transition 推进交接状态机。accept 是排他认领：并发的两次 accept
// 只有一次成功，输家拿到 INVALID_TRANSITION。
func (s *Service) Transition(ctx context.Context, id string, target Status, actorAgentID string) (*Handoff, error) {
	if !Lifecycle.Valid(target) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "unsupported handoff status",
			xerrors.WithMetadata(map[string]any{"status": string(target)}))
	}
	sources := Lifecycle.Sources(target)
	if len(sources) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidTransition, "handoff status has no inbound transitions",
			xerrors.WithMetadata(map[string]any{"to": string(target)}))
	}

	now := time.Now().Unix()
	patch := StampPatch{}
	switch target {
	case StatusAccepted:
		patch.AcceptedAt = now
	case StatusCompleted:
		patch.CompletedAt = now
	}

	h, err := s.store.Transition(ctx, id, sources, target, patch)
	if err != nil {
		return nil, err
	}

	logger.L().Info("handoff transitioned",
		"handoff_id", h.ID, "status", string(h.Status), "actor_agent_id", actorAgentID)
	s.trail.Record(ctx, audit.Event{
		Actor:        actorAgentID,
		Action:       "handoff_" + string(target),
		ResourceType: "handoff",
		ResourceID:   h.ID,
		Details:      map[string]any{"from_agent_id": h.FromAgentID, "to_agent_id": h.ToAgentID},
	})
	return h, nil
}

// Get 按 ID 查询交接记录。
func (s *Service) Get(ctx context.Context, id string) (*Handoff, error) {
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的交接记录。
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Handoff, error) {
	return s.store.List(ctx, filter)
}

// Exists 判断给定 ID 的交接是否存在，供其他模块做引用校验。
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.store.Get(ctx, id)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
