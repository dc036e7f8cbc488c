package agents

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"AgentPlane/internal/audit"
	xerrors "AgentPlane/internal/errors"
	"AgentPlane/pkg/logger"
)

// RegisterRequest 描述一次智能体注册。
type RegisterRequest struct {
	Name         string         `json:"name"`
	Framework    string         `json:"framework,omitempty"`
	Description  string         `json:"description,omitempty"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	Status       Status         `json:"status,omitempty"`
}

// Service 提供智能体注册表的业务入口。
type Service struct {
	store Store
	trail *audit.Trail
}

// NewService 构造注册表服务。trail 允许为 nil。
func NewService(store Store, trail *audit.Trail) *Service {
	return &Service{store: store, trail: trail}
}

// Register 注册一个新的智能体。名称必填且全局唯一。
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Agent, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent name is required")
	}
	status := req.Status
	if status == "" {
		status = StatusActive
	}
	if !IsValidStatus(status) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "unsupported agent status",
			xerrors.WithMetadata(map[string]any{"status": string(status)}))
	}

	now := time.Now().Unix()
	agent := &Agent{
		ID:           uuid.NewString(),
		Name:         name,
		Framework:    req.Framework,
		Description:  req.Description,
		Capabilities: req.Capabilities,
		Config:       req.Config,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSeen:     now,
	}
	if err := s.store.Create(ctx, agent); err != nil {
		return nil, err
	}

	logger.L().Info("agent registered", "agent_id", agent.ID, "name", agent.Name, "framework", agent.Framework)
	s.trail.Record(ctx, audit.Event{
		Actor:        agent.Name,
		Action:       "agent_register",
		ResourceType: "agent",
		ResourceID:   agent.ID,
		Details:      map[string]any{"name": agent.Name, "framework": agent.Framework},
	})
	return agent, nil
}

// Heartbeat 按名称刷新 last_seen，可顺带更新状态。
func (s *Service) Heartbeat(ctx context.Context, name string, status Status) (*Agent, error) {
	if strings.TrimSpace(name) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent name is required")
	}
	if status != "" && !IsValidStatus(status) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "unsupported agent status",
			xerrors.WithMetadata(map[string]any{"status": string(status)}))
	}
	return s.store.Touch(ctx, name, status, time.Now().Unix())
}

// Get 按 ID 查询智能体。
func (s *Service) Get(ctx context.Context, id string) (*Agent, error) {
	return s.store.Get(ctx, id)
}

// GetByName 按名称查询智能体。
func (s *Service) GetByName(ctx context.Context, name string) (*Agent, error) {
	return s.store.GetByName(ctx, name)
}

// List 返回符合过滤条件的智能体。
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Agent, error) {
	return s.store.List(ctx, filter)
}

// Exists 判断给定 ID 的智能体是否存在，供其他模块做引用校验。
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
