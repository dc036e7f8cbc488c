package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"AgentPlane/internal/audit"
	xerrors "AgentPlane/internal/errors"
	"AgentPlane/pkg/logger"
)

// CreateRequest 描述一次工作流版本的创建。Version 为 0 时由服务
// 自动分配下一个版本号。Definition 是不透明文本，控制面不解析。
type CreateRequest struct {
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	Definition        string         `json:"definition"`
	DesignedByAgentID string         `json:"designed_by_agent_id,omitempty"`
	DesignedWithModel string         `json:"designed_with_model,omitempty"`
	ExecutableByModel string         `json:"executable_by_model,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Version           int            `json:"version,omitempty"`
	IsActive          *bool          `json:"is_active,omitempty"`
}

// Service 提供工作流定义的业务入口。
type Service struct {
	store Store
	trail *audit.Trail
}

// NewService 构造工作流服务。trail 允许为 nil。
func NewService(store Store, trail *audit.Trail) *Service {
	return &Service{store: store, trail: trail}
}

// Create 写入一个新的工作流版本。自动分配版本号时对并发冲突做
// 有限次重试，显式指定版本号时冲突直接返回 CONFLICT。
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Definition, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "workflow name is required")
	}
	if strings.TrimSpace(req.Definition) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "workflow definition is required")
	}
	if req.Version < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "workflow version must be positive")
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	autoVersion := req.Version == 0
	attempts := 1
	if autoVersion {
		attempts = 3
	}
	for attempt := 0; attempt < attempts; attempt++ {
		version := req.Version
		if autoVersion {
			next, err := s.store.NextVersion(ctx, name)
			if err != nil {
				return nil, err
			}
			version = next
		}

		now := time.Now().Unix()
		def := &Definition{
			ID:                uuid.NewString(),
			Name:              name,
			Description:       req.Description,
			Version:           version,
			Definition:        req.Definition,
			DesignedByAgentID: req.DesignedByAgentID,
			DesignedWithModel: req.DesignedWithModel,
			ExecutableByModel: req.ExecutableByModel,
			Metadata:          req.Metadata,
			IsActive:          active,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		err := s.store.Create(ctx, def)
		if err == nil {
			logger.L().Info("workflow created", "workflow_id", def.ID, "name", def.Name, "version", def.Version)
			s.trail.Record(ctx, audit.Event{
				Action:       "workflow_create",
				ResourceType: "workflow",
				ResourceID:   def.ID,
				Details:      map[string]any{"name": def.Name, "version": def.Version},
			})
			return def, nil
		}
		if autoVersion && errors.Is(err, ErrWorkflowConflict) {
			continue
		}
		return nil, err
	}
	return nil, ErrWorkflowConflict
}

// Get 按 ID 查询工作流。
func (s *Service) Get(ctx context.Context, id string) (*Definition, error) {
	return s.store.Get(ctx, id)
}

// Latest 返回同名工作流的最新版本。
func (s *Service) Latest(ctx context.Context, name string) (*Definition, error) {
	return s.store.Latest(ctx, name)
}

// GetVersion 返回指定的历史版本。
func (s *Service) GetVersion(ctx context.Context, name string, version int) (*Definition, error) {
	return s.store.GetVersion(ctx, name, version)
}

// List 返回符合过滤条件的工作流。
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Definition, error) {
	return s.store.List(ctx, filter)
}

// SetActive 切换激活标记并记录审计事件。
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Definition, error) {
	def, err := s.store.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	action := "workflow_deactivate"
	if active {
		action = "workflow_activate"
	}
	s.trail.Record(ctx, audit.Event{
		Action:       action,
		ResourceType: "workflow",
		ResourceID:   def.ID,
		Details:      map[string]any{"name": def.Name, "version": def.Version},
	})
	return def, nil
}

// Exists 判断给定 ID 的工作流是否存在，供执行模块做引用校验。
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
