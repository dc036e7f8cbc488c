package state

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"AgentPlane/internal/audit"
	xerrors "AgentPlane/internal/errors"
)

// PutRequest 描述一次状态写入。TTLSeconds 大于 0 时条目在该时长后
// 过期。
type PutRequest struct {
	ComponentName string         `json:"component_name"`
	StateKey      string         `json:"state_key"`
	StateValue    map[string]any `json:"state_value"`
	AgentID       string         `json:"agent_id,omitempty"`
	TTLSeconds    int64          `json:"ttl_seconds,omitempty"`
}

// Service 提供状态存储的业务入口。审计事件只记录 component 与
// key，绝不记录值本身。
type Service struct {
	store Store
	trail *audit.Trail
}

// NewService 构造状态服务。trail 允许为 nil。
func NewService(store Store, trail *audit.Trail) *Service {
	return &Service{store: store, trail: trail}
}

// Put 以后写者胜的语义覆盖 (component, key) 下的状态。
func (s *Service) Put(ctx context.Context, req PutRequest) (*Entry, error) {
	component := strings.TrimSpace(req.ComponentName)
	key := strings.TrimSpace(req.StateKey)
	if component == "" || key == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "component_name and state_key are required")
	}
	if req.StateValue == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "state_value is required")
	}
	if req.TTLSeconds < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "ttl_seconds must not be negative")
	}

	now := time.Now().Unix()
	entry := &Entry{
		ID:            uuid.NewString(),
		ComponentName: component,
		StateKey:      key,
		StateValue:    req.StateValue,
		AgentID:       req.AgentID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.TTLSeconds > 0 {
		entry.ExpiresAt = now + req.TTLSeconds
	}
	if err := s.store.Put(ctx, entry); err != nil {
		return nil, err
	}
	// 覆盖写会保留首次创建的身份，回读拿到权威版本。
	stored, err := s.store.Get(ctx, component, key)
	if err == nil {
		entry = stored
	}

	s.trail.Record(ctx, audit.Event{
		Actor:        req.AgentID,
		Action:       "state_write",
		ResourceType: "state",
		ResourceID:   component + "/" + key,
		Details:      map[string]any{"component_name": component, "state_key": key},
	})
	return entry, nil
}

// Get 读取单个状态条目，过期条目等同不存在。
func (s *Service) Get(ctx context.Context, component, key string) (*Entry, error) {
	if component == "" || key == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "component_name and state_key are required")
	}
	return s.store.Get(ctx, component, key)
}

// GetAll 返回一个组件下所有存活的状态条目。
func (s *Service) GetAll(ctx context.Context, component string) ([]*Entry, error) {
	if component == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "component_name is required")
	}
	return s.store.GetAll(ctx, component)
}

// Delete 幂等删除一个状态条目。
func (s *Service) Delete(ctx context.Context, component, key string) error {
	if component == "" || key == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "component_name and state_key are required")
	}
	if err := s.store.Delete(ctx, component, key); err != nil {
		return err
	}
	s.trail.Record(ctx, audit.Event{
		Action:       "state_delete",
		ResourceType: "state",
		ResourceID:   component + "/" + key,
		Details:      map[string]any{"component_name": component, "state_key": key},
	})
	return nil
}
