package execution

import (
	"context"
	"time"

	"github.com/google/uuid"

	"AgentPlane/internal/audit"
	xerrors "AgentPlane/internal/errors"
	"AgentPlane/pkg/logger"
)

// WorkflowCatalog 校验工作流引用。
type WorkflowCatalog interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// AgentDirectory 校验智能体引用。
type AgentDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// CreateRequest 描述一次执行的创建。
type CreateRequest struct {
	WorkflowID        string         `json:"workflow_id"`
	AgentID           string         `json:"agent_id,omitempty"`
	ExecutedWithModel string         `json:"executed_with_model,omitempty"`
	InputData         map[string]any `json:"input_data,omitempty"`
}

// TransitionRequest 描述一次状态转移。输出、错误与成本只在目标
// 是终态时允许出现。
type TransitionRequest struct {
	Status       Status         `json:"status"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CostEstimate float64        `json:"cost_estimate,omitempty"`
}

// Service 提供执行生命周期的业务入口。
type Service struct {
	store     Store
	workflows WorkflowCatalog
	agents    AgentDirectory
	trail     *audit.Trail
}

// NewService 构造执行服务。trail 允许为 nil。
func NewService(store Store, workflows WorkflowCatalog, agents AgentDirectory, trail *audit.Trail) *Service {
	return &Service{store: store, workflows: workflows, agents: agents, trail: trail}
}

// Create 创建一条 pending 执行记录。工作流引用必须存在，智能体
// 引用可选但给出时必须存在。
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Execution, error) {
	if req.WorkflowID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "workflow_id is required")
	}
	ok, err := s.workflows.Exists(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "workflow not found",
			xerrors.WithMetadata(map[string]any{"workflow_id": req.WorkflowID}))
	}
	if req.AgentID != "" {
		ok, err := s.agents.Exists(ctx, req.AgentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, xerrors.New(xerrors.CodeNotFound, "agent not found",
				xerrors.WithMetadata(map[string]any{"agent_id": req.AgentID}))
		}
	}

	now := time.Now().Unix()
	exec := &Execution{
		ID:                uuid.NewString(),
		WorkflowID:        req.WorkflowID,
		AgentID:           req.AgentID,
		ExecutedWithModel: req.ExecutedWithModel,
		Status:            Lifecycle.Initial(),
		InputData:         req.InputData,
		StartedAt:         now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, exec); err != nil {
		return nil, err
	}

	logger.L().Info("execution created",
		"execution_id", exec.ID, "workflow_id", exec.WorkflowID, "agent_id", exec.AgentID)
	s.trail.Record(ctx, audit.Event{
		Actor:        req.AgentID,
		Action:       "execution_pending",
		ResourceType: "execution",
		ResourceID:   exec.ID,
		Details:      map[string]any{"workflow_id": exec.WorkflowID},
	})
	return exec, nil
}

// Transition 推进执行状态机。进入终态时由存储层冻结 completed_at
// 与 duration_seconds。
func (s *Service) Transition(ctx context.Context, id string, req TransitionRequest) (*Execution, error) {
	target := req.Status
	if !Lifecycle.Valid(target) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "unsupported execution status",
			xerrors.WithMetadata(map[string]any{"status": string(target)}))
	}
	terminal := Lifecycle.Terminal(target)
	if !terminal && (req.OutputData != nil || req.ErrorMessage != "" || req.CostEstimate != 0) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "output fields are only allowed on terminal transitions")
	}

	sources := Lifecycle.Sources(target)
	if len(sources) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidTransition, "execution status has no inbound transitions",
			xerrors.WithMetadata(map[string]any{"to": string(target)}))
	}

	patch := TerminalPatch{}
	if terminal {
		patch = TerminalPatch{
			OutputData:   req.OutputData,
			ErrorMessage: req.ErrorMessage,
			CostEstimate: req.CostEstimate,
			CompletedAt:  time.Now().Unix(),
		}
	}
	exec, err := s.store.Transition(ctx, id, sources, target, patch)
	if err != nil {
		return nil, err
	}

	logger.L().Info("execution transitioned",
		"execution_id", exec.ID, "status", string(exec.Status), "duration_seconds", exec.DurationSeconds)
	s.trail.Record(ctx, audit.Event{
		Actor:        exec.AgentID,
		Action:       "execution_" + string(target),
		ResourceType: "execution",
		ResourceID:   exec.ID,
		Details:      map[string]any{"workflow_id": exec.WorkflowID},
	})
	return exec, nil
}

// Get 按 ID 查询执行记录。
func (s *Service) Get(ctx context.Context, id string) (*Execution, error) {
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的执行记录。
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Execution, error) {
	return s.store.List(ctx, filter)
}

// Stats 返回执行记录的聚合视图，失败率在这里统一计算。
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.ErrorRate = float64(stats.ByStatus[StatusFailed]) / float64(stats.Total)
	}
	return stats, nil
}

// Exists 判断给定 ID 的执行是否存在，供其他模块做引用校验。
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
