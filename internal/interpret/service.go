package interpret

import (
	"context"
	"time"

	xerrors "AgentPlane/internal/errors"
	"AgentPlane/internal/llm"
	"AgentPlane/pkg/logger"
)

// DefaultThreshold 是未显式指定时使用的置信度阈值。
const DefaultThreshold = 0.7

// Request 描述一次解释请求。Data 与 Schema 必填。
type Request struct {
	Data                any            `json:"data"`
	Schema              map[string]any `json:"schema"`
	Context             string         `json:"context,omitempty"`
	ConfidenceThreshold *float64       `json:"confidence_threshold,omitempty"`
}

// Result 是解释请求的完整响应：规整后的数据加上闸门判定。
type Result struct {
	Data              map[string]any     `json:"data"`
	Confidence        map[string]float64 `json:"confidence"`
	OverallConfidence float64            `json:"overall_confidence"`
	MissingFields     []string           `json:"missing_fields"`
	Notes             string             `json:"notes,omitempty"`
	ShouldEscalate    bool               `json:"should_escalate"`
	EscalationReason  string             `json:"escalation_reason,omitempty"`
}

// Interpreter 把大模型的抽取结果过一道置信度闸门。
type Interpreter struct {
	client  llm.Client
	timeout time.Duration
}

// NewInterpreter 构造解释服务。timeout 为 0 时取 30 秒。
func NewInterpreter(client llm.Client, timeout time.Duration) *Interpreter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Interpreter{client: client, timeout: timeout}
}

// Interpret 调用大模型抽取数据并按阈值判定是否升级。
func (i *Interpreter) Interpret(ctx context.Context, req Request) (*Result, error) {
	if req.Data == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "data is required")
	}
	if len(req.Schema) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "schema is required")
	}
	threshold := DefaultThreshold
	if req.ConfidenceThreshold != nil {
		threshold = *req.ConfidenceThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "confidence_threshold must be within [0, 1]",
			xerrors.WithMetadata(map[string]any{"confidence_threshold": threshold}))
	}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	outcome, err := i.client.Interpret(callCtx, llm.Request{
		Data:    req.Data,
		Schema:  req.Schema,
		Context: req.Context,
	})
	if err != nil {
		if callCtx.Err() != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeTimeout, "interpret call timed out")
		}
		return nil, xerrors.Wrap(err, xerrors.CodeInterpretFailure, "interpret call failed")
	}

	decision := Evaluate(outcome.Confidence, outcome.MissingFields, threshold)
	logger.L().Info("interpret evaluated",
		"overall_confidence", decision.OverallConfidence,
		"should_escalate", decision.ShouldEscalate,
		"missing_fields", len(outcome.MissingFields),
	)

	missing := outcome.MissingFields
	if missing == nil {
		missing = []string{}
	}
	return &Result{
		Data:              outcome.NormalizedData,
		Confidence:        outcome.Confidence,
		OverallConfidence: decision.OverallConfidence,
		MissingFields:     missing,
		Notes:             outcome.Notes,
		ShouldEscalate:    decision.ShouldEscalate,
		EscalationReason:  decision.EscalationReason,
	}, nil
}
