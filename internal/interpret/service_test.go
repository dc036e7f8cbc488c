package interpret

import (
	"context"
	"testing"

	xerrors "AgentPlane/internal/errors"
	"AgentPlane/internal/llm"
	"AgentPlane/internal/llm/static"
)

type fixedClient struct {
	outcome *llm.Outcome
	err     error
}

func (c *fixedClient) Interpret(context.Context, llm.Request) (*llm.Outcome, error) {
	return c.outcome, c.err
}

func TestInterpretValidation(t *testing.T) {
	interpreter := NewInterpreter(static.NewClient(), 0)
	ctx := context.Background()

	if _, err := interpreter.Interpret(ctx, Request{Schema: map[string]any{"a": "string"}}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument without data, got %v", err)
	}
	if _, err := interpreter.Interpret(ctx, Request{Data: "x"}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument without schema, got %v", err)
	}
	bad := 1.5
	if _, err := interpreter.Interpret(ctx, Request{
		Data:                "x",
		Schema:              map[string]any{"a": "string"},
		ConfidenceThreshold: &bad,
	}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for out-of-range threshold, got %v", err)
	}
}

func TestInterpretHighConfidencePasses(t *testing.T) {
	interpreter := NewInterpreter(&fixedClient{outcome: &llm.Outcome{
		NormalizedData: map[string]any{"order_id": "A-17"},
		Confidence:     map[string]float64{"order_id": 0.95},
	}}, 0)

	result, err := interpreter.Interpret(context.Background(), Request{
		Data:   "order A-17 arrived broken",
		Schema: map[string]any{"order_id": "string"},
	})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if result.ShouldEscalate {
		t.Fatalf("high confidence must not escalate: %+v", result)
	}
	if result.OverallConfidence != 0.95 {
		t.Fatalf("unexpected overall confidence %v", result.OverallConfidence)
	}
	if result.MissingFields == nil {
		t.Fatalf("missing_fields must be non-nil for JSON clients")
	}
}

func TestInterpretLowConfidenceEscalates(t *testing.T) {
	interpreter := NewInterpreter(&fixedClient{outcome: &llm.Outcome{
		NormalizedData: map[string]any{"order_id": nil},
		Confidence:     map[string]float64{"order_id": 0.2},
		MissingFields:  []string{"order_id"},
	}}, 0)

	result, err := interpreter.Interpret(context.Background(), Request{
		Data:   "no idea",
		Schema: map[string]any{"order_id": "string"},
	})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if !result.ShouldEscalate {
		t.Fatalf("expected escalation: %+v", result)
	}
	if result.EscalationReason == "" {
		t.Fatalf("expected escalation reason")
	}
}

func TestStaticClientExtraction(t *testing.T) {
	interpreter := NewInterpreter(static.NewClient(), 0)

	result, err := interpreter.Interpret(context.Background(), Request{
		Data:   map[string]any{"customer": "Ada", "order_id": "A-17"},
		Schema: map[string]any{"customer": "string", "order_id": "string", "issue": "string"},
	})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if result.Data["customer"] != "Ada" {
		t.Fatalf("expected structured extraction, got %+v", result.Data)
	}
	if !result.ShouldEscalate {
		t.Fatalf("missing issue field must force escalation")
	}
}
