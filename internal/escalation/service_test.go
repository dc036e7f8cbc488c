package escalation

import (
	"context"
	"sync"
	"testing"

	"AgentPlane/internal/audit"
	xerrors "AgentPlane/internal/errors"
	"AgentPlane/internal/observability/alerting"
)

type captureDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (d *captureDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func newTestService(t *testing.T) (*Service, *captureDispatcher) {
	t.Helper()
	dispatcher := &captureDispatcher{}
	service := NewService(NewMemoryStore(), audit.NewTrail(audit.NewMemoryRecorder()), dispatcher)
	return service, dispatcher
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Create(ctx, CreateRequest{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for empty reason, got %v", err)
	}
	if _, err := service.Create(ctx, CreateRequest{Reason: "x", Priority: "critical"}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for unknown priority, got %v", err)
	}

	e, err := service.Create(ctx, CreateRequest{Reason: "ambiguous input"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.Status != StatusOpen {
		t.Fatalf("expected open, got %q", e.Status)
	}
	if e.Priority != PriorityMedium {
		t.Fatalf("expected default priority medium, got %q", e.Priority)
	}
}

func TestHighPriorityDispatchesAlert(t *testing.T) {
	service, dispatcher := newTestService(t)
	ctx := context.Background()

	if _, err := service.Create(ctx, CreateRequest{Reason: "low stakes", Priority: PriorityLow}); err != nil {
		t.Fatalf("create low: %v", err)
	}
	urgent, err := service.Create(ctx, CreateRequest{Reason: "payment stuck", Priority: PriorityUrgent, AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("create urgent: %v", err)
	}

	if len(dispatcher.events) != 1 {
		t.Fatalf("expected 1 alert for urgent escalation, got %d", len(dispatcher.events))
	}
	if dispatcher.events[0].EscalationID != urgent.ID {
		t.Fatalf("alert references wrong escalation: %+v", dispatcher.events[0])
	}
}

func TestResolutionRequiredOnTerminal(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	e, err := service.Create(ctx, CreateRequest{Reason: "ambiguous input"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := service.Transition(ctx, e.ID, TransitionRequest{Status: StatusResolved}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument without resolution, got %v", err)
	}

	resolved, err := service.Transition(ctx, e.ID, TransitionRequest{
		Status:     StatusResolved,
		Resolution: "approved",
		ResolvedBy: "operator@example.com",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ResolvedAt == 0 {
		t.Fatalf("expected resolved_at to be stamped")
	}
	if resolved.Resolution != "approved" || resolved.ResolvedBy != "operator@example.com" {
		t.Fatalf("resolution fields not persisted: %+v", resolved)
	}
}

func TestLifecyclePaths(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	// open -> in_progress -> dismissed
	e, err := service.Create(ctx, CreateRequest{Reason: "needs triage"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Transition(ctx, e.ID, TransitionRequest{Status: StatusInProgress}); err != nil {
		t.Fatalf("to in_progress: %v", err)
	}
	dismissed, err := service.Transition(ctx, e.ID, TransitionRequest{
		Status:     StatusDismissed,
		Resolution: "duplicate of another escalation",
	})
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if dismissed.Status != StatusDismissed {
		t.Fatalf("expected dismissed, got %q", dismissed.Status)
	}

	// 终态不可重开。
	if _, err := service.Transition(ctx, e.ID, TransitionRequest{Status: StatusInProgress}); xerrors.CodeOf(err) != xerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition out of dismissed, got %v", err)
	}

	// open 可以直接终结。
	direct, err := service.Create(ctx, CreateRequest{Reason: "obvious false positive"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Transition(ctx, direct.ID, TransitionRequest{
		Status:     StatusResolved,
		Resolution: "auto-resolved",
	}); err != nil {
		t.Fatalf("direct resolve: %v", err)
	}
}
