package execution

import (
	"context"
	"errors"
	"testing"

	"AgentPlane/internal/audit"
	xerrors "AgentPlane/internal/errors"
)

type staticCatalog map[string]bool

func (c staticCatalog) Exists(_ context.Context, id string) (bool, error) {
	return c[id], nil
}

func newTestService(t *testing.T) (*Service, *audit.MemoryRecorder) {
	t.Helper()
	recorder := audit.NewMemoryRecorder()
	service := NewService(NewMemoryStore(),
		staticCatalog{"wf-triage": true},
		staticCatalog{"agent-1": true},
		audit.NewTrail(recorder))
	return service, recorder
}

func TestTriageScenario(t *testing.T) {
	service, recorder := newTestService(t)
	ctx := context.Background()

	exec, err := service.Create(ctx, CreateRequest{
		WorkflowID: "wf-triage",
		AgentID:    "agent-1",
		InputData:  map[string]any{"ticket": "T-42"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if exec.Status != StatusPending {
		t.Fatalf("expected pending, got %q", exec.Status)
	}
	if exec.StartedAt == 0 {
		t.Fatalf("expected started_at to be stamped")
	}

	running, err := service.Transition(ctx, exec.ID, TransitionRequest{Status: StatusRunning})
	if err != nil {
		t.Fatalf("transition to running: %v", err)
	}
	if running.Status != StatusRunning {
		t.Fatalf("expected running, got %q", running.Status)
	}

	done, err := service.Transition(ctx, exec.ID, TransitionRequest{
		Status:     StatusCompleted,
		OutputData: map[string]any{"ok": true},
	})
	if err != nil {
		t.Fatalf("transition to completed: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", done.Status)
	}
	if done.CompletedAt == 0 {
		t.Fatalf("expected completed_at to be stamped")
	}
	if done.DurationSeconds != done.CompletedAt-done.StartedAt {
		t.Fatalf("duration %d does not match completed_at-started_at %d",
			done.DurationSeconds, done.CompletedAt-done.StartedAt)
	}
	if done.DurationSeconds < 0 {
		t.Fatalf("duration must be non-negative")
	}
	if done.OutputData["ok"] != true {
		t.Fatalf("expected output to be persisted, got %+v", done.OutputData)
	}

	var actions []string
	for _, event := range recorder.Events() {
		actions = append(actions, event.Action)
	}
	want := []string{"execution_pending", "execution_running", "execution_completed"}
	if len(actions) != len(want) {
		t.Fatalf("expected %d audit events, got %v", len(want), actions)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("expected audit action %q at %d, got %q", want[i], i, actions[i])
		}
	}
}

func TestCreateValidatesReferences(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Create(ctx, CreateRequest{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for missing workflow_id, got %v", err)
	}
	if _, err := service.Create(ctx, CreateRequest{WorkflowID: "missing"}); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown workflow, got %v", err)
	}
	if _, err := service.Create(ctx, CreateRequest{WorkflowID: "wf-triage", AgentID: "ghost"}); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown agent, got %v", err)
	}
}

func TestTransitionGuards(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	exec, err := service.Create(ctx, CreateRequest{WorkflowID: "wf-triage"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// pending 不能直接进入终态。
	if _, err := service.Transition(ctx, exec.ID, TransitionRequest{Status: StatusCompleted}); xerrors.CodeOf(err) != xerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition for pending->completed, got %v", err)
	}
	if _, err := service.Transition(ctx, exec.ID, TransitionRequest{Status: "cancelled"}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for unknown status, got %v", err)
	}
	if _, err := service.Transition(ctx, exec.ID, TransitionRequest{Status: StatusPending}); xerrors.CodeOf(err) != xerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition into initial state, got %v", err)
	}
	if _, err := service.Transition(ctx, exec.ID, TransitionRequest{
		Status:     StatusRunning,
		OutputData: map[string]any{"ok": true},
	}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for output on non-terminal transition, got %v", err)
	}
	if _, err := service.Transition(ctx, "missing", TransitionRequest{Status: StatusRunning}); !errors.Is(err, ErrExecutionNotFound) {
		t.Fatalf("expected not found for unknown execution, got %v", err)
	}
}

func TestRejectedTransitionNamesCurrentStatus(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	exec, err := service.Create(ctx, CreateRequest{WorkflowID: "wf-triage"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = service.Transition(ctx, exec.ID, TransitionRequest{Status: StatusCompleted})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition for pending->completed, got %v", err)
	}
	wrapped, ok := xerrors.From(err)
	if !ok {
		t.Fatalf("expected structured error, got %v", err)
	}
	meta := wrapped.Metadata()
	if meta["from"] != string(StatusPending) || meta["to"] != string(StatusCompleted) {
		t.Fatalf("rejection must name the actual transition, got %v", meta)
	}
	if meta["allowed"] != string(StatusRunning) {
		t.Fatalf("rejection must list reachable statuses, got %q", meta["allowed"])
	}
}

func TestTerminalStatesAreFrozen(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	exec, err := service.Create(ctx, CreateRequest{WorkflowID: "wf-triage"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Transition(ctx, exec.ID, TransitionRequest{Status: StatusRunning}); err != nil {
		t.Fatalf("to running: %v", err)
	}
	failed, err := service.Transition(ctx, exec.ID, TransitionRequest{
		Status:       StatusFailed,
		ErrorMessage: "timeout talking to upstream",
	})
	if err != nil {
		t.Fatalf("to failed: %v", err)
	}
	if failed.ErrorMessage == "" {
		t.Fatalf("expected error message to be persisted")
	}

	if _, err := service.Transition(ctx, exec.ID, TransitionRequest{Status: StatusRunning}); xerrors.CodeOf(err) != xerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition out of terminal state, got %v", err)
	}

	got, err := service.Get(ctx, exec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.CompletedAt != failed.CompletedAt {
		t.Fatalf("terminal record must stay frozen: %+v", got)
	}
}

func TestStats(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exec, err := service.Create(ctx, CreateRequest{WorkflowID: "wf-triage"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if i == 0 {
			continue
		}
		if _, err := service.Transition(ctx, exec.ID, TransitionRequest{Status: StatusRunning}); err != nil {
			t.Fatalf("to running: %v", err)
		}
		if i == 2 {
			if _, err := service.Transition(ctx, exec.ID, TransitionRequest{Status: StatusCompleted}); err != nil {
				t.Fatalf("to completed: %v", err)
			}
		}
	}

	stats, err := service.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("expected 3 executions, got %d", stats.Total)
	}
	if stats.ByStatus[StatusPending] != 1 || stats.ByStatus[StatusRunning] != 1 || stats.ByStatus[StatusCompleted] != 1 {
		t.Fatalf("unexpected status breakdown: %+v", stats.ByStatus)
	}
}
