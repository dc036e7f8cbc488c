package agents

import (
	"context"
	"errors"
	"testing"

	"AgentPlane/internal/audit"
	xerrors "AgentPlane/internal/errors"
)

func newTestService(t *testing.T) (*Service, *audit.MemoryRecorder) {
	t.Helper()
	recorder := audit.NewMemoryRecorder()
	return NewService(NewMemoryStore(), audit.NewTrail(recorder)), recorder
}

func TestRegisterAndGet(t *testing.T) {
	service, recorder := newTestService(t)
	ctx := context.Background()

	agent, err := service.Register(ctx, RegisterRequest{
		Name:      "triage-bot",
		Framework: "langchain",
		Capabilities: map[string]any{
			"skills": []any{"classification"},
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if agent.ID == "" {
		t.Fatalf("expected agent id to be assigned")
	}
	if agent.Status != StatusActive {
		t.Fatalf("expected default status active, got %q", agent.Status)
	}
	if agent.LastSeen == 0 {
		t.Fatalf("expected last_seen to be stamped")
	}

	got, err := service.Get(ctx, agent.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "triage-bot" {
		t.Fatalf("expected name triage-bot, got %q", got.Name)
	}

	byName, err := service.GetByName(ctx, "triage-bot")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName.ID != agent.ID {
		t.Fatalf("expected same agent by name")
	}

	events := recorder.Events()
	if len(events) != 1 || events[0].Action != "agent_register" {
		t.Fatalf("expected agent_register audit event, got %+v", events)
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterRequest{Name: "triage-bot"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := service.Register(ctx, RegisterRequest{Name: "triage-bot"})
	if !errors.Is(err, ErrAgentConflict) {
		t.Fatalf("expected conflict on duplicate name, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterRequest{Name: "  "}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for blank name, got %v", err)
	}
	if _, err := service.Register(ctx, RegisterRequest{Name: "x", Status: "retired"}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for unknown status, got %v", err)
	}
}

func TestHeartbeatUpdatesStatusAndLastSeen(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	agent, err := service.Register(ctx, RegisterRequest{Name: "triage-bot"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	updated, err := service.Heartbeat(ctx, "triage-bot", StatusInactive)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if updated.Status != StatusInactive {
		t.Fatalf("expected status inactive, got %q", updated.Status)
	}
	if updated.LastSeen < agent.LastSeen {
		t.Fatalf("expected last_seen to move forward")
	}

	if _, err := service.Heartbeat(ctx, "missing", ""); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected not found for unknown agent, got %v", err)
	}
	if _, err := service.Heartbeat(ctx, "triage-bot", "retired"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for unknown status, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	for _, req := range []RegisterRequest{
		{Name: "a", Framework: "langchain"},
		{Name: "b", Framework: "crewai"},
		{Name: "c", Framework: "langchain", Status: StatusDeprecated},
	} {
		if _, err := service.Register(ctx, req); err != nil {
			t.Fatalf("register %s: %v", req.Name, err)
		}
	}

	all, err := service.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 agents, got %d", len(all))
	}

	langchain, err := service.List(ctx, ListFilter{Framework: "langchain"})
	if err != nil {
		t.Fatalf("list by framework: %v", err)
	}
	if len(langchain) != 2 {
		t.Fatalf("expected 2 langchain agents, got %d", len(langchain))
	}

	deprecated, err := service.List(ctx, ListFilter{Status: StatusDeprecated})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(deprecated) != 1 || deprecated[0].Name != "c" {
		t.Fatalf("unexpected deprecated agents: %+v", deprecated)
	}
}

func TestExists(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	agent, err := service.Register(ctx, RegisterRequest{Name: "triage-bot"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ok, err := service.Exists(ctx, agent.ID)
	if err != nil || !ok {
		t.Fatalf("expected agent to exist, ok=%v err=%v", ok, err)
	}
	ok, err = service.Exists(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("expected missing agent to not exist, ok=%v err=%v", ok, err)
	}
}
