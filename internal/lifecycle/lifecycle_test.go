package lifecycle

import (
	"errors"
	"testing"

	xerrors "AgentPlane/internal/errors"
)

func newTestTable() *Table {
	return New("execution", "pending", map[Status][]Status{
		"pending":   {"running"},
		"running":   {"completed", "failed"},
		"completed": {},
		"failed":    {},
	})
}

func TestTableGuard(t *testing.T) {
	table := newTestTable()

	if err := table.Guard("pending", "running"); err != nil {
		t.Fatalf("pending->running should be allowed: %v", err)
	}
	if err := table.Guard("running", "completed"); err != nil {
		t.Fatalf("running->completed should be allowed: %v", err)
	}

	err := table.Guard("pending", "completed")
	if err == nil {
		t.Fatalf("pending->completed should be rejected")
	}
	if !errors.Is(err, xerrors.New(xerrors.CodeInvalidTransition, "")) {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
	if wrapped, ok := xerrors.From(err); ok {
		meta := wrapped.Metadata()
		if meta["from"] != "pending" || meta["to"] != "completed" {
			t.Fatalf("guard error must name the exact transition, got %v", meta)
		}
		if meta["allowed"] != "running" {
			t.Fatalf("guard error must list reachable statuses, got %q", meta["allowed"])
		}
	} else {
		t.Fatalf("guard error must carry metadata")
	}

	err = table.Guard("completed", "running")
	if err == nil {
		t.Fatalf("terminal states must have no outgoing transitions")
	}
	if xerrors.CodeOf(err) != xerrors.CodeInvalidTransition {
		t.Fatalf("unexpected code: %s", xerrors.CodeOf(err))
	}

	err = table.Guard("pending", "cancelled")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("unknown target status should be INVALID_ARGUMENT, got %v", err)
	}
}

func TestTableTerminal(t *testing.T) {
	table := newTestTable()

	for _, status := range []Status{"completed", "failed"} {
		if !table.Terminal(status) {
			t.Fatalf("%s should be terminal", status)
		}
	}
	for _, status := range []Status{"pending", "running"} {
		if table.Terminal(status) {
			t.Fatalf("%s should not be terminal", status)
		}
	}
	if table.Terminal("bogus") {
		t.Fatalf("unknown status must not be terminal")
	}
}

func TestTableSources(t *testing.T) {
	table := newTestTable()

	sources := table.Sources("completed")
	if len(sources) != 1 || sources[0] != "running" {
		t.Fatalf("unexpected sources for completed: %v", sources)
	}
	if got := table.Sources("pending"); len(got) != 0 {
		t.Fatalf("initial status should have no sources, got %v", got)
	}
}

func TestTableInitialAndAllowed(t *testing.T) {
	table := newTestTable()

	if got := table.Initial(); got != "pending" {
		t.Fatalf("unexpected initial status: %s", got)
	}
	allowed := table.Allowed("running")
	if len(allowed) != 2 || allowed[0] != "completed" || allowed[1] != "failed" {
		t.Fatalf("unexpected allowed targets for running: %v", allowed)
	}
	if got := table.Allowed("completed"); len(got) != 0 {
		t.Fatalf("terminal status must have no allowed targets, got %v", got)
	}
}

func TestTableValid(t *testing.T) {
	table := newTestTable()

	for _, status := range []Status{"pending", "running", "completed", "failed"} {
		if !table.Valid(status) {
			t.Fatalf("%s should be valid", status)
		}
	}
	if table.Valid("archived") {
		t.Fatalf("archived is not part of the table")
	}
}
