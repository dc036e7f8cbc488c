package audit

import (
	"context"
	"errors"
	"testing"
)

type failingRecorder struct {
	calls int
}

func (r *failingRecorder) Record(context.Context, Event) error {
	r.calls++
	return errors.New("sink unavailable")
}

func (r *failingRecorder) Close() error { return nil }

func TestTrailFanout(t *testing.T) {
	memory := NewMemoryRecorder()
	failing := &failingRecorder{}
	trail := NewTrail(failing, memory)

	trail.Record(context.Background(), Event{
		Action:       "execution_completed",
		ResourceType: "execution",
		ResourceID:   "exec-1",
	})

	if failing.calls != 1 {
		t.Fatalf("expected failing recorder to be called once, got %d", failing.calls)
	}
	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 recorded event despite sibling failure, got %d", len(events))
	}
	if events[0].ID == "" {
		t.Fatalf("expected event id to be assigned")
	}
	if events[0].Actor != "system" {
		t.Fatalf("expected default actor system, got %q", events[0].Actor)
	}
	if events[0].OccurredAt == 0 {
		t.Fatalf("expected occurred_at to be stamped")
	}
}

func TestNilTrailIsSafe(t *testing.T) {
	var trail *Trail
	trail.Record(context.Background(), Event{Action: "noop"})
	if err := trail.Close(); err != nil {
		t.Fatalf("close nil trail: %v", err)
	}
}

func TestMemoryRecorderQuery(t *testing.T) {
	memory := NewMemoryRecorder()
	ctx := context.Background()
	for _, event := range []Event{
		{ID: "1", Action: "execution_running", ResourceType: "execution", ResourceID: "a"},
		{ID: "2", Action: "execution_completed", ResourceType: "execution", ResourceID: "a"},
		{ID: "3", Action: "handoff_accepted", ResourceType: "handoff", ResourceID: "b"},
	} {
		if err := memory.Record(ctx, event); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	events, err := memory.Query(ctx, Filter{ResourceType: "execution", ResourceID: "a"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "2" {
		t.Fatalf("expected newest event first, got %q", events[0].ID)
	}

	events, err = memory.Query(ctx, Filter{Action: "handoff_accepted", Limit: 1})
	if err != nil {
		t.Fatalf("query by action: %v", err)
	}
	if len(events) != 1 || events[0].ID != "3" {
		t.Fatalf("unexpected action query result: %+v", events)
	}
}
