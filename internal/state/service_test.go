package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"AgentPlane/internal/audit"
	xerrors "AgentPlane/internal/errors"
)

func newTestService(t *testing.T) (*Service, *audit.MemoryRecorder) {
	t.Helper()
	recorder := audit.NewMemoryRecorder()
	return NewService(NewMemoryStore(), audit.NewTrail(recorder)), recorder
}

func TestPutGetRoundTrip(t *testing.T) {
	service, recorder := newTestService(t)
	ctx := context.Background()

	value := map[string]any{"messages": []any{"hello"}, "count": float64(1)}
	entry, err := service.Put(ctx, PutRequest{
		ComponentName: "conversation",
		StateKey:      "user-42",
		StateValue:    value,
		AgentID:       "agent-1",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if entry.ID == "" || entry.CreatedAt == 0 {
		t.Fatalf("expected identity and timestamps to be assigned")
	}

	got, err := service.Get(ctx, "conversation", "user-42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StateValue["count"] != float64(1) {
		t.Fatalf("round-trip value mismatch: %+v", got.StateValue)
	}

	// 审计事件只允许携带 component 与 key。
	events := recorder.Events()
	if len(events) != 1 || events[0].Action != "state_write" {
		t.Fatalf("expected one state_write event, got %+v", events)
	}
	for field := range events[0].Details {
		if field != "component_name" && field != "state_key" {
			t.Fatalf("state_write audit event must not carry %q", field)
		}
	}
}

func TestPutIsLastWriterWins(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.Put(ctx, PutRequest{
		ComponentName: "checkpoint",
		StateKey:      "batch",
		StateValue:    map[string]any{"processed": float64(10)},
	})
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := service.Put(ctx, PutRequest{
		ComponentName: "checkpoint",
		StateKey:      "batch",
		StateValue:    map[string]any{"processed": float64(47)},
	}); err != nil {
		t.Fatalf("second put: %v", err)
	}

	got, err := service.Get(ctx, "checkpoint", "batch")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StateValue["processed"] != float64(47) {
		t.Fatalf("expected last write to win, got %+v", got.StateValue)
	}
	if got.ID != first.ID || got.CreatedAt != first.CreatedAt {
		t.Fatalf("overwrite must preserve original identity")
	}
}

func TestDeleteAndMissing(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Put(ctx, PutRequest{
		ComponentName: "conversation",
		StateKey:      "user-42",
		StateValue:    map[string]any{"a": float64(1)},
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := service.Delete(ctx, "conversation", "user-42"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := service.Get(ctx, "conversation", "user-42"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	// 幂等：再次删除不报错。
	if err := service.Delete(ctx, "conversation", "user-42"); err != nil {
		t.Fatalf("repeated delete: %v", err)
	}
}

func TestExpiryHidesEntries(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, nil)
	ctx := context.Background()

	entry, err := service.Put(ctx, PutRequest{
		ComponentName: "session",
		StateKey:      "token",
		StateValue:    map[string]any{"v": "abc"},
		TTLSeconds:    60,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if entry.ExpiresAt == 0 {
		t.Fatalf("expected expires_at to be set")
	}

	// 把过期时间拨回过去，读取必须按不存在处理。
	expired := cloneEntry(entry)
	expired.ExpiresAt = time.Now().Unix() - 1
	if err := store.Put(ctx, expired); err != nil {
		t.Fatalf("force expire: %v", err)
	}
	if _, err := service.Get(ctx, "session", "token"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected not found after expiry, got %v", err)
	}
	entries, err := service.GetAll(ctx, "session")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expired entries must not be listed, got %d", len(entries))
	}
}

func TestGetAllReturnsComponentEntries(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	for _, key := range []string{"b", "a", "c"} {
		if _, err := service.Put(ctx, PutRequest{
			ComponentName: "queue",
			StateKey:      key,
			StateValue:    map[string]any{"k": key},
		}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if _, err := service.Put(ctx, PutRequest{
		ComponentName: "other",
		StateKey:      "z",
		StateValue:    map[string]any{"k": "z"},
	}); err != nil {
		t.Fatalf("put other: %v", err)
	}

	entries, err := service.GetAll(ctx, "queue")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].StateKey != "a" || entries[2].StateKey != "c" {
		t.Fatalf("expected entries sorted by key: %+v", entries)
	}
}

func TestPutValidation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	cases := []PutRequest{
		{StateKey: "k", StateValue: map[string]any{"a": 1}},
		{ComponentName: "c", StateValue: map[string]any{"a": 1}},
		{ComponentName: "c", StateKey: "k"},
		{ComponentName: "c", StateKey: "k", StateValue: map[string]any{"a": 1}, TTLSeconds: -5},
	}
	for i, req := range cases {
		if _, err := service.Put(ctx, req); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
			t.Fatalf("case %d: expected invalid argument, got %v", i, err)
		}
	}
}
