package agentplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agents", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var agent Agent
			_ = json.NewDecoder(r.Body).Decode(&agent)
			agent.ID = "agent-1"
			agent.Status = "active"
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(agent)
		case http.MethodPatch:
			_ = json.NewEncoder(w).Encode(Agent{ID: "agent-1", Name: "triage-bot", Status: "active", LastSeen: 1700000000})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/executions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Execution{ID: "exec-1", WorkflowID: "wf-1", Status: "pending"})
	})
	mux.HandleFunc("/api/v1/executions/exec-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			var payload map[string]any
			_ = json.NewDecoder(r.Body).Decode(&payload)
			_ = json.NewEncoder(w).Encode(Execution{ID: "exec-1", WorkflowID: "wf-1", Status: payload["status"].(string)})
			return
		}
		_ = json.NewEncoder(w).Encode(Execution{ID: "exec-1", WorkflowID: "wf-1", Status: "running"})
	})
	mux.HandleFunc("/api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var entry StateEntry
			_ = json.NewDecoder(r.Body).Decode(&entry)
			entry.ID = "state-1"
			_ = json.NewEncoder(w).Encode(entry)
		case http.MethodGet:
			if r.URL.Query().Get("key") == "" {
				_ = json.NewEncoder(w).Encode([]StateEntry{{ID: "state-1", ComponentName: "widget", StateKey: "k"}})
				return
			}
			_ = json.NewEncoder(w).Encode(StateEntry{ID: "state-1", ComponentName: "widget", StateKey: "k"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("/api/v1/interpret", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(InterpretResult{
			Data:              map[string]any{"amount": 42.0},
			OverallConfidence: 0.9,
		})
	})
	mux.HandleFunc("/api/v1/escalations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "INVALID_ARGUMENT", "message": "reason is required"},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(server.URL, server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestRegisterAndHeartbeat(t *testing.T) {
	server := newStubServer(t)
	client := newTestClient(t, server)
	ctx := context.Background()

	created, err := client.RegisterAgent(ctx, Agent{Name: "triage-bot"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.ID != "agent-1" || created.Status != "active" {
		t.Fatalf("unexpected agent %+v", created)
	}

	beat, err := client.Heartbeat(ctx, "triage-bot", "")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if beat.LastSeen == 0 {
		t.Fatalf("heartbeat did not return last_seen: %+v", beat)
	}
}

func TestExecutionRoundTrip(t *testing.T) {
	server := newStubServer(t)
	client := newTestClient(t, server)
	ctx := context.Background()

	exec, err := client.ExecuteWorkflow(ctx, "wf-1", "", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exec.Status != "pending" {
		t.Fatalf("unexpected status %q", exec.Status)
	}

	moved, err := client.TransitionExecution(ctx, exec.ID, "running", nil, "", 0)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if moved.Status != "running" {
		t.Fatalf("unexpected status %q", moved.Status)
	}
}

func TestStateHelpers(t *testing.T) {
	server := newStubServer(t)
	client := newTestClient(t, server)
	ctx := context.Background()

	entry, err := client.SaveState(ctx, "widget", "k", map[string]any{"step": 1}, 60)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if entry.ID == "" {
		t.Fatalf("missing id: %+v", entry)
	}

	if _, err := client.LoadState(ctx, "widget", "k"); err != nil {
		t.Fatalf("load: %v", err)
	}
	entries, err := client.LoadComponentState(ctx, "widget")
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if err := client.DeleteState(ctx, "widget", "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	server := newStubServer(t)
	client := newTestClient(t, server)

	_, err := client.Escalate(context.Background(), Escalation{})
	if err == nil {
		t.Fatalf("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "INVALID_ARGUMENT" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestInterpret(t *testing.T) {
	server := newStubServer(t)
	client := newTestClient(t, server)

	result, err := client.Interpret(context.Background(), InterpretRequest{
		Data:   map[string]any{"amount": 42},
		Schema: map[string]any{"amount": "number"},
	})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if result.OverallConfidence != 0.9 {
		t.Fatalf("unexpected result %+v", result)
	}
}
