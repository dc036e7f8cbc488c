package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"AgentPlane/internal/agents"
	"AgentPlane/internal/audit"
	"AgentPlane/internal/escalation"
	"AgentPlane/internal/execution"
	"AgentPlane/internal/handoff"
	"AgentPlane/internal/interpret"
	"AgentPlane/internal/llm/static"
	"AgentPlane/internal/state"
	"AgentPlane/internal/workflow"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	trail := audit.NewTrail(audit.NewMemoryRecorder())
	agentSvc := agents.NewService(agents.NewMemoryStore(), trail)
	workflowSvc := workflow.NewService(workflow.NewMemoryStore(), trail)
	executionSvc := execution.NewService(execution.NewMemoryStore(), workflowSvc, agentSvc, trail)
	handoffSvc := handoff.NewService(handoff.NewMemoryStore(), agentSvc, trail)
	escalationSvc := escalation.NewService(escalation.NewMemoryStore(), trail, nil)
	stateSvc := state.NewService(state.NewMemoryStore(), trail)

	server := NewServer(":0", Services{
		Agents:      agentSvc,
		Workflows:   workflowSvc,
		Executions:  executionSvc,
		Handoffs:    handoffSvc,
		Escalations: escalationSvc,
		State:       stateSvc,
		Interpreter: interpret.NewInterpreter(static.NewClient(), 0),
		Trail:       trail,
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, target any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestAgentRegisterAndConflict(t *testing.T) {
	ts := newTestServer(t)

	var created agents.Agent
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/agents", map[string]any{"name": "triage-bot"}, &created)
	if status != http.StatusCreated {
		t.Fatalf("register: unexpected status %d", status)
	}
	if created.ID == "" || created.Status != agents.StatusActive {
		t.Fatalf("unexpected agent %+v", created)
	}

	var body map[string]any
	status = doJSON(t, http.MethodPost, ts.URL+"/api/v1/agents", map[string]any{"name": "triage-bot"}, &body)
	if status != http.StatusConflict {
		t.Fatalf("duplicate register: unexpected status %d", status)
	}
}

func TestExecutionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	var def workflow.Definition
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/workflows", map[string]any{
		"name":       "invoice-intake",
		"definition": "1. extract fields\n2. validate totals",
	}, &def)
	if status != http.StatusCreated {
		t.Fatalf("create workflow: unexpected status %d", status)
	}

	var exec execution.Execution
	status = doJSON(t, http.MethodPost, ts.URL+"/api/v1/executions", map[string]any{
		"workflow_id": def.ID,
	}, &exec)
	if status != http.StatusCreated {
		t.Fatalf("create execution: unexpected status %d", status)
	}
	if exec.Status != execution.StatusPending {
		t.Fatalf("new execution should be pending, got %s", exec.Status)
	}

	status = doJSON(t, http.MethodPatch, ts.URL+"/api/v1/executions/"+exec.ID,
		map[string]any{"status": "running"}, &exec)
	if status != http.StatusOK {
		t.Fatalf("transition to running: unexpected status %d", status)
	}

	status = doJSON(t, http.MethodPatch, ts.URL+"/api/v1/executions/"+exec.ID,
		map[string]any{"status": "completed", "output_data": map[string]any{"rows": 3}}, &exec)
	if status != http.StatusOK {
		t.Fatalf("transition to completed: unexpected status %d", status)
	}

	// 终态之后的任何转移都应被拒绝。
	var errBody map[string]any
	status = doJSON(t, http.MethodPatch, ts.URL+"/api/v1/executions/"+exec.ID,
		map[string]any{"status": "running"}, &errBody)
	if status != http.StatusConflict {
		t.Fatalf("terminal transition: unexpected status %d", status)
	}

	var stats execution.Stats
	status = doJSON(t, http.MethodGet, ts.URL+"/api/v1/observe", nil, &stats)
	if status != http.StatusOK {
		t.Fatalf("observe: unexpected status %d", status)
	}
	if stats.Total != 1 || stats.ByStatus[execution.StatusCompleted] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestExecutionNotFound(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]any
	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/executions/no-such-id", nil, &body)
	if status != http.StatusNotFound {
		t.Fatalf("unexpected status %d", status)
	}
}

func TestHandoffWithoutContextRejected(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]any
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/handoffs", map[string]any{
		"reason": "needs review",
	}, &body)
	if status != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", status)
	}
}

func TestStateRoundTripOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	var entry state.Entry
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/state", map[string]any{
		"component_name": "chat-widget",
		"state_key":      "session-1",
		"state_value":    map[string]any{"step": 2},
	}, &entry)
	if status != http.StatusOK {
		t.Fatalf("put: unexpected status %d", status)
	}

	var fetched state.Entry
	url := fmt.Sprintf("%s/api/v1/state?component=%s&key=%s", ts.URL, "chat-widget", "session-1")
	if status := doJSON(t, http.MethodGet, url, nil, &fetched); status != http.StatusOK {
		t.Fatalf("get: unexpected status %d", status)
	}
	if fetched.StateValue["step"] != float64(2) {
		t.Fatalf("unexpected value %+v", fetched.StateValue)
	}

	req, _ := http.NewRequest(http.MethodDelete, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: unexpected status %d", resp.StatusCode)
	}

	var body map[string]any
	if status := doJSON(t, http.MethodGet, url, nil, &body); status != http.StatusNotFound {
		t.Fatalf("get after delete: unexpected status %d", status)
	}
}

func TestInterpretOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	var result interpret.Result
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/interpret", map[string]any{
		"data":   map[string]any{"amount": 42},
		"schema": map[string]any{"amount": "number", "currency": "string"},
	}, &result)
	if status != http.StatusOK {
		t.Fatalf("interpret: unexpected status %d", status)
	}
	if !result.ShouldEscalate {
		t.Fatalf("missing currency should force escalation: %+v", result)
	}
}

func TestEscalationRequiresResolution(t *testing.T) {
	ts := newTestServer(t)

	var esc escalation.Escalation
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/escalations", map[string]any{
		"reason": "low confidence on invoice fields",
	}, &esc)
	if status != http.StatusCreated {
		t.Fatalf("create escalation: unexpected status %d", status)
	}

	var body map[string]any
	status = doJSON(t, http.MethodPatch, ts.URL+"/api/v1/escalations/"+esc.ID,
		map[string]any{"status": "resolved"}, &body)
	if status != http.StatusBadRequest {
		t.Fatalf("resolve without resolution: unexpected status %d", status)
	}

	status = doJSON(t, http.MethodPatch, ts.URL+"/api/v1/escalations/"+esc.ID,
		map[string]any{"status": "resolved", "resolution": "corrected manually", "resolved_by": "ops"}, &esc)
	if status != http.StatusOK {
		t.Fatalf("resolve: unexpected status %d", status)
	}
	if esc.Status != escalation.StatusResolved || esc.ResolvedAt == 0 {
		t.Fatalf("unexpected escalation %+v", esc)
	}
}

func TestTemplatesEndpoint(t *testing.T) {
	ts := newTestServer(t)

	var templates []workflow.Template
	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/templates", nil, &templates)
	if status != http.StatusOK {
		t.Fatalf("templates: unexpected status %d", status)
	}
	if len(templates) == 0 {
		t.Fatalf("expected built-in templates")
	}

	var single workflow.Template
	status = doJSON(t, http.MethodGet, ts.URL+"/api/v1/templates?name=data_extraction", nil, &single)
	if status != http.StatusOK {
		t.Fatalf("template by name: unexpected status %d", status)
	}
	if single.Name != "data_extraction" {
		t.Fatalf("unexpected template %+v", single)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]string
	if status := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, &body); status != http.StatusOK {
		t.Fatalf("healthz: unexpected status %d", status)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}
