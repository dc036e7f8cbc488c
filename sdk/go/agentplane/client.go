// Package agentplane is a thin Go client for the AgentPlane REST API. It
// carries its own wire types so agent processes can depend on it without
// pulling in the server.
package agentplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the AgentPlane REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient instantiates a client for the AgentPlane API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Agent mirrors the registry record returned by the server.
type Agent struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Framework    string         `json:"framework,omitempty"`
	Description  string         `json:"description,omitempty"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	Status       string         `json:"status"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
	LastSeen     int64          `json:"last_seen"`
}

// Workflow mirrors a versioned workflow definition.
type Workflow struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	Version           int            `json:"version"`
	Definition        string         `json:"definition"`
	DesignedByAgentID string         `json:"designed_by_agent_id,omitempty"`
	DesignedWithModel string         `json:"designed_with_model,omitempty"`
	ExecutableByModel string         `json:"executable_by_model,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	IsActive          bool           `json:"is_active"`
	CreatedAt         int64          `json:"created_at"`
	UpdatedAt         int64          `json:"updated_at"`
}

// Execution mirrors a workflow execution record.
type Execution struct {
	ID                string         `json:"id"`
	WorkflowID        string         `json:"workflow_id"`
	AgentID           string         `json:"agent_id,omitempty"`
	ExecutedWithModel string         `json:"executed_with_model,omitempty"`
	Status            string         `json:"status"`
	InputData         map[string]any `json:"input_data,omitempty"`
	OutputData        map[string]any `json:"output_data,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	CostEstimate      float64        `json:"cost_estimate,omitempty"`
	StartedAt         int64          `json:"started_at"`
	CompletedAt       int64          `json:"completed_at,omitempty"`
	DurationSeconds   int64          `json:"duration_seconds,omitempty"`
}

// Handoff mirrors a context transfer between agents.
type Handoff struct {
	ID          string         `json:"id"`
	FromAgentID string         `json:"from_agent_id,omitempty"`
	ToAgentID   string         `json:"to_agent_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Context     map[string]any `json:"context"`
	Reason      string         `json:"reason,omitempty"`
	Status      string         `json:"status"`
	AcceptedAt  int64          `json:"accepted_at,omitempty"`
	CompletedAt int64          `json:"completed_at,omitempty"`
	CreatedAt   int64          `json:"created_at"`
}

// Escalation mirrors a human-attention request.
type Escalation struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agent_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	HandoffID   string         `json:"handoff_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	Reason      string         `json:"reason"`
	Priority    string         `json:"priority"`
	Context     map[string]any `json:"context,omitempty"`
	AssignedTo  string         `json:"assigned_to,omitempty"`
	Status      string         `json:"status"`
	Resolution  string         `json:"resolution,omitempty"`
	ResolvedBy  string         `json:"resolved_by,omitempty"`
	ResolvedAt  int64          `json:"resolved_at,omitempty"`
	CreatedAt   int64          `json:"created_at"`
}

// StateEntry mirrors a component state record.
type StateEntry struct {
	ID            string         `json:"id"`
	ComponentName string         `json:"component_name"`
	StateKey      string         `json:"state_key"`
	StateValue    map[string]any `json:"state_value"`
	AgentID       string         `json:"agent_id,omitempty"`
	CreatedAt     int64          `json:"created_at"`
	UpdatedAt     int64          `json:"updated_at"`
	ExpiresAt     int64          `json:"expires_at,omitempty"`
}

// InterpretRequest is the payload for the interpret endpoint.
type InterpretRequest struct {
	Data                any            `json:"data"`
	Schema              map[string]any `json:"schema"`
	Context             string         `json:"context,omitempty"`
	ConfidenceThreshold *float64       `json:"confidence_threshold,omitempty"`
}

// InterpretResult carries the normalized data plus the gate decision.
type InterpretResult struct {
	Data              map[string]any     `json:"data"`
	Confidence        map[string]float64 `json:"confidence"`
	OverallConfidence float64            `json:"overall_confidence"`
	MissingFields     []string           `json:"missing_fields"`
	Notes             string             `json:"notes,omitempty"`
	ShouldEscalate    bool               `json:"should_escalate"`
	EscalationReason  string             `json:"escalation_reason,omitempty"`
}

// ExecutionStats is the aggregate view served by the observe endpoint.
type ExecutionStats struct {
	Total              int64            `json:"total"`
	ByStatus           map[string]int64 `json:"by_status"`
	AvgDurationSeconds float64          `json:"avg_duration_seconds"`
	ErrorRate          float64          `json:"error_rate"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentplane api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentplane api error (%d): %s", e.StatusCode, e.Message)
}

// RegisterAgent registers a new agent. Names are globally unique.
func (c *Client) RegisterAgent(ctx context.Context, agent Agent) (*Agent, error) {
	var created Agent
	if err := c.post(ctx, "/api/v1/agents", agent, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Heartbeat refreshes an agent's last_seen timestamp and optionally flips its
// status.
func (c *Client) Heartbeat(ctx context.Context, name, status string) (*Agent, error) {
	payload := map[string]string{"name": name}
	if status != "" {
		payload["status"] = status
	}
	var agent Agent
	if err := c.patch(ctx, "/api/v1/agents", payload, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// CreateWorkflow stores a new workflow definition. Omit the version to let the
// server auto-increment it.
func (c *Client) CreateWorkflow(ctx context.Context, wf Workflow) (*Workflow, error) {
	var created Workflow
	if err := c.post(ctx, "/api/v1/workflows", wf, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Workflows lists workflow definitions, optionally filtered by name.
func (c *Client) Workflows(ctx context.Context, name string, activeOnly bool) ([]Workflow, error) {
	query := url.Values{}
	if name != "" {
		query.Set("name", name)
	}
	if activeOnly {
		query.Set("active_only", "true")
	}
	var list []Workflow
	if err := c.get(ctx, "/api/v1/workflows", query, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ExecuteWorkflow starts a pending execution for the given workflow.
func (c *Client) ExecuteWorkflow(ctx context.Context, workflowID, agentID string, input map[string]any) (*Execution, error) {
	payload := map[string]any{"workflow_id": workflowID}
	if agentID != "" {
		payload["agent_id"] = agentID
	}
	if input != nil {
		payload["input_data"] = input
	}
	var exec Execution
	if err := c.post(ctx, "/api/v1/executions", payload, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// GetExecution fetches an execution by identifier.
func (c *Client) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var exec Execution
	if err := c.get(ctx, "/api/v1/executions/"+url.PathEscape(id), nil, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// TransitionExecution moves an execution to the given status. Output data,
// error message and cost are only accepted on terminal statuses.
func (c *Client) TransitionExecution(ctx context.Context, id, status string, output map[string]any, errorMessage string, cost float64) (*Execution, error) {
	payload := map[string]any{"status": status}
	if output != nil {
		payload["output_data"] = output
	}
	if errorMessage != "" {
		payload["error_message"] = errorMessage
	}
	if cost != 0 {
		payload["cost_estimate"] = cost
	}
	var exec Execution
	if err := c.patch(ctx, "/api/v1/executions/"+url.PathEscape(id), payload, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// CreateHandoff opens a pending handoff. The context payload is mandatory.
func (c *Client) CreateHandoff(ctx context.Context, h Handoff) (*Handoff, error) {
	var created Handoff
	if err := c.post(ctx, "/api/v1/handoffs", h, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// TransitionHandoff moves a handoff to the given status on behalf of agentID.
func (c *Client) TransitionHandoff(ctx context.Context, id, status, agentID string) (*Handoff, error) {
	payload := map[string]string{"status": status}
	if agentID != "" {
		payload["agent_id"] = agentID
	}
	var h Handoff
	if err := c.patch(ctx, "/api/v1/handoffs/"+url.PathEscape(id), payload, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Escalate opens an escalation for human attention.
func (c *Client) Escalate(ctx context.Context, esc Escalation) (*Escalation, error) {
	var created Escalation
	if err := c.post(ctx, "/api/v1/escalations", esc, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ResolveEscalation closes an escalation with a resolution note.
func (c *Client) ResolveEscalation(ctx context.Context, id, resolution, resolvedBy string) (*Escalation, error) {
	payload := map[string]string{
		"status":      "resolved",
		"resolution":  resolution,
		"resolved_by": resolvedBy,
	}
	var esc Escalation
	if err := c.patch(ctx, "/api/v1/escalations/"+url.PathEscape(id), payload, &esc); err != nil {
		return nil, err
	}
	return &esc, nil
}

// SaveState upserts a state entry. ttlSeconds of zero means no expiry.
func (c *Client) SaveState(ctx context.Context, component, key string, value map[string]any, ttlSeconds int64) (*StateEntry, error) {
	payload := map[string]any{
		"component_name": component,
		"state_key":      key,
		"state_value":    value,
	}
	if ttlSeconds > 0 {
		payload["ttl_seconds"] = ttlSeconds
	}
	var entry StateEntry
	if err := c.post(ctx, "/api/v1/state", payload, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// LoadState fetches a single state entry. Expired entries read as not found.
func (c *Client) LoadState(ctx context.Context, component, key string) (*StateEntry, error) {
	query := url.Values{"component": {component}, "key": {key}}
	var entry StateEntry
	if err := c.get(ctx, "/api/v1/state", query, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// LoadComponentState fetches every live entry for a component.
func (c *Client) LoadComponentState(ctx context.Context, component string) ([]StateEntry, error) {
	query := url.Values{"component": {component}}
	var entries []StateEntry
	if err := c.get(ctx, "/api/v1/state", query, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteState removes a state entry. Deleting a missing entry is not an error.
func (c *Client) DeleteState(ctx context.Context, component, key string) error {
	query := url.Values{"component": {component}, "key": {key}}
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/state", query, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Interpret runs the server-side extraction plus confidence gate.
func (c *Client) Interpret(ctx context.Context, req InterpretRequest) (*InterpretResult, error) {
	var result InterpretResult
	if err := c.post(ctx, "/api/v1/interpret", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecutionStats fetches the aggregate execution view.
func (c *Client) ExecutionStats(ctx context.Context) (*ExecutionStats, error) {
	var stats ExecutionStats
	if err := c.get(ctx, "/api/v1/observe", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	return c.send(ctx, http.MethodPost, endpoint, payload, out)
}

func (c *Client) patch(ctx context.Context, endpoint string, payload any, out any) error {
	return c.send(ctx, http.MethodPatch, endpoint, payload, out)
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, method, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: endpoint}
	u := c.baseURL.ResolveReference(rel)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
