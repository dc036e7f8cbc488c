// Package api 暴露控制面的 REST 接口。路由按资源划分，方法在
// 处理器内部分发，错误统一翻译成 HTTP 状态码。
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AgentPlane/internal/agents"
	"AgentPlane/internal/audit"
	"AgentPlane/internal/escalation"
	"AgentPlane/internal/execution"
	"AgentPlane/internal/handoff"
	"AgentPlane/internal/interpret"
	"AgentPlane/internal/observability/metrics"
	"AgentPlane/internal/state"
	"AgentPlane/internal/workflow"
)

// Services 聚合 API 层依赖的全部业务服务。
type Services struct {
	Agents      *agents.Service
	Workflows   *workflow.Service
	Executions  *execution.Service
	Handoffs    *handoff.Service
	Escalations *escalation.Service
	State       *state.Service
	Interpreter *interpret.Interpreter
	Trail       *audit.Trail
}

// Server 负责暴露 REST 接口，供外部智能体驱动控制面。
type Server struct {
	addr     string
	services Services
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, services Services) *Server {
	return &Server{addr: addr, services: services}
}

// Handler 返回完整的路由，测试可直接挂到 httptest 上。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/workflows", s.handleWorkflows)
	mux.HandleFunc("/api/v1/templates", s.handleTemplates)
	mux.HandleFunc("/api/v1/executions", s.handleExecutions)
	mux.HandleFunc("/api/v1/executions/", s.handleExecutionByID)
	mux.HandleFunc("/api/v1/handoffs", s.handleHandoffs)
	mux.HandleFunc("/api/v1/handoffs/", s.handleHandoffByID)
	mux.HandleFunc("/api/v1/escalations", s.handleEscalations)
	mux.HandleFunc("/api/v1/escalations/", s.handleEscalationByID)
	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.HandleFunc("/api/v1/interpret", s.handleInterpret)
	mux.HandleFunc("/api/v1/observe", s.handleObserve)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", handleHealth)
	return withMetrics(mux)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req agents.RegisterRequest
		if !decodeBody(w, r, &req) {
			return
		}
		agent, err := s.services.Agents.Register(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, agent)
	case http.MethodGet:
		s.handleListAgents(w, r)
	case http.MethodPatch:
		var req struct {
			Name   string        `json:"name"`
			Status agents.Status `json:"status,omitempty"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		agent, err := s.services.Agents.Heartbeat(r.Context(), req.Name, req.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agent)
	default:
		methodNotAllowed(w, "GET, POST, PATCH")
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if name := query.Get("name"); name != "" {
		agent, err := s.services.Agents.GetByName(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agent)
		return
	}
	filter := agents.ListFilter{
		Status:    agents.Status(query.Get("status")),
		Framework: query.Get("framework"),
	}
	list, err := s.services.Agents.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req workflow.CreateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		def, err := s.services.Workflows.Create(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, def)
	case http.MethodGet:
		s.handleListWorkflows(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	name := query.Get("name")
	if name != "" {
		if raw := query.Get("version"); raw != "" {
			version, err := strconv.Atoi(raw)
			if err != nil {
				badRequest(w, "version 必须是整数")
				return
			}
			def, err := s.services.Workflows.GetVersion(r.Context(), name, version)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, def)
			return
		}
		if query.Get("latest") == "true" {
			def, err := s.services.Workflows.Latest(r.Context(), name)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, def)
			return
		}
	}
	filter := workflow.ListFilter{
		Name:       name,
		ActiveOnly: query.Get("active_only") == "true",
	}
	list, err := s.services.Workflows.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	if name := r.URL.Query().Get("name"); name != "" {
		template, err := workflow.TemplateByName(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, template)
		return
	}
	if tag := r.URL.Query().Get("tag"); tag != "" {
		templates, err := workflow.TemplatesByTag(tag)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, templates)
		return
	}
	templates, err := workflow.Templates()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req execution.CreateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		exec, err := s.services.Executions.Create(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.ObserveTransition("execution", string(exec.Status))
		writeJSON(w, http.StatusCreated, exec)
	case http.MethodGet:
		query := r.URL.Query()
		filter := execution.ListFilter{
			WorkflowID: query.Get("workflow_id"),
			AgentID:    query.Get("agent_id"),
			Status:     execution.Status(query.Get("status")),
			Limit:      parseLimit(query.Get("limit")),
		}
		list, err := s.services.Executions.List(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleExecutionByID(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/v1/executions/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		exec, err := s.services.Executions.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exec)
	case http.MethodPatch:
		var req execution.TransitionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		exec, err := s.services.Executions.Transition(r.Context(), id, req)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.ObserveTransition("execution", string(exec.Status))
		writeJSON(w, http.StatusOK, exec)
	default:
		methodNotAllowed(w, "GET, PATCH")
	}
}

func (s *Server) handleHandoffs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req handoff.CreateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		h, err := s.services.Handoffs.Create(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.ObserveTransition("handoff", string(h.Status))
		writeJSON(w, http.StatusCreated, h)
	case http.MethodGet:
		query := r.URL.Query()
		filter := handoff.ListFilter{
			ToAgentID:   query.Get("to_agent_id"),
			FromAgentID: query.Get("from_agent_id"),
			Status:      handoff.Status(query.Get("status")),
			Limit:       parseLimit(query.Get("limit")),
		}
		list, err := s.services.Handoffs.List(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleHandoffByID(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/v1/handoffs/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h, err := s.services.Handoffs.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	case http.MethodPatch:
		var req struct {
			Status  handoff.Status `json:"status"`
			AgentID string         `json:"agent_id,omitempty"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		h, err := s.services.Handoffs.Transition(r.Context(), id, req.Status, req.AgentID)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.ObserveTransition("handoff", string(h.Status))
		writeJSON(w, http.StatusOK, h)
	default:
		methodNotAllowed(w, "GET, PATCH")
	}
}

func (s *Server) handleEscalations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req escalation.CreateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		esc, err := s.services.Escalations.Create(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.ObserveTransition("escalation", string(esc.Status))
		writeJSON(w, http.StatusCreated, esc)
	case http.MethodGet:
		query := r.URL.Query()
		filter := escalation.ListFilter{
			Status:     escalation.Status(query.Get("status")),
			Priority:   escalation.Priority(query.Get("priority")),
			AgentID:    query.Get("agent_id"),
			AssignedTo: query.Get("assigned_to"),
			Limit:      parseLimit(query.Get("limit")),
		}
		list, err := s.services.Escalations.List(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleEscalationByID(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/v1/escalations/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		esc, err := s.services.Escalations.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, esc)
	case http.MethodPatch:
		var req escalation.TransitionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		esc, err := s.services.Escalations.Transition(r.Context(), id, req)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.ObserveTransition("escalation", string(esc.Status))
		writeJSON(w, http.StatusOK, esc)
	default:
		methodNotAllowed(w, "GET, PATCH")
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req state.PutRequest
		if !decodeBody(w, r, &req) {
			return
		}
		entry, err := s.services.State.Put(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodGet:
		query := r.URL.Query()
		component := query.Get("component")
		if component == "" {
			badRequest(w, "component 不能为空")
			return
		}
		if key := query.Get("key"); key != "" {
			entry, err := s.services.State.Get(r.Context(), component, key)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, entry)
			return
		}
		entries, err := s.services.State.GetAll(r.Context(), component)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodDelete:
		query := r.URL.Query()
		component := query.Get("component")
		key := query.Get("key")
		if component == "" || key == "" {
			badRequest(w, "component 与 key 不能为空")
			return
		}
		if err := s.services.State.Delete(r.Context(), component, key); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, "GET, POST, DELETE")
	}
}

func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	if s.services.Interpreter == nil {
		http.Error(w, "解释服务未初始化", http.StatusServiceUnavailable)
		return
	}
	var req interpret.Request
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.services.Interpreter.Interpret(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleObserve 提供执行统计，POST 时记录一条自定义审计事件。
func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		stats, err := s.services.Executions.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	case http.MethodPost:
		var req struct {
			EventType    string         `json:"event_type"`
			Actor        string         `json:"actor,omitempty"`
			ResourceType string         `json:"resource_type,omitempty"`
			ResourceID   string         `json:"resource_id,omitempty"`
			Details      map[string]any `json:"details,omitempty"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.EventType == "" {
			badRequest(w, "event_type 不能为空")
			return
		}
		s.services.Trail.Record(r.Context(), audit.Event{
			Actor:        req.Actor,
			Action:       "observe:" + req.EventType,
			ResourceType: req.ResourceType,
			ResourceID:   req.ResourceID,
			Details:      req.Details,
		})
		w.WriteHeader(http.StatusAccepted)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID 从路径中截取资源 ID，带子路径的请求一律视为不存在。
func pathID(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
		return parsed
	}
	return 0
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
