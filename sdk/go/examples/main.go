package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"AgentPlane/sdk/go/agentplane"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agents", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(agentplane.Agent{ID: "agent-demo", Name: "demo", Status: "active"})
	})
	mux.HandleFunc("/api/v1/executions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(agentplane.Execution{ID: "exec-demo", WorkflowID: "wf-demo", Status: "pending"})
	})
	mux.HandleFunc("/api/v1/executions/exec-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agentplane.Execution{ID: "exec-demo", WorkflowID: "wf-demo", Status: "completed",
			OutputData: map[string]any{"rows": 3}})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := agentplane.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	agent, err := client.RegisterAgent(ctx, agentplane.Agent{Name: "demo"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("registered agent %s (status=%s)\n", agent.ID, agent.Status)

	exec, err := client.ExecuteWorkflow(ctx, "wf-demo", agent.ID, map[string]any{"document": "invoice.pdf"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("started execution %s (status=%s)\n", exec.ID, exec.Status)

	final, err := client.TransitionExecution(ctx, exec.ID, "completed", map[string]any{"rows": 3}, "", 0.02)
	if err != nil {
		panic(err)
	}
	fmt.Printf("finished execution %s output=%v\n", final.ID, final.OutputData)
}
