package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"AgentPlane/internal/llm"
)

func TestParseOutcomePlainJSON(t *testing.T) {
	outcome, err := parseOutcome(`{"normalized_data":{"order_id":"A-17"},"confidence":{"order_id":0.95},"missing_fields":[],"notes":"clear"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if outcome.NormalizedData["order_id"] != "A-17" {
		t.Fatalf("unexpected normalized data: %+v", outcome.NormalizedData)
	}
	if outcome.Confidence["order_id"] != 0.95 {
		t.Fatalf("unexpected confidence: %+v", outcome.Confidence)
	}
}

func TestParseOutcomeMarkdownFence(t *testing.T) {
	content := "Here is the result:\n```json\n{\"normalized_data\":{\"name\":\"Ada\"},\"confidence\":{\"name\":1},\"missing_fields\":[\"email\"],\"notes\":\"\"}\n```"
	outcome, err := parseOutcome(content)
	if err != nil {
		t.Fatalf("parse fenced: %v", err)
	}
	if outcome.NormalizedData["name"] != "Ada" {
		t.Fatalf("unexpected normalized data: %+v", outcome.NormalizedData)
	}
	if len(outcome.MissingFields) != 1 || outcome.MissingFields[0] != "email" {
		t.Fatalf("unexpected missing fields: %+v", outcome.MissingFields)
	}
}

func TestParseOutcomeRejectsGarbage(t *testing.T) {
	if _, err := parseOutcome("I could not process that."); err == nil {
		t.Fatalf("expected error for non-JSON content")
	}
}

func TestInterpretAgainstStubServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"normalized_data\":{\"customer\":\"Bob\"},\"confidence\":{\"customer\":0.9},\"missing_fields\":[],\"notes\":\"\"}"}}]}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	outcome, err := client.Interpret(context.Background(), llm.Request{
		Data:   "customer Bob ordered a laptop",
		Schema: map[string]any{"customer": "string"},
	})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if outcome.NormalizedData["customer"] != "Bob" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
