package alerting

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recordingSender struct {
	contents []string
	err      error
}

func (s *recordingSender) Send(ctx context.Context, content string) error {
	s.contents = append(s.contents, content)
	return s.err
}

func TestFanoutNotifiesAllChannels(t *testing.T) {
	sender := &recordingSender{}
	dispatcher := NewFanout(&DingTalkNotifier{Sender: sender})

	event := Event{
		EscalationID: "esc-1",
		Priority:     "urgent",
		Reason:       "confidence below threshold",
		AgentID:      "agent-1",
		OccurredAt:   time.Now(),
	}
	if err := dispatcher.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.contents) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.contents))
	}
	if !strings.Contains(sender.contents[0], "esc-1") {
		t.Fatalf("message missing escalation id: %q", sender.contents[0])
	}
}

func TestFanoutSkipsNilAndUnconfigured(t *testing.T) {
	dispatcher := NewFanout(nil, &SlackNotifier{})
	if err := dispatcher.Notify(context.Background(), Event{EscalationID: "esc-2"}); err != nil {
		t.Fatalf("unconfigured notifiers should be skipped, got %v", err)
	}
}

func TestDingTalkWebhookSend(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhook := NewDingTalkWebhook(server.URL)
	if err := webhook.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["msgtype"] != "text" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestSlackWebhookRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	webhook := NewSlackWebhook(server.URL)
	if err := webhook.Send(context.Background(), "#alerts", "boom"); err == nil {
		t.Fatalf("expected error on 500 response")
	}
}
