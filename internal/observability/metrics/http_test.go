package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRenderExposesCountersAndHistogram(t *testing.T) {
	ObserveHTTPRequest("/api/v1/executions", "POST", 201, 30*time.Millisecond)
	ObserveHTTPRequest("/api/v1/executions", "POST", 503, 10*time.Millisecond)
	ObserveTransition("execution", "completed")

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body := recorder.Body.String()
	for _, want := range []string{
		`agentplane_http_requests_total{handler="/api/v1/executions",method="POST",code="201"}`,
		`agentplane_http_request_errors_total{handler="/api/v1/executions",method="POST"}`,
		`agentplane_lifecycle_transitions_total{resource="execution",status="completed"}`,
		`agentplane_http_request_duration_seconds_bucket`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
	if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
}
