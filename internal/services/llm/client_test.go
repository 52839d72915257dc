package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"clipforge/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := config.Default()
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.BaseURL = server.URL
	cfg.LLM.Model = "test-model"
	cfg.LLM.AutoApprove = true
	return NewClient(&cfg, WithSleeper(func(time.Duration) {}))
}

func completionBody(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q}}]}`, content)
}

func TestDecideParsesModelOutput(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody(`{"approve":false,"reason":"hook too weak"}`))
	}))

	decision, err := client.Decide(context.Background(), "approve or reject", "plan for content-1")
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if decision.Fallback {
		t.Fatal("expected a model decision, not a fallback")
	}
	if decision.Approve {
		t.Fatal("expected rejection")
	}
	if decision.Reason != "hook too weak" {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}

func TestDecideToleratesCodeFences(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fenced := "```json\n{\"approve\":true,\"reason\":\"ok\"}\n```"
		fmt.Fprint(w, completionBody(fenced))
	}))

	decision, err := client.Decide(context.Background(), "approve or reject", "plan")
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if decision.Fallback || !decision.Approve {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestDecideMalformedOutputFallsBack(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody("I think this plan looks fine overall."))
	}))

	decision, err := client.Decide(context.Background(), "approve or reject", "plan")
	if err != nil {
		t.Fatalf("Decide must not error on malformed output: %v", err)
	}
	if !decision.Fallback {
		t.Fatal("expected fallback decision")
	}
	if !decision.Approve {
		t.Fatal("auto_approve fallback should approve")
	}
}

func TestDecideServerErrorFallsBackAfterRetries(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))

	decision, err := client.Decide(context.Background(), "approve or reject", "plan")
	if err != nil {
		t.Fatalf("Decide must not error on unavailable model: %v", err)
	}
	if !decision.Fallback {
		t.Fatal("expected fallback decision")
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestDecideUnconfiguredKeySkipsModel(t *testing.T) {
	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.LLM.BaseURL = server.URL
	cfg.LLM.AutoApprove = false
	client := NewClient(&cfg)

	decision, err := client.Decide(context.Background(), "approve or reject", "plan")
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if !decision.Fallback {
		t.Fatal("expected fallback decision")
	}
	if decision.Approve {
		t.Fatal("fallback must honor auto_approve=false")
	}
	if called.Load() {
		t.Fatal("no request should be issued without an api key")
	}
}

func TestDecideCancelledContextSurfaces(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody(`{"approve":true}`))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Decide(ctx, "approve or reject", "plan"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestDecodeModelJSONVariants(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"plain object", `{"approve":true}`, false},
		{"fenced", "```json\n{\"approve\":true}\n```", false},
		{"prose wrapped", `Decision: {"approve":true} as requested`, false},
		{"empty", "", true},
		{"no json", "approved!", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var target struct {
				Approve bool `json:"approve"`
			}
			err := DecodeModelJSON(tc.payload, &target)
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !target.Approve {
					t.Fatal("payload not decoded")
				}
			}
		})
	}
}
