package jobclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"clipforge/internal/services"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		Name:          "mediagen",
		BaseURL:       server.URL,
		APIKey:        "test-key",
		JobTimeout:    2 * time.Second,
		PollInterval:  10 * time.Millisecond,
		RetryAttempts: 3,
	}, WithSleeper(func(time.Duration) {}))
}

func TestSubmitAndWaitSynchronousResult(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header: %q", got)
		}
		fmt.Fprint(w, `{"artifact_ref":"https://cdn.example/clip.mp4"}`)
	}))

	ref, err := client.SubmitAndWait(context.Background(), "/v1/generate", Request{PrimaryInputRef: "asset-1"})
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if ref != "https://cdn.example/clip.mp4" {
		t.Fatalf("unexpected artifact ref %q", ref)
	}
}

func TestSubmitAndWaitPollsUntilSucceeded(t *testing.T) {
	var polls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			fmt.Fprint(w, `{"job_id":"job-42"}`)
		case strings.HasSuffix(r.URL.Path, "/job-42"):
			if polls.Add(1) < 3 {
				fmt.Fprint(w, `{"status":"processing"}`)
				return
			}
			fmt.Fprint(w, `{"status":"succeeded","artifact_ref":"https://cdn.example/out.mp4"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ref, err := client.SubmitAndWait(context.Background(), "/v1/generate", Request{PrimaryInputRef: "asset-1"})
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if ref != "https://cdn.example/out.mp4" {
		t.Fatalf("unexpected artifact ref %q", ref)
	}
	if polls.Load() < 3 {
		t.Fatalf("expected at least 3 status polls, got %d", polls.Load())
	}
}

func TestTransientServerErrorsAreRetried(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"artifact_ref":"https://cdn.example/retry.mp4"}`)
	}))

	ref, err := client.SubmitAndWait(context.Background(), "/v1/generate", Request{PrimaryInputRef: "asset-1"})
	if err != nil {
		t.Fatalf("SubmitAndWait failed after retries: %v", err)
	}
	if ref != "https://cdn.example/retry.mp4" {
		t.Fatalf("unexpected artifact ref %q", ref)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestClientErrorsFailFast(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad request: unknown voice", http.StatusBadRequest)
	}))

	_, err := client.SubmitAndWait(context.Background(), "/v1/generate", Request{PrimaryInputRef: "asset-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got: %v", err)
	}
	if attempts.Load() != 1 {
		t.Fatalf("4xx must not be retried, saw %d attempts", attempts.Load())
	}
}

func TestRetriesExhaustedReportTransient(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "still broken", http.StatusInternalServerError)
	}))

	_, err := client.SubmitAndWait(context.Background(), "/v1/generate", Request{PrimaryInputRef: "asset-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestJobFailureSurfacesRemoteMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"job_id":"job-9"}`)
			return
		}
		fmt.Fprint(w, `{"status":"failed","error":"render farm rejected input"}`)
	}))

	_, err := client.SubmitAndWait(context.Background(), "/v1/generate", Request{PrimaryInputRef: "asset-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got: %v", err)
	}
	if !strings.Contains(err.Error(), "render farm rejected input") {
		t.Fatalf("remote message lost: %v", err)
	}
}

func TestJobTimeout(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"job_id":"job-stuck"}`)
			return
		}
		fmt.Fprint(w, `{"status":"processing"}`)
	}))
	client.cfg.JobTimeout = 50 * time.Millisecond

	_, err := client.SubmitAndWait(context.Background(), "/v1/generate", Request{PrimaryInputRef: "asset-1"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got: %v", err)
	}
}

func TestMissingPrimaryInputRejectedBeforeRequest(t *testing.T) {
	var called atomic.Bool
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))

	_, err := client.SubmitAndWait(context.Background(), "/v1/generate", Request{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got: %v", err)
	}
	if called.Load() {
		t.Fatal("no request should be issued for an invalid input")
	}
}

func TestDelayLadderIncreasesAndCaps(t *testing.T) {
	client := New(Config{Name: "x", BaseURL: "http://unused"})
	delays := []time.Duration{
		client.delayFor(1),
		client.delayFor(2),
		client.delayFor(3),
		client.delayFor(7),
	}
	want := []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second, 10 * time.Second}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: got %s want %s", i+1, delays[i], want[i])
		}
	}
}
