package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"clipforge/internal/config"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
	"clipforge/internal/testsupport"
)

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}

func TestConfigInitCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCLI(t, configPath, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// A second init without --overwrite must refuse to clobber the file.
	if _, err := runCLI(t, configPath, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when target already exists")
	}
}

func TestQueueStatusEmpty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	out, err := runCLI(t, configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestQueueListAndRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	_, queue := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	id, err := queue.Enqueue(ctx, taskqueue.TypeProduce, []byte(`{"content_id":"content-001"}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, err := queue.ClaimOne(ctx, taskqueue.TypeProduce)
	if err != nil || task == nil {
		t.Fatalf("claim: task=%v err=%v", task, err)
	}
	if err := queue.Fail(ctx, id, "generation timed out"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	out, err := runCLI(t, configPath, "queue", "list", "--status", "failed")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "generation timed out")

	out, err = runCLI(t, configPath, "queue", "retry")
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed task")

	refreshed, err := queue.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if refreshed.Status != taskqueue.StatusPending {
		t.Fatalf("expected task pending after retry, got %s", refreshed.Status)
	}
}

func TestStatusOverviewListsContent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewPlannedContent(t, st, "content-042", testsupport.ThreeSections())

	out, err := runCLI(t, configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "content-042")
	requireContains(t, out, "Planned: 1")
}

func TestProduceDryRunLeavesStatusUntouched(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewPlannedContent(t, st, "content-007", testsupport.ThreeSections())

	out, err := runCLI(t, configPath, "produce", "--dry-run", "content-007")
	if err != nil {
		t.Fatalf("produce --dry-run: %v", err)
	}
	requireContains(t, out, "dry-run")

	content, err := st.GetContent(context.Background(), "content-007")
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if content.Status != store.ContentPlanned {
		t.Fatalf("dry-run must not change status, got %s", content.Status)
	}
}

func TestProduceRequiresTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	if _, err := runCLI(t, configPath, "produce"); err == nil {
		t.Fatal("expected error without content id or --batch")
	}
}

func TestComponentsListEmpty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	out, err := runCLI(t, configPath, "components", "list")
	if err != nil {
		t.Fatalf("components list: %v", err)
	}
	requireContains(t, out, "No components")
}
