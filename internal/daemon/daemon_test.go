package daemon_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/daemon"
	"clipforge/internal/logging"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
	"clipforge/internal/testsupport"
	"clipforge/internal/watcher"
)

type countingProducer struct {
	runs atomic.Int32
}

func (p *countingProducer) Produce(ctx context.Context, contentID string) error {
	p.runs.Add(1)
	return nil
}

func newTestDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *store.Store, *taskqueue.Queue, *countingProducer) {
	t.Helper()
	st, queue := testsupport.MustOpenQueue(t, cfg)
	producer := &countingProducer{}
	w := watcher.New(cfg, queue, producer, logging.NewNop())
	d, err := daemon.New(cfg, st, queue, w, nil, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	return d, st, queue, producer
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func enqueueProduce(t *testing.T, queue *taskqueue.Queue, contentID string) int64 {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"content_id": contentID})
	id, err := queue.Enqueue(context.Background(), taskqueue.TypeProduce, payload)
	if err != nil {
		t.Fatalf("enqueue produce task: %v", err)
	}
	return id
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _, _, _ := newTestDaemon(t, cfg)
	defer first.Stop()

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	second, _, _, _ := newTestDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail to acquire the lock")
	}

	first.Stop()

	// The lock is released on Stop, so a fresh instance can start.
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start after lock release failed: %v", err)
	}
	second.Stop()
}

func TestDaemonProcessesQueuedTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrency(2))
	d, _, queue, producer := newTestDaemon(t, cfg)

	ctx := context.Background()
	taskID := enqueueProduce(t, queue, "content-001")

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, 10*time.Second, func() bool {
		task, err := queue.Get(ctx, taskID)
		return err == nil && task != nil && task.Status == taskqueue.StatusCompleted
	})
	d.Stop()

	if producer.runs.Load() != 1 {
		t.Fatalf("expected exactly one production run, got %d", producer.runs.Load())
	}
}

func TestDaemonStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _, queue, _ := newTestDaemon(t, cfg)
	defer d.Stop()

	ctx := context.Background()
	enqueueProduce(t, queue, "content-002")

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Running {
		t.Fatal("daemon should not report running before Start")
	}
	if status.Tasks[taskqueue.StatusPending] != 1 {
		t.Fatalf("expected 1 pending task, got %d", status.Tasks[taskqueue.StatusPending])
	}
	if status.DatabasePath == "" || status.LockFilePath == "" {
		t.Fatalf("expected paths in status, got %+v", status)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status after Start failed: %v", err)
	}
	if !status.Running {
		t.Fatal("daemon should report running after Start")
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _, _, _ := newTestDaemon(t, cfg)
	defer d.Stop()

	sent, message, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification returned error: %v", err)
	}
	if sent {
		t.Fatal("notification should not be sent without a configured topic")
	}
	if message != "ntfy topic not configured" {
		t.Fatalf("unexpected message: %q", message)
	}
}
