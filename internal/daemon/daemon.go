package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/planner"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
	"clipforge/internal/watcher"
)

const plannerBatchLimit = 10

// Daemon hosts the background stages and enforces single-instance execution.
// It owns the daemon lock, starts the produce watcher and the planner poll
// loop, and drains both on Stop.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	queue    *taskqueue.Queue
	watcher  *watcher.Watcher
	planner  *planner.Planner
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	InFlight     int
	Tasks        map[taskqueue.Status]int
	Content      store.HealthSummary
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, queue *taskqueue.Queue, w *watcher.Watcher, p *planner.Planner, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || queue == nil || w == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, queue, watcher, and logger")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "clipforged.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    st,
		queue:    queue,
		watcher:  w,
		planner:  p,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the background loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clipforge daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.running.Store(true)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.watcher.Run(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("watcher stopped", logging.Error(err))
			if notifyErr := d.notifier.NotifyError(context.WithoutCancel(d.ctx), err, "watcher"); notifyErr != nil {
				d.logger.Warn("error notification failed", logging.Error(notifyErr))
			}
		}
	}()

	if d.planner != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.plannerLoop(d.ctx)
		}()
	}

	d.logger.Info("clipforge daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels the background loops, waits for in-flight work to drain, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("clipforge daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// plannerLoop polls for pending-approval content on the shared workflow
// interval. Per-item decision failures are logged inside RunOnce; only the
// poll itself can fail here.
func (d *Daemon) plannerLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Workflow.QueuePollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.planner.RunOnce(ctx, plannerBatchLimit); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("planner poll failed", logging.Error(err))
			}
		}
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	tasks, err := d.queue.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("queue stats: %w", err)
	}
	content, err := d.store.Health(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("content health: %w", err)
	}
	return Status{
		Running:      d.running.Load(),
		InFlight:     d.watcher.InFlight(),
		Tasks:        tasks,
		Content:      content,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}, nil
}

// ListTasks returns queue tasks filtered by optional statuses.
func (d *Daemon) ListTasks(ctx context.Context, statuses []taskqueue.Status) ([]*taskqueue.Task, error) {
	return d.queue.List(ctx, statuses...)
}

// RetryFailed resets failed tasks (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	return d.queue.RetryFailed(ctx, ids...)
}

// ClearCompleted removes completed tasks from the queue.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.queue.ClearCompleted(ctx)
}

// ClearFailed removes failed tasks from the queue.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.queue.ClearFailed(ctx)
}

// ReclaimStale returns expired in-flight claims to pending immediately,
// without waiting for the next watcher cycle.
func (d *Daemon) ReclaimStale(ctx context.Context) (int64, error) {
	timeout := time.Duration(d.cfg.Workflow.HeartbeatTimeout) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return d.queue.ReclaimStale(ctx, time.Now().Add(-timeout))
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
