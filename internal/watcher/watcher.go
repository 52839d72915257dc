package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/services"
	"clipforge/internal/taskqueue"
)

// Producer runs the production pipeline for one content id.
type Producer interface {
	Produce(ctx context.Context, contentID string) error
}

// Watcher is the polling control loop of the production stage. Every cycle
// it reclaims stale claims, computes its free capacity, claims up to that
// many produce tasks, and starts each as an independent run. On shutdown it
// stops claiming immediately and waits for in-flight runs to finish; a run
// already driving external side effects is never force-cancelled.
type Watcher struct {
	queue    *taskqueue.Queue
	producer Producer
	logger   *slog.Logger

	maxConcurrency    int
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// New builds a watcher from configuration.
func New(cfg *config.Config, queue *taskqueue.Queue, producer Producer, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	maxConcurrency := cfg.Workflow.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Watcher{
		queue:             queue,
		producer:          producer,
		logger:            logger.With(logging.String(logging.FieldComponent, "watcher")),
		maxConcurrency:    maxConcurrency,
		pollInterval:      time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
	}
}

type producePayload struct {
	ContentID string `json:"content_id"`
}

// Run polls until the context is cancelled, then drains. It returns once
// every in-flight run has reached a terminal state.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.inFlight == nil {
		w.inFlight = make(map[string]struct{})
	}
	w.mu.Unlock()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("watcher started",
		logging.Int("max_concurrency", w.maxConcurrency),
		logging.Duration("poll_interval", w.pollInterval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher draining", logging.Int("in_flight", w.InFlight()))
			w.wg.Wait()
			w.logger.Info("watcher stopped")
			return nil
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Watcher) cycle(ctx context.Context) {
	if reclaimed, err := w.queue.ReclaimStale(ctx, time.Now().Add(-w.heartbeatTimeout)); err != nil {
		w.logger.Warn("stale claim reclaim failed", logging.Error(err))
	} else if reclaimed > 0 {
		w.logger.Info("reclaimed stale tasks", logging.Int64("count", reclaimed))
	}

	slots := w.maxConcurrency - w.InFlight()
	if slots <= 0 {
		w.logger.Debug("at capacity, skipping cycle", logging.Int("in_flight", w.InFlight()))
		return
	}

	claimed := 0
	for i := 0; i < slots; i++ {
		if ctx.Err() != nil {
			break
		}
		task, err := w.queue.ClaimOne(ctx, taskqueue.TypeProduce)
		if err != nil {
			w.logger.Error("claim failed", logging.Error(err))
			break
		}
		if task == nil {
			break
		}
		claimed++
		w.start(ctx, task)
	}
	w.logger.Debug("poll cycle complete",
		logging.Int("claimed", claimed),
		logging.Int("in_flight", w.InFlight()))
}

func (w *Watcher) start(ctx context.Context, task *taskqueue.Task) {
	var payload producePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil || strings.TrimSpace(payload.ContentID) == "" {
		w.failTask(ctx, task.ID, "malformed produce payload")
		return
	}
	contentID := payload.ContentID

	w.mu.Lock()
	if _, running := w.inFlight[contentID]; running {
		w.mu.Unlock()
		// A poll raced a still-running prior claim for the same content.
		// Retrying a duplicate is the producer's call, not ours.
		w.logger.Warn("duplicate produce task for in-flight content",
			logging.String(logging.FieldContentID, contentID),
			logging.Int64(logging.FieldTaskID, task.ID))
		w.failTask(ctx, task.ID, fmt.Sprintf("content %s already in flight", contentID))
		return
	}
	w.inFlight[contentID] = struct{}{}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.runTask(ctx, task.ID, contentID)
}

// runTask executes one production run. The run detaches from the poll
// loop's cancellation so shutdown drains instead of aborting side effects.
func (w *Watcher) runTask(ctx context.Context, taskID int64, contentID string) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		delete(w.inFlight, contentID)
		w.mu.Unlock()
	}()

	runCtx := context.WithoutCancel(ctx)
	runCtx = services.WithTaskID(runCtx, taskID)
	runCtx = services.WithContentID(runCtx, contentID)
	runCtx = services.WithRequestID(runCtx, uuid.NewString())
	logger := logging.WithContext(runCtx, w.logger)

	stopHeartbeat := w.heartbeatLoop(runCtx, taskID)
	defer stopHeartbeat()

	logger.Info("run started")
	if err := w.producer.Produce(runCtx, contentID); err != nil {
		logger.Error("run failed", logging.Error(err))
		w.failTask(runCtx, taskID, err.Error())
		return
	}
	if err := w.queue.Complete(runCtx, taskID); err != nil {
		logger.Error("failed to complete task", logging.Error(err))
		return
	}
	logger.Info("run finished")
}

// heartbeatLoop refreshes the task's heartbeat so the reclaim pass can tell
// a live run from a dead consumer.
func (w *Watcher) heartbeatLoop(ctx context.Context, taskID int64) func() {
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	interval := w.heartbeatInterval
	if interval <= 0 {
		return stop
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := w.queue.UpdateHeartbeat(ctx, taskID); err != nil {
					w.logger.Warn("heartbeat update failed",
						logging.Int64(logging.FieldTaskID, taskID),
						logging.Error(err))
				}
			}
		}
	}()
	return stop
}

func (w *Watcher) failTask(ctx context.Context, taskID int64, message string) {
	if err := w.queue.Fail(context.WithoutCancel(ctx), taskID, message); err != nil {
		w.logger.Error("failed to mark task failed",
			logging.Int64(logging.FieldTaskID, taskID),
			logging.Error(err))
	}
}

// InFlight reports the number of runs currently executing.
func (w *Watcher) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inFlight)
}
