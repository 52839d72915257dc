package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"clipforge/internal/logging"
	"clipforge/internal/services"
	"clipforge/internal/services/llm"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
)

const approvalPrompt = `You review short-form video content plans before production.
Given a plan summary, decide whether it should proceed.
Respond with JSON only: {"approve": true|false, "reason": "..."}.`

// Decider is the opaque decision function behind plan approval.
type Decider interface {
	Decide(ctx context.Context, systemPrompt, description string) (llm.Decision, error)
}

// Planner advances content waiting for approval. Approved items become
// planned and get a produce task; rejected items are cancelled with the
// reason recorded. A human decision can bypass the model entirely through
// Approve and Reject, which makes the approval pause resumable from
// persisted state alone.
type Planner struct {
	store   *store.Store
	queue   *taskqueue.Queue
	decider Decider
	logger  *slog.Logger
}

// New builds a planner.
func New(st *store.Store, queue *taskqueue.Queue, decider Decider, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{
		store:   st,
		queue:   queue,
		decider: decider,
		logger:  logger.With(logging.String(logging.FieldComponent, "planner")),
	}
}

// RunOnce reviews up to limit items awaiting approval. Per-item failures
// are logged and skipped so one bad item never blocks the rest of the
// batch. It returns the number of items approved.
func (p *Planner) RunOnce(ctx context.Context, limit int) (int, error) {
	items, err := p.store.PollContent(ctx, store.ContentPendingApproval, limit)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "planner", "poll", "poll pending approval", err)
	}

	approved := 0
	for _, item := range items {
		itemCtx := services.WithContentID(ctx, item.ContentID)
		logger := logging.WithContext(itemCtx, p.logger)

		decision, err := p.decider.Decide(itemCtx, approvalPrompt, describePlan(item))
		if err != nil {
			logger.Warn("approval decision failed", logging.Error(err))
			continue
		}
		if decision.Fallback {
			logger.Info("using fallback approval decision",
				logging.Bool("approve", decision.Approve))
		}

		if !decision.Approve {
			if err := p.Reject(itemCtx, item.ContentID, decision.Reason); err != nil {
				logger.Warn("reject failed", logging.Error(err))
			}
			continue
		}
		if err := p.Approve(itemCtx, item.ContentID); err != nil {
			logger.Warn("approve failed", logging.Error(err))
			continue
		}
		approved++
	}
	return approved, nil
}

// Approve marks an item planned and enqueues its produce task. It accepts
// either the model's decision or an external human one.
func (p *Planner) Approve(ctx context.Context, contentID string) error {
	rows, err := p.store.TransitionContent(ctx, contentID, store.ContentPendingApproval, store.ContentPlanned)
	if err != nil {
		return services.Wrap(services.ErrTransient, "planner", "approve", "transition to planned", err)
	}
	if rows == 0 {
		return services.Wrap(services.ErrPrecondition, "planner", "approve",
			fmt.Sprintf("content %q is not pending approval", contentID), nil)
	}

	payload, _ := json.Marshal(map[string]string{"content_id": contentID})
	if _, err := p.queue.Enqueue(ctx, taskqueue.TypeProduce, payload); err != nil {
		// Partial application is tolerable: the item is planned and will be
		// found by a status poll even without the task.
		logging.WithContext(ctx, p.logger).Warn("failed to enqueue produce task", logging.Error(err))
	}
	logging.WithContext(ctx, p.logger).Info("plan approved")
	return nil
}

// Reject cancels an item awaiting approval and records the reason.
func (p *Planner) Reject(ctx context.Context, contentID, reason string) error {
	rows, err := p.store.TransitionContent(ctx, contentID, store.ContentPendingApproval, store.ContentCancelled)
	if err != nil {
		return services.Wrap(services.ErrTransient, "planner", "reject", "transition to cancelled", err)
	}
	if rows == 0 {
		return services.Wrap(services.ErrPrecondition, "planner", "reject",
			fmt.Sprintf("content %q is not pending approval", contentID), nil)
	}
	logging.WithContext(ctx, p.logger).Info("plan rejected",
		logging.String("reason", strings.TrimSpace(reason)))
	return nil
}

func describePlan(item *store.Content) string {
	var b strings.Builder
	fmt.Fprintf(&b, "content id: %s\n", item.ContentID)
	if item.ContentFormat != "" {
		fmt.Fprintf(&b, "format: %s\n", item.ContentFormat)
	}
	if item.ScriptLanguage != "" {
		fmt.Fprintf(&b, "language: %s\n", item.ScriptLanguage)
	}
	if item.HypothesisID != "" {
		fmt.Fprintf(&b, "hypothesis: %s\n", item.HypothesisID)
	}
	fmt.Fprintf(&b, "sections: %d\n", len(item.Sections))
	for _, section := range item.Sections {
		script := strings.TrimSpace(section.Script)
		if len(script) > 120 {
			script = script[:120] + "..."
		}
		fmt.Fprintf(&b, "  %d. component=%s script=%q\n", section.Index, section.ComponentRef, script)
	}
	return b.String()
}
