package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/richardliu001/reliability-core/internal/asyncqueue"
	"github.com/richardliu001/reliability-core/internal/budget"
	"github.com/richardliu001/reliability-core/internal/config"
)

// RunWorkflowJobName is the async job the runner schedules to continue a
// workflow that needs rescheduling.
const RunWorkflowJobName = "workflow_continue"

// Runner is the behaviour workflow engine (C11).
type Runner struct {
	workflows *Repository
	ledger    *Ledger
	registry  *Registry
	queue     asyncqueue.Queue
	budgetCfg budget.Config
	cfg       config.WorkflowConfig
	log       *zap.SugaredLogger
}

// NewRunner wires the Runner's collaborators.
func NewRunner(workflows *Repository, ledger *Ledger, registry *Registry, queue asyncqueue.Queue, budgetCfg budget.Config, cfg config.WorkflowConfig, log *zap.SugaredLogger) *Runner {
	return &Runner{workflows: workflows, ledger: ledger, registry: registry, queue: queue, budgetCfg: budgetCfg, cfg: cfg, log: log}
}

// RegisterContinuationHandler wires the queue's RunWorkflowJobName to this
// Runner's RunByID.
func RegisterContinuationHandler(q *asyncqueue.InProcessQueue, r *Runner) {
	q.RegisterHandler(RunWorkflowJobName, func(ctx context.Context, job asyncqueue.Job) error {
		payload, ok := job.Payload.(map[string]any)
		if !ok {
			return fmt.Errorf("workflow: malformed continuation payload")
		}
		idFloat, ok := payload["workflow_id"].(float64)
		if !ok {
			return fmt.Errorf("workflow: continuation payload missing workflow_id")
		}
		return r.RunByID(ctx, uint64(idFloat))
	})
}

// RunAll executes the first of workflows synchronously and schedules the
// rest with zero delay (fan-out), per §4.11's opening paragraph.
func (r *Runner) RunAll(ctx context.Context, workflows []*Workflow) error {
	for i, wf := range workflows {
		if i == 0 {
			if err := r.Run(ctx, wf); err != nil {
				return err
			}
			continue
		}
		if _, err := r.workflows.Save(ctx, wf); err != nil {
			return err
		}
		if err := r.enqueueContinuation(ctx, wf.ID); err != nil {
			r.log.Errorw("schedule secondary workflow failed", "workflow_id", wf.ID, "error", err)
		}
	}
	return nil
}

// RunByID loads a workflow and runs it.
func (r *Runner) RunByID(ctx context.Context, id uint64) error {
	wf, err := r.workflows.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return r.Run(ctx, wf)
}

// Run executes the per-workflow loop (§4.11 step 2).
func (r *Runner) Run(ctx context.Context, wf *Workflow) error {
	if wf.ID == 0 {
		if _, err := r.workflows.Save(ctx, wf); err != nil {
			return err
		}
	}

	tracker := budget.NewTracker(r.budgetCfg, time.Now())
	rescheduleInterval := time.Duration(r.cfg.RescheduleInterval) * time.Second

	for !wf.IsComplete && !wf.IsFailed {
		stepConfig, err := wf.GetCurrent()
		if err != nil {
			return err
		}
		previous := wf.GetCurrentResult()

		behaviour, err := r.registry.Behaviour(stepConfig)
		if err != nil {
			return err
		}

		items, err := r.ensureWorkItems(ctx, wf, stepConfig, behaviour)
		if err != nil {
			return err
		}

		result, err := r.executeWithLedger(ctx, wf, stepConfig, behaviour, previous, items, tracker)
		if err != nil {
			return err
		}

		wf.MaybeAdvance(result)
		if result.Status == StatusFailed {
			// A failed step keeps the cursor, so the stored result carries
			// the step's failure history for the retry budget.
			result = *wf.GetCurrentResult()
		}

		switch {
		case result.Status == StatusWaiting:
			if _, err := r.workflows.Save(ctx, wf); err != nil {
				return err
			}
			return nil
		case r.needsRescheduling(result):
			if _, err := r.workflows.Save(ctx, wf); err != nil {
				return err
			}
			return r.reschedule(ctx, wf.ID, rescheduleInterval)
		case result.Status == StatusFailed:
			wf.IsFailed = true
		}
	}

	_, err := r.workflows.Save(ctx, wf)
	return err
}

// ensureWorkItems implements §4.11 step 2b: generate once per step,
// reused thereafter (R2).
func (r *Runner) ensureWorkItems(ctx context.Context, wf *Workflow, cfg BehaviourConfig, behaviour Behaviour) (List, error) {
	existing, err := r.ledger.GetForStep(ctx, wf.ID, wf.CurrentIdx, wf.CurrentPhase)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	seeds, err := behaviour.GenerateWorkItems(wf, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate work items: %w", err)
	}
	items := make(List, 0, len(seeds))
	for _, seed := range seeds {
		item := WorkItem{
			WorkflowID:   wf.ID,
			BehaviourIdx: wf.CurrentIdx,
			Phase:        wf.CurrentPhase,
			ItemKey:      seed.ItemKey,
			Status:       ItemPending,
			Payload:      seed.Payload,
			BlogID:       wf.BlogID,
		}
		if err := r.ledger.Save(ctx, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// executeWithLedger implements §4.11 step 2c.
func (r *Runner) executeWithLedger(ctx context.Context, wf *Workflow, cfg BehaviourConfig, behaviour Behaviour, previous *ExecutionResult, items List, tracker *budget.Tracker) (ExecutionResult, error) {
	batchSize := 1
	if cfg.IsBatchable() {
		batchSize = cfg.DefaultBatchSize()
		if batchSize <= 0 {
			batchSize = 1
		}
	}

	chunkSuccess, chunkError := 0, 0
	pending := items.Pending().Take(batchSize)

	for i := range pending {
		item := pending[i]
		execResult, err := behaviour.ExecuteOne(cfg, &item, previous)
		if err != nil {
			execResult = ExecutionResult{Status: StatusFailed, Success: false}
			item.LastError = err.Error()
		}
		item.Attempts++
		item.Status = execResult.ToWorkItemStatus()
		if item.Status == ItemFailed && item.LastError == "" {
			item.LastError = "execution failed"
		}
		if err := r.ledger.Save(ctx, &item); err != nil {
			return ExecutionResult{}, err
		}
		if item.Status == ItemDone || item.Status == ItemSkipped {
			chunkSuccess++
		} else {
			chunkError++
		}

		if item.Status == ItemWaiting || item.Status == ItemFailed || tracker.Exceeded() {
			break
		}
	}

	reloaded, err := r.ledger.GetForStep(ctx, wf.ID, wf.CurrentIdx, wf.CurrentPhase)
	if err != nil {
		return ExecutionResult{}, err
	}

	result := ExecutionResult{
		Type:         cfg.PayloadTag(),
		Phase:        wf.CurrentPhase,
		Timestamp:    r.now(),
		BatchSuccess: chunkSuccess,
		BatchError:   chunkError,
		Status:       aggregateToExecutionStatus(reloaded.AggregateStatus()),
	}
	result.Success = result.Status == StatusCompleted

	if result.Status == StatusFailed {
		result = r.considerFork(ctx, wf, cfg, reloaded.Failed(), result)
	}
	return result, nil
}

func aggregateToExecutionStatus(s ItemStatus) ExecutionStatus {
	switch s {
	case ItemPending:
		return StatusBatched
	case ItemWaiting:
		return StatusWaiting
	case ItemFailed:
		return StatusFailed
	default:
		return StatusCompleted
	}
}

// considerFork implements §4.11.1.
func (r *Runner) considerFork(ctx context.Context, wf *Workflow, cfg BehaviourConfig, failedItems List, result ExecutionResult) ExecutionResult {
	if len(failedItems) == 0 || !cfg.IsBatchable() || wf.IsFork() {
		return result
	}

	child := &Workflow{
		RefID:          wf.RefID,
		RefType:        wf.RefType,
		RootWorkflowID: &wf.ID,
		Configs:        []BehaviourConfig{cfg},
		CurrentPhase:   1,
		Meta:           wf.Meta,
		BlogID:         wf.BlogID,
	}
	if _, err := r.workflows.Save(ctx, child); err != nil {
		r.log.Errorw("fork: save child workflow failed", "error", err)
		return result
	}

	ids := make([]uint64, len(failedItems))
	for i, item := range failedItems {
		ids[i] = item.ID
	}
	if err := r.ledger.TransferToChild(ctx, ids, child.ID); err != nil {
		r.log.Errorw("fork: transfer items failed", "error", err)
		return result
	}

	forkDelay := time.Duration(r.cfg.ForkDelaySeconds) * time.Second
	if err := r.scheduleAt(ctx, child.ID, forkDelay); err != nil {
		r.log.Errorw("fork: reschedule child failed", "error", err)
	}

	result.Status = StatusForked
	result.Success = true
	return result
}

// needsRescheduling implements §4.11.2.
func (r *Runner) needsRescheduling(result ExecutionResult) bool {
	if result.Status == StatusBatched {
		return true
	}
	if result.Status == StatusFailed {
		return result.HistoryFailureCount() < r.cfg.MaxRetries
	}
	return false
}

func (r *Runner) reschedule(ctx context.Context, workflowID uint64, interval time.Duration) error {
	return r.scheduleAt(ctx, workflowID, interval)
}

func (r *Runner) enqueueContinuation(ctx context.Context, workflowID uint64) error {
	return r.scheduleAt(ctx, workflowID, 0)
}

func (r *Runner) scheduleAt(ctx context.Context, workflowID uint64, delay time.Duration) error {
	if r.queue == nil {
		return nil
	}
	job := asyncqueue.Job{Name: RunWorkflowJobName, Payload: map[string]any{"workflow_id": float64(workflowID)}}
	if delay <= 0 {
		return r.queue.EnqueueAsync(ctx, job)
	}
	return r.queue.ScheduleSingle(ctx, time.Now().Add(delay), job)
}

func (r *Runner) now() time.Time { return time.Now().UTC() }
