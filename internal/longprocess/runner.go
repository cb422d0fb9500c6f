package longprocess

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/richardliu001/reliability-core/internal/asyncqueue"
	"github.com/richardliu001/reliability-core/internal/budget"
	"github.com/richardliu001/reliability-core/internal/correlation"
	"github.com/richardliu001/reliability-core/internal/event"
)

// CommandDispatcher fires Result.Commands, each carrying its own
// correlation propagation (the command's handler re-derives correlation
// from the context it's given).
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd any) error
}

// ContinuationJobName is the async job name scheduled by
// scheduleContinuation (§4.8.5); its payload is {"process_id": id}.
const ContinuationJobName = "longprocess_continue"

// Runner is the saga engine (C8).
type Runner struct {
	repo       *Repository
	registry   *Registry
	codec      *PayloadCodec
	queue      asyncqueue.Queue
	dispatcher CommandDispatcher
	budgetCfg  budget.Config
	log        *zap.SugaredLogger
}

// NewRunner wires the Runner's collaborators.
func NewRunner(repo *Repository, registry *Registry, codec *PayloadCodec, queue asyncqueue.Queue, dispatcher CommandDispatcher, budgetCfg budget.Config, log *zap.SugaredLogger) *Runner {
	return &Runner{repo: repo, registry: registry, codec: codec, queue: queue, dispatcher: dispatcher, budgetCfg: budgetCfg, log: log}
}

// RegisterContinuationHandler wires the queue's ContinuationJobName to
// this Runner's ContinueScheduled, for queues that expose RegisterHandler
// (the in-process queue does).
func RegisterContinuationHandler(q *asyncqueue.InProcessQueue, r *Runner) {
	q.RegisterHandler(ContinuationJobName, func(ctx context.Context, job asyncqueue.Job) error {
		payload, ok := job.Payload.(map[string]any)
		if !ok {
			return fmt.Errorf("longprocess: malformed continuation payload")
		}
		idFloat, ok := payload["process_id"].(float64)
		if !ok {
			return fmt.Errorf("longprocess: continuation payload missing process_id")
		}
		_, err := r.ContinueScheduled(ctx, uint64(idFloat))
		return err
	})
}

// Start begins a new process of the given class.
func (r *Runner) Start(ctx context.Context, class string, businessData any, correlationID string) (*Record, error) {
	proc, steps, err := r.registry.Build(class, businessData)
	if err != nil {
		return nil, err
	}
	businessJSON, err := encodeJSON(businessData)
	if err != nil {
		return nil, fmt.Errorf("encode business data: %w", err)
	}
	if correlationID == "" {
		correlationID = correlation.From(ctx).Get()
	}
	rec := &Record{
		ProcessClass:  class,
		BusinessData:  businessJSON,
		Status:        StatusRunning,
		UndoIndex:     -1,
		CorrelationID: correlationID,
	}
	if err := r.persistSteps(rec, steps); err != nil {
		return nil, err
	}
	if _, err := r.repo.Save(ctx, nil, rec); err != nil {
		return nil, err
	}
	return r.run(ctx, rec, proc, steps, nil)
}

// ContinueScheduled resumes a process previously scheduled via
// scheduleContinuation (§4.8.5).
func (r *Runner) ContinueScheduled(ctx context.Context, processID uint64) (*Record, error) {
	rec, err := r.repo.Find(ctx, processID)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return rec, nil
	}
	ctx = correlation.Into(ctx, correlation.From(ctx))
	correlation.From(ctx).Set(rec.CorrelationID)

	proc, steps, err := r.rehydrate(rec)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, rec, proc, steps, nil)
}

// ResumeOnEvent implements §4.8.4: find the first suspended process
// waiting for ie's class, evaluate match_criteria, and resume it.
func (r *Runner) ResumeOnEvent(ctx context.Context, ie event.IntegrationEvent) (*Record, error) {
	candidates, err := r.repo.FindWaitingFor(ctx, ie.IntegrationAction())
	if err != nil {
		return nil, err
	}
	payload := ie.Payload()
	for i := range candidates {
		rec := &candidates[i]
		criteria := decodeJSONMap(rec.MatchCriteria)
		if !matchesCriteria(criteria, payload) {
			continue
		}

		ctx = correlation.Into(ctx, correlation.From(ctx))
		correlation.From(ctx).Set(rec.CorrelationID)

		proc, steps, err := r.rehydrate(rec)
		if err != nil {
			return nil, err
		}
		steps.Advance()
		rec.StepIndex = steps.StepIndex()
		return r.run(ctx, rec, proc, steps, ie)
	}
	return nil, nil
}

func matchesCriteria(criteria map[string]any, payload map[string]any) bool {
	for k, want := range criteria {
		got, ok := payload[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// run dispatches to the forward or compensation loop depending on
// ProcessSteps.IsCompensating.
func (r *Runner) run(ctx context.Context, rec *Record, proc Process, steps *ProcessSteps, resumeEvent any) (*Record, error) {
	if steps.IsCompensating() {
		return r.executeCompensation(ctx, rec, steps, nil)
	}
	return r.executeForward(ctx, rec, proc, steps, resumeEvent)
}

func (r *Runner) executeForward(ctx context.Context, rec *Record, proc Process, steps *ProcessSteps, resumeEvent any) (*Record, error) {
	tracker := budget.NewTracker(r.budgetCfg, rec.CreatedAt)
	if rec.CreatedAt.IsZero() {
		tracker = budget.NewTracker(r.budgetCfg, time.Now())
	}

	for !steps.IsComplete() {
		step, err := steps.CurrentStep()
		if err != nil {
			return nil, err
		}
		// An async step is rescheduled first; the continuation job
		// (status scheduled) then executes it.
		if step.async && rec.Status != StatusScheduled {
			return r.scheduleContinuation(ctx, rec, steps)
		}

		payload, perr := r.codec.Decode(rec.Payload)
		if perr != nil {
			return nil, perr
		}

		result, stepErr := step.fn(payload, resumeEvent)
		resumeEvent = nil
		if stepErr != nil {
			r.beginCompensation(rec, steps, stepErr.Error())
			if err := r.persist(ctx, rec, steps); err != nil {
				return nil, err
			}
			return r.executeCompensation(ctx, rec, steps, stepErr)
		}

		r.dispatchCommands(ctx, result.Commands)

		if result.Await != nil {
			r.suspendForEvent(rec, result)
			if err := r.persist(ctx, rec, steps); err != nil {
				return nil, err
			}
			return rec, nil
		}

		steps.RecordCheckpoint(step.name, result.Checkpoint)
		steps.Advance()
		rec.StepIndex = steps.StepIndex()
		rec.StepName = step.name
		rec.Status = StatusRunning
		if payloadJSON, err := r.codec.Encode(result.Payload); err == nil {
			rec.Payload = payloadJSON
		}
		if err := r.persist(ctx, rec, steps); err != nil {
			return nil, err
		}

		if tracker.Exceeded() {
			return r.scheduleContinuation(ctx, rec, steps)
		}
	}

	rec.Status = StatusCompleted
	if err := r.persist(ctx, rec, steps); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Runner) executeCompensation(ctx context.Context, rec *Record, steps *ProcessSteps, cause error) (*Record, error) {
	tracker := budget.NewTracker(r.budgetCfg, rec.CreatedAt)
	if rec.CreatedAt.IsZero() {
		tracker = budget.NewTracker(r.budgetCfg, time.Now())
	}

	for steps.UndoIndex() >= 0 {
		undoStep, err := steps.CurrentUndoStep()
		if err != nil {
			return nil, err
		}
		comp, ok := steps.CompensationFor(undoStep.name)
		if !ok {
			steps.AdvanceUndo()
			rec.UndoIndex = steps.UndoIndex()
			if err := r.persist(ctx, rec, steps); err != nil {
				return nil, err
			}
			continue
		}
		if comp.async && rec.Status != StatusScheduled {
			return r.scheduleContinuation(ctx, rec, steps)
		}

		checkpoint, _ := steps.CheckpointFor(undoStep.name)
		result, compErr := comp.fn(checkpoint, cause)
		if compErr != nil {
			rec.Status = StatusFailed
			rec.LastError = fmt.Sprintf("Compensation failed: %v", compErr)
			_ = r.persist(ctx, rec, steps)
			return nil, compErr
		}

		r.dispatchCommands(ctx, result.Commands)

		if result.Await != nil {
			r.suspendForEvent(rec, result)
			if err := r.persist(ctx, rec, steps); err != nil {
				return nil, err
			}
			return rec, nil
		}

		if payloadJSON, err := r.codec.Encode(result.Payload); err == nil {
			rec.Payload = payloadJSON
		}
		steps.AdvanceUndo()
		rec.UndoIndex = steps.UndoIndex()
		rec.Status = StatusRunning
		if err := r.persist(ctx, rec, steps); err != nil {
			return nil, err
		}

		if tracker.Exceeded() {
			return r.scheduleContinuation(ctx, rec, steps)
		}
	}

	steps.FinishUndo()
	rec.UndoIndex = -1
	rec.Status = StatusFailed
	rec.LastError = steps.FailureMsg()
	if err := r.persist(ctx, rec, steps); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Runner) beginCompensation(rec *Record, steps *ProcessSteps, msg string) {
	steps.BeginUndo(msg)
	rec.UndoIndex = steps.UndoIndex()
	rec.FailureMsg = msg
	rec.Status = StatusRunning
}

func (r *Runner) suspendForEvent(rec *Record, result Result) {
	rec.Status = StatusSuspended
	waitingFor := result.Await.EventClass
	rec.WaitingFor = &waitingFor
	criteria, _ := encodeJSON(result.Await.MatchCriteria)
	rec.MatchCriteria = criteria
	if payloadJSON, err := r.codec.Encode(result.Payload); err == nil {
		rec.Payload = payloadJSON
	}
}

// scheduleContinuation implements §4.8.5.
func (r *Runner) scheduleContinuation(ctx context.Context, rec *Record, steps *ProcessSteps) (*Record, error) {
	rec.Status = StatusScheduled
	if err := r.persist(ctx, rec, steps); err != nil {
		return nil, err
	}
	if r.queue != nil {
		job := asyncqueue.Job{Name: ContinuationJobName, Payload: map[string]any{"process_id": float64(rec.ID)}}
		if err := r.queue.EnqueueAsync(ctx, job); err != nil {
			r.log.Errorw("schedule continuation failed", "process_id", rec.ID, "error", err)
		}
	}
	return rec, nil
}

func (r *Runner) dispatchCommands(ctx context.Context, commands []any) {
	if r.dispatcher == nil {
		return
	}
	for _, cmd := range commands {
		if err := r.dispatcher.Dispatch(ctx, cmd); err != nil {
			r.log.Errorw("long process command dispatch failed", "error", err)
		}
	}
}

func (r *Runner) persist(ctx context.Context, rec *Record, steps *ProcessSteps) error {
	if err := r.persistSteps(rec, steps); err != nil {
		return err
	}
	_, err := r.repo.Save(ctx, nil, rec)
	return err
}

func (r *Runner) persistSteps(rec *Record, steps *ProcessSteps) error {
	namesJSON, err := encodeJSON(steps.StepNames())
	if err != nil {
		return err
	}
	compJSON, err := encodeJSON(steps.CompensationNames())
	if err != nil {
		return err
	}
	checkpoints := make(map[string]string, len(steps.Checkpoints()))
	for name, v := range steps.Checkpoints() {
		enc, err := r.codec.Encode(v)
		if err != nil {
			return err
		}
		checkpoints[name] = enc
	}
	checkpointsJSON, err := encodeJSON(checkpoints)
	if err != nil {
		return err
	}
	rec.StepsJSON = namesJSON
	rec.Compensations = compJSON
	rec.Checkpoints = checkpointsJSON
	rec.StepIndex = steps.StepIndex()
	rec.UndoIndex = steps.UndoIndex()
	rec.FailureMsg = steps.FailureMsg()
	return nil
}

func (r *Runner) rehydrate(rec *Record) (Process, *ProcessSteps, error) {
	var businessData any
	if rec.BusinessData != "" {
		_ = encodeJSONInto(rec.BusinessData, &businessData)
	}
	proc, steps, err := r.registry.Build(rec.ProcessClass, businessData)
	if err != nil {
		return nil, nil, err
	}
	steps.SetStepIndex(rec.StepIndex)
	steps.SetUndoIndex(rec.UndoIndex)

	rawCheckpoints := map[string]string{}
	if rec.Checkpoints != "" {
		_ = encodeJSONInto(rec.Checkpoints, &rawCheckpoints)
	}
	decoded := make(map[string]any, len(rawCheckpoints))
	for name, enc := range rawCheckpoints {
		v, err := r.codec.Decode(enc)
		if err != nil {
			return nil, nil, err
		}
		decoded[name] = v
	}
	steps.SetCheckpoints(decoded)
	return proc, steps, nil
}
