// Package longprocess implements the saga engine (C7/C8): a frozen step
// schema, a forward/compensation runner, and the gorm-backed repository
// that makes a process durable across suspend/resume/reschedule.
package longprocess

import (
	"fmt"
)

// Result is a step or compensation's output (§4.8.1).
type Result struct {
	Payload    any
	Commands   []any
	Await      *AwaitEvent
	Checkpoint any
}

// AwaitEvent names the integration event a step is suspending for, and an
// optional match on its payload fields: a field matches when its fmt "%v"
// text form equals the criterion's.
type AwaitEvent struct {
	EventClass    string
	MatchCriteria map[string]any
}

// StepFunc is the uniform step/compensation signature the runner invokes.
// payload and resumeEvent are both nil unless the call site supplies them —
// steps ignore parameters they don't need.
type StepFunc func(payload any, resumeEvent any) (Result, error)

// stepDef is one forward step's frozen identity: name, the callable, and
// whether it must be rescheduled before running.
type stepDef struct {
	name  string
	fn    StepFunc
	async bool
}

type compensationDef struct {
	forStep string
	fn      StepFunc
	async   bool
}

// ProcessSteps is the frozen schema (§4.7): step names and a compensation
// map persist; the in-memory dispatch table (stepDef.fn) is rebuilt from
// the current process type every time a process is loaded, per the
// explicit-registration design note in §9.
type ProcessSteps struct {
	steps         []stepDef
	compensations map[string]compensationDef

	checkpoints map[string]any
	stepIndex   int
	undoIndex   int
	failureMsg  string
}

// NewProcessSteps builds the frozen schema. Callers register steps and
// compensations once, in the owning process type's constructor
// (RegisterStep / RegisterCompensation), never afterward — this is what
// keeps the schema invariant (U8) true across reload.
func NewProcessSteps() *ProcessSteps {
	return &ProcessSteps{
		compensations: make(map[string]compensationDef),
		checkpoints:   make(map[string]any),
		undoIndex:     -1,
	}
}

// RegisterStep appends a forward step. Order of registration is the
// forward execution order.
func (p *ProcessSteps) RegisterStep(name string, fn StepFunc, async bool) {
	p.steps = append(p.steps, stepDef{name: name, fn: fn, async: async})
}

// RegisterCompensation tags a compensation for the named forward step.
func (p *ProcessSteps) RegisterCompensation(forStep string, fn StepFunc, async bool) {
	p.compensations[forStep] = compensationDef{forStep: forStep, fn: fn, async: async}
}

// StepNames returns the persisted, order-stable contract: the list of step
// names frozen at registration.
func (p *ProcessSteps) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.name
	}
	return names
}

// CompensationNames returns the persisted compensation map's keys (which
// forward steps have a compensation registered).
func (p *ProcessSteps) CompensationNames() []string {
	names := make([]string, 0, len(p.compensations))
	for k := range p.compensations {
		names = append(names, k)
	}
	return names
}

// IsCompensating reports whether the process is undoing steps.
func (p *ProcessSteps) IsCompensating() bool { return p.undoIndex >= 0 }

// IsComplete reports whether every forward step has run.
func (p *ProcessSteps) IsComplete() bool { return p.stepIndex >= len(p.steps) }

// TotalSteps is len(steps).
func (p *ProcessSteps) TotalSteps() int { return len(p.steps) }

// CompletedCount is how many forward steps have advanced past.
func (p *ProcessSteps) CompletedCount() int { return p.stepIndex }

// CurrentStep returns the step at step_index, or an error if out of range.
func (p *ProcessSteps) CurrentStep() (stepDef, error) {
	if p.stepIndex < 0 || p.stepIndex >= len(p.steps) {
		return stepDef{}, fmt.Errorf("longprocess: no current step at index %d", p.stepIndex)
	}
	return p.steps[p.stepIndex], nil
}

// CurrentUndoStep returns the step at undo_index during compensation.
func (p *ProcessSteps) CurrentUndoStep() (stepDef, error) {
	if p.undoIndex < 0 || p.undoIndex >= len(p.steps) {
		return stepDef{}, fmt.Errorf("longprocess: no current undo step at index %d", p.undoIndex)
	}
	return p.steps[p.undoIndex], nil
}

// FailedStep is the step at step_index at the moment compensation began —
// the one whose invocation threw.
func (p *ProcessSteps) FailedStep() (stepDef, error) {
	return p.CurrentStep()
}

// CompensationFor returns the compensation registered for a step name, if
// any.
func (p *ProcessSteps) CompensationFor(stepName string) (compensationDef, bool) {
	c, ok := p.compensations[stepName]
	return c, ok
}

// CheckpointFor returns the checkpoint recorded for a step name, if any.
func (p *ProcessSteps) CheckpointFor(stepName string) (any, bool) {
	v, ok := p.checkpoints[stepName]
	return v, ok
}

// Advance moves step_index forward by one.
func (p *ProcessSteps) Advance() { p.stepIndex++ }

// RecordCheckpoint stores opaque undo data for a step.
func (p *ProcessSteps) RecordCheckpoint(stepName string, value any) {
	if value == nil {
		return
	}
	p.checkpoints[stepName] = value
}

// BeginUndo switches the process into compensation mode, starting at the
// step immediately before the one that failed.
func (p *ProcessSteps) BeginUndo(msg string) {
	p.undoIndex = p.stepIndex - 1
	p.failureMsg = msg
}

// AdvanceUndo moves undo_index backward by one.
func (p *ProcessSteps) AdvanceUndo() { p.undoIndex-- }

// FinishUndo clears compensation mode.
func (p *ProcessSteps) FinishUndo() { p.undoIndex = -1 }

// FailureMsg is the message recorded by BeginUndo.
func (p *ProcessSteps) FailureMsg() string { return p.failureMsg }

// UndoIndex exposes the current compensation cursor (for persistence).
func (p *ProcessSteps) UndoIndex() int { return p.undoIndex }

// StepIndex exposes the current forward cursor (for persistence).
func (p *ProcessSteps) StepIndex() int { return p.stepIndex }

// SetStepIndex restores the forward cursor on reload.
func (p *ProcessSteps) SetStepIndex(i int) { p.stepIndex = i }

// SetUndoIndex restores the compensation cursor on reload.
func (p *ProcessSteps) SetUndoIndex(i int) { p.undoIndex = i }

// SetCheckpoints restores persisted checkpoints on reload.
func (p *ProcessSteps) SetCheckpoints(m map[string]any) {
	if m == nil {
		m = make(map[string]any)
	}
	p.checkpoints = m
}

// Checkpoints exposes the checkpoint map for persistence.
func (p *ProcessSteps) Checkpoints() map[string]any { return p.checkpoints }
