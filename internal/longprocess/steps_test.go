package longprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func noopStep(payload any, resumeEvent any) (Result, error) { return Result{}, nil }

func TestProcessSteps_ForwardProgression(t *testing.T) {
	p := NewProcessSteps()
	p.RegisterStep("step1", noopStep, false)
	p.RegisterStep("step2", noopStep, false)

	assert.Equal(t, []string{"step1", "step2"}, p.StepNames())
	assert.Equal(t, 2, p.TotalSteps())
	assert.False(t, p.IsComplete())

	step, err := p.CurrentStep()
	assert.NoError(t, err)
	assert.Equal(t, "step1", step.name)

	p.Advance()
	assert.Equal(t, 1, p.CompletedCount())
	p.Advance()
	assert.True(t, p.IsComplete())

	_, err = p.CurrentStep()
	assert.Error(t, err)
}

func TestProcessSteps_CompensationCycle(t *testing.T) {
	p := NewProcessSteps()
	p.RegisterStep("step1", noopStep, false)
	p.RegisterStep("step2", noopStep, false)
	p.RegisterCompensation("step1", noopStep, false)
	p.Advance()
	p.Advance()

	assert.False(t, p.IsCompensating())
	p.BeginUndo("boom")
	assert.True(t, p.IsCompensating())
	assert.Equal(t, "boom", p.FailureMsg())
	assert.Equal(t, 1, p.UndoIndex())

	undoStep, err := p.CurrentUndoStep()
	assert.NoError(t, err)
	assert.Equal(t, "step2", undoStep.name)

	_, ok := p.CompensationFor(undoStep.name)
	assert.False(t, ok)
	p.AdvanceUndo()

	undoStep, err = p.CurrentUndoStep()
	assert.NoError(t, err)
	assert.Equal(t, "step1", undoStep.name)
	comp, ok := p.CompensationFor(undoStep.name)
	assert.True(t, ok)
	assert.NotNil(t, comp.fn)

	p.AdvanceUndo()
	assert.False(t, p.IsCompensating())
	p.FinishUndo()
	assert.Equal(t, -1, p.UndoIndex())
}

func TestProcessSteps_Checkpoints(t *testing.T) {
	p := NewProcessSteps()
	p.RegisterStep("step1", noopStep, false)

	_, ok := p.CheckpointFor("step1")
	assert.False(t, ok)

	p.RecordCheckpoint("step1", "undo-data")
	v, ok := p.CheckpointFor("step1")
	assert.True(t, ok)
	assert.Equal(t, "undo-data", v)

	p.RecordCheckpoint("step2", nil)
	_, ok = p.CheckpointFor("step2")
	assert.False(t, ok)

	p.SetCheckpoints(map[string]any{"step1": "restored"})
	v, ok = p.CheckpointFor("step1")
	assert.True(t, ok)
	assert.Equal(t, "restored", v)
}

func TestProcessSteps_SetStepIndexAndUndoIndex(t *testing.T) {
	p := NewProcessSteps()
	p.SetStepIndex(3)
	p.SetUndoIndex(1)
	assert.Equal(t, 3, p.StepIndex())
	assert.Equal(t, 1, p.UndoIndex())
	assert.True(t, p.IsCompensating())
}
