package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sagaConfig struct {
	Phases int `json:"phases"`
}

func (sagaConfig) PayloadTag() string      { return "Saga" }
func (sagaConfig) IsBatchable() bool       { return false }
func (sagaConfig) DefaultBatchSize() int   { return 1 }
func (c sagaConfig) NoPhases() int         { return c.Phases }

func TestWorkflow_GetCurrent_OutOfRangeErrors(t *testing.T) {
	w := &Workflow{Configs: []BehaviourConfig{stubConfig{}}, CurrentIdx: 1}
	_, err := w.GetCurrent()
	assert.Error(t, err)
}

func TestWorkflow_MaybeAdvance_NonSagaAdvancesOnNonBatched(t *testing.T) {
	w := &Workflow{Configs: []BehaviourConfig{stubConfig{}, stubConfig{}}}
	w.MaybeAdvance(ExecutionResult{Status: StatusCompleted})
	assert.Equal(t, 1, w.CurrentIdx)
	assert.False(t, w.IsComplete)

	w.MaybeAdvance(ExecutionResult{Status: StatusCompleted})
	assert.Equal(t, 2, w.CurrentIdx)
	assert.True(t, w.IsComplete)
}

func TestWorkflow_MaybeAdvance_BatchedDoesNotAdvance(t *testing.T) {
	w := &Workflow{Configs: []BehaviourConfig{stubConfig{}}}
	w.MaybeAdvance(ExecutionResult{Status: StatusBatched})
	assert.Equal(t, 0, w.CurrentIdx)
	assert.False(t, w.IsComplete)
}

func TestWorkflow_MaybeAdvance_FailedFinishesWithoutAdvancing(t *testing.T) {
	w := &Workflow{Configs: []BehaviourConfig{stubConfig{}, stubConfig{}}}
	w.MaybeAdvance(ExecutionResult{Status: StatusFailed})
	assert.Equal(t, 0, w.CurrentIdx)
	assert.False(t, w.IsComplete)
}

func TestWorkflow_MaybeAdvance_SagaAdvancesPhaseThenIndex(t *testing.T) {
	w := &Workflow{Configs: []BehaviourConfig{sagaConfig{Phases: 2}}, CurrentPhase: 1}
	w.MaybeAdvance(ExecutionResult{Status: StatusCompleted})
	assert.Equal(t, 0, w.CurrentIdx)
	assert.Equal(t, 2, w.CurrentPhase)
	assert.False(t, w.IsComplete)

	w.MaybeAdvance(ExecutionResult{Status: StatusCompleted})
	assert.Equal(t, 1, w.CurrentIdx)
	assert.Equal(t, 1, w.CurrentPhase)
	assert.True(t, w.IsComplete)
}

func TestWorkflow_MaybeAdvance_SagaCancelledSkipsToNextConfig(t *testing.T) {
	w := &Workflow{Configs: []BehaviourConfig{sagaConfig{Phases: 3}}, CurrentPhase: 1}
	w.MaybeAdvance(ExecutionResult{Status: StatusCancelled})
	assert.Equal(t, 1, w.CurrentIdx)
	assert.Equal(t, 1, w.CurrentPhase)
	assert.True(t, w.IsComplete)
}

func TestWorkflow_MaybeAdvance_UsesFollowUpHistory(t *testing.T) {
	w := &Workflow{Configs: []BehaviourConfig{stubConfig{}}}
	w.MaybeAdvance(ExecutionResult{Status: StatusBatched})
	w.MaybeAdvance(ExecutionResult{Status: StatusCompleted})

	assert.Len(t, w.Results, 1)
	assert.Len(t, w.Results[0].History, 1)
}

func TestWorkflow_MarshalUnmarshalConfigsResultsMeta_RoundTrips(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterBehaviour("Stub", stubConfig{}, func(c BehaviourConfig) Behaviour { return stubBehaviour{cfg: c} })

	w := &Workflow{
		Configs: []BehaviourConfig{stubConfig{Batch: 4}},
		Results: []*ExecutionResult{{Status: StatusCompleted}},
		Meta:    map[string]string{"k": "v"},
	}
	assert.NoError(t, w.MarshalConfigs(reg))
	assert.NoError(t, w.MarshalResults())
	assert.NoError(t, w.MarshalMeta())

	w2 := &Workflow{ConfigsJSON: w.ConfigsJSON, ResultsJSON: w.ResultsJSON, MetaJSON: w.MetaJSON}
	assert.NoError(t, w2.UnmarshalConfigs(reg))
	assert.NoError(t, w2.UnmarshalResults())
	assert.NoError(t, w2.UnmarshalMeta())

	assert.Len(t, w2.Configs, 1)
	assert.Equal(t, 4, w2.Configs[0].DefaultBatchSize())
	assert.Len(t, w2.Results, 1)
	assert.Equal(t, StatusCompleted, w2.Results[0].Status)
	assert.Equal(t, "v", w2.Meta["k"])
}

func TestWorkflow_IsFork(t *testing.T) {
	w := &Workflow{}
	assert.False(t, w.IsFork())
	root := uint64(1)
	w.RootWorkflowID = &root
	assert.True(t, w.IsFork())
}
