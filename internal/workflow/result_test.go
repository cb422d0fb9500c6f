package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionResult_FollowUp_PrependsHistoryWithoutNesting(t *testing.T) {
	first := ExecutionResult{Status: StatusBatched, Type: "A"}
	second := first.FollowUp(ExecutionResult{Status: StatusBatched, Type: "A"})
	assert.Len(t, second.History, 1)
	assert.Empty(t, second.History[0].History)

	third := second.FollowUp(ExecutionResult{Status: StatusCompleted, Type: "A"})
	assert.Len(t, third.History, 2)
	for _, h := range third.History {
		assert.Empty(t, h.History)
	}
}

func TestExecutionResult_HistoryFailureCount(t *testing.T) {
	r := ExecutionResult{
		Status:  StatusFailed,
		History: []ExecutionResult{{Status: StatusFailed}, {Status: StatusCompleted}},
	}
	assert.Equal(t, 2, r.HistoryFailureCount())
}

func TestExecutionResult_ToWorkItemStatus(t *testing.T) {
	assert.Equal(t, ItemDone, ExecutionResult{Status: StatusCompleted}.ToWorkItemStatus())
	assert.Equal(t, ItemWaiting, ExecutionResult{Status: StatusWaiting}.ToWorkItemStatus())
	assert.Equal(t, ItemSkipped, ExecutionResult{Status: StatusSkipped}.ToWorkItemStatus())
	assert.Equal(t, ItemSkipped, ExecutionResult{Status: StatusCancelled}.ToWorkItemStatus())
	assert.Equal(t, ItemSkipped, ExecutionResult{Status: StatusPreempted}.ToWorkItemStatus())
	assert.Equal(t, ItemFailed, ExecutionResult{Status: StatusFailed}.ToWorkItemStatus())
	assert.Equal(t, ItemDone, ExecutionResult{Status: StatusForked, Success: true}.ToWorkItemStatus())
	assert.Equal(t, ItemFailed, ExecutionResult{Status: StatusForked, Success: false}.ToWorkItemStatus())
}
