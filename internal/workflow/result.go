// Package workflow implements the batched, ledger-backed behaviour
// workflow engine (C9/C10/C11): a status taxonomy, a work-item ledger, and
// a runner that executes one workflow step at a time across a bounded
// batch of items, forking failed items into a child workflow when needed.
package workflow

import "time"

// ExecutionStatus is the behaviour status taxonomy (§4.9).
type ExecutionStatus string

const (
	StatusCompleted ExecutionStatus = "completed"
	StatusBatched   ExecutionStatus = "batched"
	StatusForked    ExecutionStatus = "forked"
	StatusWaiting   ExecutionStatus = "waiting"
	StatusSkipped   ExecutionStatus = "skipped"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
	StatusPreempted ExecutionStatus = "preempted"
)

// ExecutionResult is the immutable value object recording one step's
// outcome (§3). History is never nested: every appended entry carries an
// empty History of its own (U7).
type ExecutionResult struct {
	Type         string          `json:"type"`
	Success      bool            `json:"success"`
	Context      map[string]any  `json:"context,omitempty"`
	Status       ExecutionStatus `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
	Phase        int             `json:"phase"`
	History      []ExecutionResult `json:"history,omitempty"`
	BatchSuccess int             `json:"batch_success"`
	BatchError   int             `json:"batch_error"`
}

// FollowUp yields a new result whose leading fields come from next and
// whose History starts with the receiver (with its own History cleared),
// preserving U7: len(history) = 1 + len(previous.history).
func (r ExecutionResult) FollowUp(next ExecutionResult) ExecutionResult {
	prev := r
	prev.History = nil
	next.History = append([]ExecutionResult{prev}, r.History...)
	return next
}

// HistoryFailureCount counts failed entries across history plus the
// result itself, for the retry budget (§4.11.2).
func (r ExecutionResult) HistoryFailureCount() int {
	count := 0
	if r.Status == StatusFailed {
		count++
	}
	for _, h := range r.History {
		if h.Status == StatusFailed {
			count++
		}
	}
	return count
}

// ToWorkItemStatus implements the §4.11 mapping from an execution result
// to a WorkItemStatus.
func (r ExecutionResult) ToWorkItemStatus() ItemStatus {
	switch r.Status {
	case StatusCompleted:
		return ItemDone
	case StatusWaiting:
		return ItemWaiting
	case StatusSkipped, StatusCancelled, StatusPreempted:
		return ItemSkipped
	case StatusFailed:
		return ItemFailed
	default:
		if r.Success {
			return ItemDone
		}
		return ItemFailed
	}
}
