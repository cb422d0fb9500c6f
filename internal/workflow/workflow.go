package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// Workflow is the BehaviourWorkflow aggregate (§3). ConfigsJSON/ResultsJSON
// are the persisted polymorphic lists; Configs/Results are the decoded
// in-memory views a Registry rehydrates them into.
type Workflow struct {
	ID             uint64  `gorm:"primaryKey"`
	RefID          string  `gorm:"column:ref_id;size:128;index"`
	RefType        string  `gorm:"column:ref_type;size:128;index"`
	RootWorkflowID *uint64 `gorm:"column:root_workflow_id;index"`
	ConfigsJSON    string  `gorm:"column:behaviour_configs;type:text"`
	ResultsJSON    string  `gorm:"column:behaviour_results;type:text"`
	CurrentIdx     int     `gorm:"column:current_idx"`
	CurrentPhase   int     `gorm:"column:current_phase;default:1"`
	IsComplete     bool    `gorm:"column:is_complete"`
	IsFailed       bool    `gorm:"column:is_failed"`
	MetaJSON       string  `gorm:"column:meta;type:text"`
	BlogID         int64   `gorm:"column:blog_id;index"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`

	Configs []BehaviourConfig  `gorm:"-"`
	Results []*ExecutionResult `gorm:"-"`
	Meta    map[string]string  `gorm:"-"`
}

// TableName implements gorm's Tabler.
func (Workflow) TableName() string { return "behaviour_workflows" }

// IsFork reports whether this workflow was created by §4.11.1's forking.
func (w *Workflow) IsFork() bool { return w.RootWorkflowID != nil }

// GetCurrent returns the config at current_idx.
func (w *Workflow) GetCurrent() (BehaviourConfig, error) {
	if w.CurrentIdx < 0 || w.CurrentIdx >= len(w.Configs) {
		return nil, fmt.Errorf("workflow: no current config at index %d", w.CurrentIdx)
	}
	return w.Configs[w.CurrentIdx], nil
}

// GetCurrentResult returns the previous result recorded for current_idx,
// or nil if none yet.
func (w *Workflow) GetCurrentResult() *ExecutionResult {
	if w.CurrentIdx < 0 || w.CurrentIdx >= len(w.Results) {
		return nil
	}
	return w.Results[w.CurrentIdx]
}

// setCurrentResult stores the result at current_idx, growing Results as
// needed.
func (w *Workflow) setCurrentResult(r ExecutionResult) {
	for len(w.Results) <= w.CurrentIdx {
		w.Results = append(w.Results, nil)
	}
	w.Results[w.CurrentIdx] = &r
}

// MaybeAdvance implements §4.9's cursor-advance rules.
func (w *Workflow) MaybeAdvance(result ExecutionResult) {
	if prev := w.GetCurrentResult(); prev != nil {
		result = prev.FollowUp(result)
	}
	w.setCurrentResult(result)

	if result.Status == StatusFailed {
		w.finishIfDone()
		return
	}

	config, err := w.GetCurrent()
	if err == nil {
		if saga, ok := config.(SagaBehaviourConfig); ok && saga.NoPhases() >= 1 {
			if result.Status == StatusCancelled {
				w.CurrentIdx++
				w.CurrentPhase = 1
			} else {
				w.CurrentPhase++
				if w.CurrentPhase > saga.NoPhases() {
					w.CurrentIdx++
					w.CurrentPhase = 1
				}
			}
			w.finishIfDone()
			return
		}
	}

	if result.Status != StatusBatched {
		w.CurrentIdx++
	}
	w.finishIfDone()
}

func (w *Workflow) finishIfDone() {
	if w.CurrentIdx >= len(w.Configs) {
		w.IsComplete = true
	}
}

// marshalConfigs/unmarshalConfigs and their result counterparts bridge the
// decoded in-memory slices and the persisted JSON columns using a
// Registry for tagged-union (de)serialization.

func (w *Workflow) MarshalConfigs(reg *Registry) error {
	encoded := make([]string, len(w.Configs))
	for i, c := range w.Configs {
		enc, err := reg.EncodeConfig(c)
		if err != nil {
			return err
		}
		encoded[i] = enc
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("marshal behaviour configs: %w", err)
	}
	w.ConfigsJSON = string(raw)
	return nil
}

func (w *Workflow) UnmarshalConfigs(reg *Registry) error {
	if w.ConfigsJSON == "" {
		w.Configs = nil
		return nil
	}
	var encoded []string
	if err := json.Unmarshal([]byte(w.ConfigsJSON), &encoded); err != nil {
		return fmt.Errorf("unmarshal behaviour configs: %w", err)
	}
	configs := make([]BehaviourConfig, len(encoded))
	for i, enc := range encoded {
		cfg, err := reg.DecodeConfig(enc)
		if err != nil {
			return err
		}
		configs[i] = cfg
	}
	w.Configs = configs
	return nil
}

func (w *Workflow) MarshalResults() error {
	raw, err := json.Marshal(w.Results)
	if err != nil {
		return fmt.Errorf("marshal behaviour results: %w", err)
	}
	w.ResultsJSON = string(raw)
	return nil
}

func (w *Workflow) UnmarshalResults() error {
	if w.ResultsJSON == "" {
		w.Results = nil
		return nil
	}
	return json.Unmarshal([]byte(w.ResultsJSON), &w.Results)
}

func (w *Workflow) MarshalMeta() error {
	if w.Meta == nil {
		w.MetaJSON = ""
		return nil
	}
	raw, err := json.Marshal(w.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	w.MetaJSON = string(raw)
	return nil
}

func (w *Workflow) UnmarshalMeta() error {
	if w.MetaJSON == "" {
		w.Meta = map[string]string{}
		return nil
	}
	return json.Unmarshal([]byte(w.MetaJSON), &w.Meta)
}
