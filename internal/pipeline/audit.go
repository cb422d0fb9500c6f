package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AuditStatus is a CommandAudit row's lifecycle state (§3).
type AuditStatus string

const (
	AuditInProgress AuditStatus = "in_progress"
	AuditSuccess    AuditStatus = "success"
	AuditError      AuditStatus = "error"
)

// AuditSource names who initiated a command.
type AuditSource string

const (
	SourceUser   AuditSource = "user"
	SourceCLI    AuditSource = "cli"
	SourceSystem AuditSource = "system"
)

// CommandAudit is one row per command (§3, §4.12 step 1).
type CommandAudit struct {
	ID              uint64      `gorm:"primaryKey"`
	CommandID       string      `gorm:"column:command_id;uniqueIndex;size:36"`
	CorrelationID   string      `gorm:"column:correlation_id;index;size:36"`
	CommandName     string      `gorm:"column:command_name;index;size:128"`
	Status          AuditStatus `gorm:"column:status;size:16"`
	Source          AuditSource `gorm:"column:source;size:16"`
	SourceID        string      `gorm:"column:source_id;size:128"`
	StartedAt       time.Time   `gorm:"column:started_at;index"`
	FinishedAt      *time.Time  `gorm:"column:finished_at"`
	DurationMS      int64       `gorm:"column:duration_ms"`
	PeakMemoryBytes uint64      `gorm:"column:peak_memory_bytes"`
	Parameters      string      `gorm:"column:parameters;type:text"`
	Events          string      `gorm:"column:events;type:text"`
	ErrorType       string      `gorm:"column:error_type;size:128"`
	ErrorMessage    string      `gorm:"column:error_message;type:text"`
	ErrorCode       string      `gorm:"column:error_code;size:64"`
	Environment     string      `gorm:"column:environment;size:32"`
}

// TableName implements gorm's Tabler.
func (CommandAudit) TableName() string { return "command_audit" }

// AuditStore persists CommandAudit rows.
type AuditStore struct {
	db *gorm.DB
}

// NewAuditStore builds an AuditStore.
func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Preflight writes the in_progress row before the handler runs.
func (a *AuditStore) Preflight(ctx context.Context, row *CommandAudit) error {
	row.Status = AuditInProgress
	row.StartedAt = time.Now().UTC()
	if err := a.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("write command audit preflight: %w", err)
	}
	return nil
}

// Finalize records status, duration, event names and the error message
// after the handler returns. PeakMemoryBytes, ErrorType and ErrorCode are
// not set.
func (a *AuditStore) Finalize(ctx context.Context, row *CommandAudit, events []string, handlerErr error) error {
	finished := time.Now().UTC()
	row.FinishedAt = &finished
	row.DurationMS = finished.Sub(row.StartedAt).Milliseconds()
	if eventsJSON, err := json.Marshal(events); err == nil {
		row.Events = string(eventsJSON)
	}
	if handlerErr != nil {
		row.Status = AuditError
		row.ErrorMessage = handlerErr.Error()
	} else {
		row.Status = AuditSuccess
	}
	return a.db.WithContext(ctx).Save(row).Error
}
