// Package outbox implements the transactional outbox store (C4), the
// claim-and-process worker (C5), and the publisher/router that hands
// claimed rows off to a transport (C6).
package outbox

import "time"

// MessageKind distinguishes an outbox row carrying an event from one
// carrying a command.
type MessageKind string

const (
	MessageKindEvent   MessageKind = "event"
	MessageKindCommand MessageKind = "command"
)

// Transport names where a claimed row is ultimately delivered.
type Transport string

const (
	TransportInProcess Transport = "in_process"
	TransportExternal  Transport = "external"
)

// Status is the outbox row's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDLQ        Status = "dlq"
	StatusCancelled  Status = "cancelled"
)

// Entry is a row in the integration_outbox table (§3 OutboxEntry).
type Entry struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement"`
	EventID            string     `gorm:"column:event_id;size:36;uniqueIndex;not null"`
	EventType          string     `gorm:"column:event_type;size:128;not null"`
	IntegrationAction  string     `gorm:"column:integration_action;size:128;not null"`
	MessageKind        MessageKind `gorm:"column:message_kind;size:16;not null;default:event"`
	Transport          Transport  `gorm:"column:transport;size:16;not null"`
	Queue              string     `gorm:"column:queue;size:128"`
	PayloadBytes       int        `gorm:"column:payload_bytes;not null;default:0"`
	CorrelationID      string     `gorm:"column:correlation_id;size:36;not null;index"`
	Sequence           int64      `gorm:"column:sequence;not null"`
	CommandID          *string    `gorm:"column:command_id;size:36"`
	Payload            string     `gorm:"column:payload;type:jsonb;not null"`
	DelaySeconds       int        `gorm:"column:delay_seconds;not null;default:0"`
	ScheduledAt        time.Time  `gorm:"column:scheduled_at;not null;index:idx_outbox_status_scheduled,priority:3"`
	IsUnique           bool       `gorm:"column:is_unique;not null;default:false"`
	Status             Status     `gorm:"column:status;size:16;not null;index:idx_outbox_status_scheduled,priority:1;index:idx_outbox_status_blog;index:idx_outbox_status_next_attempt,priority:1"`
	Attempts           int        `gorm:"column:attempts;not null;default:0"`
	MaxAttempts        int        `gorm:"column:max_attempts;not null"`
	NextAttemptAt      *time.Time `gorm:"column:next_attempt_at;index:idx_outbox_status_next_attempt,priority:2"`
	LockedUntil        *time.Time `gorm:"column:locked_until"`
	LockedBy           string     `gorm:"column:locked_by;size:128"`
	LastError          string     `gorm:"column:last_error;type:text"`
	ErrorHistory       string     `gorm:"column:error_history;type:jsonb"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime;index:idx_outbox_status_scheduled,priority:2"`
	ProcessedAt        *time.Time `gorm:"column:processed_at"`
	BlogID             int64      `gorm:"column:blog_id;not null;index:idx_outbox_status_blog"`
}

// TableName implements gorm's Tabler.
func (Entry) TableName() string { return "integration_outbox" }

// DLQEntry is an append-only copy of an Entry that exhausted its retry
// budget (§3 DLQEntry).
type DLQEntry struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	EventID     string     `gorm:"column:event_id;size:36;uniqueIndex;not null"`
	EventType   string     `gorm:"column:event_type;size:128;not null"`
	Payload     string     `gorm:"column:payload;type:jsonb;not null"`
	Attempts    int        `gorm:"column:attempts;not null"`
	FinalError  string     `gorm:"column:final_error;type:text"`
	MovedAt     time.Time  `gorm:"column:moved_at;not null"`
	ResolvedAt  *time.Time `gorm:"column:resolved_at"`
	BlogID      int64      `gorm:"column:blog_id;not null"`
}

// TableName implements gorm's Tabler.
func (DLQEntry) TableName() string { return "integration_dlq" }

// ErrorHistoryEntry is one element of an Entry's error_history JSON list.
type ErrorHistoryEntry struct {
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
	Occurred  time.Time `json:"occurred_at"`
}
