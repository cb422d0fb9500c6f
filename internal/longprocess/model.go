package longprocess

import "time"

// Record is the gorm-mapped row for a LongProcess (§3, §4.15).
type Record struct {
	ID            uint64    `gorm:"primaryKey"`
	ProcessClass  string    `gorm:"column:process_class;index;size:128"`
	BusinessData  string    `gorm:"column:business_data;type:text"`
	StepsJSON     string    `gorm:"column:steps;type:text"`
	Compensations string    `gorm:"column:compensations;type:text"`
	Checkpoints   string    `gorm:"column:checkpoints;type:text"`
	StepIndex     int       `gorm:"column:step_index"`
	UndoIndex     int       `gorm:"column:undo_index;default:-1"`
	FailureMsg    string    `gorm:"column:failure_msg;type:text"`
	StepName      string    `gorm:"column:step_name;size:128"`
	Status        Status    `gorm:"column:status;size:32;index;index:idx_longproc_waiting_status,priority:2;index:idx_longproc_blog_status,priority:2"`
	WaitingFor    *string   `gorm:"column:waiting_for;size:128;index:idx_longproc_waiting_status,priority:1"`
	MatchCriteria string    `gorm:"column:match_criteria;type:text"`
	Payload       string    `gorm:"column:payload;type:text"`
	CorrelationID string    `gorm:"column:correlation_id;index;size:36"`
	LastError     string    `gorm:"column:last_error;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
	BlogID        int64     `gorm:"column:blog_id;index:idx_longproc_blog_status,priority:1"`
}

// TableName implements gorm's Tabler.
func (Record) TableName() string { return "long_processes" }
