package workflow

import "time"

// ItemStatus is a WorkItem's lifecycle state (§3).
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemWaiting ItemStatus = "waiting"
	ItemFailed  ItemStatus = "failed"
	ItemDone    ItemStatus = "done"
	ItemSkipped ItemStatus = "skipped"
)

// WorkItem is the ledger row (§3, C10).
type WorkItem struct {
	ID           uint64     `gorm:"primaryKey"`
	WorkflowID   uint64     `gorm:"column:workflow_id;index:idx_workitem_unique,unique,priority:1"`
	BehaviourIdx int        `gorm:"column:behaviour_idx;index:idx_workitem_unique,unique,priority:2"`
	Phase        int        `gorm:"column:phase;index:idx_workitem_unique,unique,priority:3"`
	ItemKey      string     `gorm:"column:item_key;size:256;index:idx_workitem_unique,unique,priority:4"`
	Status       ItemStatus `gorm:"column:status;size:16;index"`
	Attempts     int        `gorm:"column:attempts"`
	LastError    string     `gorm:"column:last_error;type:text"`
	Payload      string     `gorm:"column:payload;type:text"`
	BlogID       int64      `gorm:"column:blog_id;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

// TableName implements gorm's Tabler.
func (WorkItem) TableName() string { return "behaviour_workflow_items" }

// ItemSeed is what GenerateWorkItems returns: the deterministic identity
// and initial payload for one ledger row, before it's stamped with
// workflow/step identity and persisted.
type ItemSeed struct {
	ItemKey string
	Payload string
}

// List is an in-memory slice of WorkItem with the query helpers §4.10
// names.
type List []WorkItem

// Pending filters to status=pending.
func (l List) Pending() List { return l.filter(ItemPending) }

// Waiting filters to status=waiting.
func (l List) Waiting() List { return l.filter(ItemWaiting) }

// Failed filters to status=failed.
func (l List) Failed() List { return l.filter(ItemFailed) }

// Done filters to status=done.
func (l List) Done() List { return l.filter(ItemDone) }

func (l List) filter(status ItemStatus) List {
	out := make(List, 0, len(l))
	for _, item := range l {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out
}

// Take returns at most n items.
func (l List) Take(n int) List {
	if n >= len(l) {
		return l
	}
	return l[:n]
}

// AggregateStatus reduces the list to a single status using priority
// pending > waiting > failed > done (§4.10); an empty list aggregates to
// done (nothing left to do).
func (l List) AggregateStatus() ItemStatus {
	seen := map[ItemStatus]bool{}
	for _, item := range l {
		seen[item.Status] = true
	}
	for _, s := range []ItemStatus{ItemPending, ItemWaiting, ItemFailed} {
		if seen[s] {
			return s
		}
	}
	return ItemDone
}
