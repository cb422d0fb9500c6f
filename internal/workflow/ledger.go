package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrItemNotFound is returned when a work item id does not exist.
var ErrItemNotFound = errors.New("workflow: work item not found")

// Ledger implements the C10 work-item repository contract.
type Ledger struct {
	db *gorm.DB
}

// NewLedger builds a Ledger.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// GetByID loads a WorkItem by id.
func (l *Ledger) GetByID(ctx context.Context, id uint64) (*WorkItem, error) {
	var item WorkItem
	err := l.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return &item, nil
}

// FindByUnique loads the WorkItem matching the (workflow_id, behaviour_idx,
// phase, item_key) uniqueness key, enforced by the table's unique index.
func (l *Ledger) FindByUnique(ctx context.Context, workflowID uint64, behaviourIdx, phase int, itemKey string) (*WorkItem, error) {
	var item WorkItem
	err := l.db.WithContext(ctx).
		Where("workflow_id = ? AND behaviour_idx = ? AND phase = ? AND item_key = ?", workflowID, behaviourIdx, phase, itemKey).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find work item by unique key: %w", err)
	}
	return &item, nil
}

// GetForStep returns every item for one (workflow_id, behaviour_idx, phase).
func (l *Ledger) GetForStep(ctx context.Context, workflowID uint64, behaviourIdx, phase int) (List, error) {
	var items []WorkItem
	err := l.db.WithContext(ctx).
		Where("workflow_id = ? AND behaviour_idx = ? AND phase = ?", workflowID, behaviourIdx, phase).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("get work items for step: %w", err)
	}
	return List(items), nil
}

// Save is the idempotent upsert named in §4.10: a generated item sharing
// an existing row's unique key updates it in place instead of duplicating.
func (l *Ledger) Save(ctx context.Context, item *WorkItem) error {
	item.UpdatedAt = time.Now().UTC()
	if item.ID != 0 {
		return l.db.WithContext(ctx).Save(item).Error
	}
	item.CreatedAt = item.UpdatedAt
	return l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workflow_id"}, {Name: "behaviour_idx"}, {Name: "phase"}, {Name: "item_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "attempts", "last_error", "payload", "updated_at"}),
		}).
		Create(item).Error
}

// TransferToChild implements the fork transfer (§4.11.1): the same row
// identities move to childWorkflowID with status reset to pending and
// attempts/last_error cleared.
func (l *Ledger) TransferToChild(ctx context.Context, itemIDs []uint64, childWorkflowID uint64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return l.db.WithContext(ctx).
		Model(&WorkItem{}).
		Where("id IN ?", itemIDs).
		Updates(map[string]any{
			"workflow_id": childWorkflowID,
			"status":      ItemPending,
			"attempts":    0,
			"last_error":  "",
			"updated_at":  time.Now().UTC(),
		}).Error
}
