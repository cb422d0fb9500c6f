package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrWorkflowNotFound is returned when a workflow id does not exist.
var ErrWorkflowNotFound = errors.New("workflow: not found")

// Repository implements the abstract Workflow repository (§6).
type Repository struct {
	db  *gorm.DB
	reg *Registry
}

// NewRepository builds a Repository.
func NewRepository(db *gorm.DB, reg *Registry) *Repository {
	return &Repository{db: db, reg: reg}
}

// GetByID loads a Workflow and rehydrates its configs/results/meta.
func (r *Repository) GetByID(ctx context.Context, id uint64) (*Workflow, error) {
	var wf Workflow
	err := r.db.WithContext(ctx).First(&wf, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if err := r.hydrate(&wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// GetByRefID loads every workflow for a business object.
func (r *Repository) GetByRefID(ctx context.Context, refID, refType string) ([]*Workflow, error) {
	var rows []Workflow
	err := r.db.WithContext(ctx).
		Where("ref_id = ? AND ref_type = ?", refID, refType).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get workflows by ref: %w", err)
	}
	out := make([]*Workflow, len(rows))
	for i := range rows {
		if err := r.hydrate(&rows[i]); err != nil {
			return nil, err
		}
		out[i] = &rows[i]
	}
	return out, nil
}

// Save persists wf, marshaling its in-memory configs/results/meta first.
func (r *Repository) Save(ctx context.Context, wf *Workflow) (uint64, error) {
	if err := wf.MarshalConfigs(r.reg); err != nil {
		return 0, err
	}
	if err := wf.MarshalResults(); err != nil {
		return 0, err
	}
	if err := wf.MarshalMeta(); err != nil {
		return 0, err
	}
	db := r.db.WithContext(ctx)
	wf.UpdatedAt = time.Now().UTC()
	if wf.ID == 0 {
		wf.CreatedAt = wf.UpdatedAt
		if err := db.Create(wf).Error; err != nil {
			return 0, fmt.Errorf("insert workflow: %w", err)
		}
		return wf.ID, nil
	}
	if err := db.Save(wf).Error; err != nil {
		return 0, fmt.Errorf("update workflow: %w", err)
	}
	return wf.ID, nil
}

func (r *Repository) hydrate(wf *Workflow) error {
	if err := wf.UnmarshalConfigs(r.reg); err != nil {
		return err
	}
	if err := wf.UnmarshalResults(); err != nil {
		return err
	}
	return wf.UnmarshalMeta()
}
