package longprocess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a process id does not exist.
var ErrNotFound = errors.New("longprocess: not found")

// Repository implements the abstract Process repository (§6): save, find,
// find_waiting_for, delete.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a Repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Save upserts a Record, returning its id.
func (r *Repository) Save(ctx context.Context, tx *gorm.DB, rec *Record) (uint64, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	db = db.WithContext(ctx)
	rec.UpdatedAt = time.Now().UTC()
	if rec.ID == 0 {
		rec.CreatedAt = rec.UpdatedAt
		if err := db.Create(rec).Error; err != nil {
			return 0, fmt.Errorf("insert long process: %w", err)
		}
		return rec.ID, nil
	}
	if err := db.Save(rec).Error; err != nil {
		return 0, fmt.Errorf("update long process: %w", err)
	}
	return rec.ID, nil
}

// Find loads a Record by id.
func (r *Repository) Find(ctx context.Context, id uint64) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find long process: %w", err)
	}
	return &rec, nil
}

// FindWaitingFor returns suspended processes awaiting eventClass.
func (r *Repository) FindWaitingFor(ctx context.Context, eventClass string) ([]Record, error) {
	var recs []Record
	err := r.db.WithContext(ctx).
		Where("status = ? AND waiting_for = ?", StatusSuspended, eventClass).
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("find waiting processes: %w", err)
	}
	return recs, nil
}

// Delete removes a Record by id.
func (r *Repository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&Record{}, "id = ?", id).Error
}

// encodeJSON marshals v; a nil v is stored as the empty string, which
// decodeJSONMap reads back as an empty map and decodeJSONStrings as nil.
func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}

// encodeJSONInto unmarshals raw into dst; a no-op on an empty string.
func encodeJSONInto(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func decodeJSONStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var s []string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil
	}
	return s
}
