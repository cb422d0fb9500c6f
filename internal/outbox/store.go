package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/reliability-core/internal/correlation"
	"github.com/richardliu001/reliability-core/internal/event"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Config carries the subset of the outbox configuration table the store
// needs to compute defaults (max attempts, backoff, lock ttl).
type Config struct {
	MaxAttempts          int
	BaseRetryDelay       time.Duration
	RetryMultiplier      float64
	MaxRetryDelay        time.Duration
	LockTTL              time.Duration
	DefaultGroup         string
}

// DefaultConfig returns the configuration defaults named in the
// specification's "Configuration" table.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		BaseRetryDelay:  60 * time.Second,
		RetryMultiplier: 2.0,
		MaxRetryDelay:   3600 * time.Second,
		LockTTL:         300 * time.Second,
		DefaultGroup:    "default",
	}
}

// Store is the gorm-backed transactional outbox store (C4).
type Store struct {
	db  *gorm.DB
	cfg Config
}

// NewStore builds a Store over db with the given configuration.
func NewStore(db *gorm.DB, cfg Config) *Store {
	return &Store{db: db, cfg: cfg}
}

// WriteParams are the inputs to Write beyond the event itself.
type WriteParams struct {
	CorrelationID string
	CommandID     string
	BlogID        int64
}

// Write inserts a pending outbox row for ie inside tx — the caller's
// command transaction — so the write is atomic with the command's business
// writes (invariant U1). It returns the freshly generated event_id.
func (s *Store) Write(ctx context.Context, tx *gorm.DB, ie event.IntegrationEvent, p WriteParams) (string, error) {
	if tx == nil {
		tx = s.db
	}
	corr := correlation.From(ctx)
	if p.CorrelationID != "" {
		corr.Set(p.CorrelationID)
	}

	payload := event.ScalarizeMap(ie.Payload())
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	delay := ie.Delay()
	if delay < 0 {
		delay = 0
	}

	eventID := uuid.NewString()
	entry := &Entry{
		EventID:           eventID,
		EventType:         ie.Name(),
		IntegrationAction: ie.IntegrationAction(),
		MessageKind:       MessageKindEvent,
		Transport:         TransportInProcess,
		Queue:             s.cfg.DefaultGroup,
		PayloadBytes:      len(raw),
		CorrelationID:     corr.Get(),
		Sequence:          corr.NextSequence(),
		Payload:           string(raw),
		DelaySeconds:      delay,
		ScheduledAt:       time.Now().UTC().Add(time.Duration(delay) * time.Second),
		IsUnique:          ie.IsUnique(),
		Status:            StatusPending,
		Attempts:          0,
		MaxAttempts:       s.maxAttempts(),
		BlogID:            p.BlogID,
	}
	if p.CommandID != "" {
		entry.CommandID = &p.CommandID
	}

	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return "", fmt.Errorf("insert outbox entry: %w", err)
	}
	return eventID, nil
}

func (s *Store) maxAttempts() int {
	if s.cfg.MaxAttempts > 0 {
		return s.cfg.MaxAttempts
	}
	return DefaultConfig().MaxAttempts
}

// FetchPending claims up to limit eligible rows for worker, using
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never claim the
// same row, then marks them locked in the same transaction.
func (s *Store) FetchPending(ctx context.Context, limit int, worker string) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	var claimed []Entry
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []Entry
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", StatusPending).
			Where("scheduled_at <= ?", now).
			Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
			Where("locked_until IS NULL OR locked_until <= ?", now).
			Order("scheduled_at ASC").
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return fmt.Errorf("select candidates: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(candidates))
		for i := range candidates {
			ids = append(ids, candidates[i].ID)
		}
		lockedUntil := now.Add(s.lockTTL())
		if err := tx.Model(&Entry{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"locked_until": lockedUntil,
				"locked_by":    worker,
			}).Error; err != nil {
			return fmt.Errorf("lock candidates: %w", err)
		}
		for i := range candidates {
			candidates[i].LockedUntil = &lockedUntil
			candidates[i].LockedBy = worker
		}
		claimed = candidates
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) lockTTL() time.Duration {
	if s.cfg.LockTTL > 0 {
		return s.cfg.LockTTL
	}
	return DefaultConfig().LockTTL
}

// FindByEventID looks up a single row by its UUIDv4 event id.
func (s *Store) FindByEventID(ctx context.Context, eventID string) (*Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// MarkCompleted transitions a row to completed, clearing its lock.
func (s *Store) MarkCompleted(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&Entry{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":       StatusCompleted,
			"processed_at": now,
			"locked_until": nil,
			"locked_by":    "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed increments attempts, appends to error_history, computes the
// next exponential-backoff attempt time, and returns the row to pending so
// it can be retried. It never moves a row to dlq — that is the processor's
// decision via MoveToDLQ (boundary B2).
func (s *Store) MarkFailed(ctx context.Context, eventID string, cause error) error {
	entry, err := s.FindByEventID(ctx, eventID)
	if err != nil {
		return err
	}
	attempts := entry.Attempts + 1
	now := time.Now().UTC()
	delay := Backoff(attempts, s.cfg)
	next := now.Add(delay)

	history := decodeHistory(entry.ErrorHistory)
	history = append(history, ErrorHistoryEntry{Attempt: attempts, Error: cause.Error(), Occurred: now})
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal error history: %w", err)
	}

	res := s.db.WithContext(ctx).Model(&Entry{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":          StatusPending,
			"attempts":        attempts,
			"last_error":      cause.Error(),
			"error_history":   string(historyJSON),
			"next_attempt_at": next,
			"locked_until":    nil,
			"locked_by":       "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MoveToDLQ copies entry to the DLQ table and marks the outbox row dlq.
func (s *Store) MoveToDLQ(ctx context.Context, eventID string) error {
	entry, err := s.FindByEventID(ctx, eventID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dlq := &DLQEntry{
			EventID:    entry.EventID,
			EventType:  entry.EventType,
			Payload:    entry.Payload,
			Attempts:   entry.Attempts,
			FinalError: entry.LastError,
			MovedAt:    now,
			BlogID:     entry.BlogID,
		}
		if err := tx.Create(dlq).Error; err != nil {
			return fmt.Errorf("insert dlq row: %w", err)
		}
		res := tx.Model(&Entry{}).
			Where("event_id = ?", eventID).
			Updates(map[string]any{
				"status":       StatusDLQ,
				"locked_until": nil,
				"locked_by":    "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ResolveDLQEntry marks a DLQ row resolved. The DLQ table is append-only
// except for this one mutation, per the specification's data model note.
func (s *Store) ResolveDLQEntry(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&DLQEntry{}).
		Where("event_id = ? AND resolved_at IS NULL", eventID).
		Update("resolved_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseStaleLocks clears the lock on any row whose locked_until is older
// than timeout ago, returning the count cleared. Idempotent: a second call
// with the same cutoff always releases zero (R3).
func (s *Store) ReleaseStaleLocks(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	res := s.db.WithContext(ctx).Model(&Entry{}).
		Where("locked_until IS NOT NULL AND locked_until < ?", cutoff).
		Updates(map[string]any{
			"locked_until": nil,
			"locked_by":    "",
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// CancelDuplicates supersedes pending+unique rows of the same event type.
// The payload signature is accepted for a future exact-match extension;
// the baseline matches by type only, per the specification's design notes.
func (s *Store) CancelDuplicates(ctx context.Context, eventType string, payloadSignature string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Entry{}).
		Where("event_type = ? AND status = ? AND is_unique = ?", eventType, StatusPending, true).
		Update("status", StatusCancelled)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Stats summarizes row counts by status plus unresolved DLQ count.
type Stats struct {
	CountsByStatus   map[Status]int64 `json:"counts_by_status"`
	UnresolvedDLQ    int64            `json:"unresolved_dlq"`
}

// GetStats groups outbox rows by status and reports unresolved DLQ count.
func (s *Store) GetStats(ctx context.Context, blogID int64) (Stats, error) {
	type row struct {
		Status Status
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Select("status, count(*) as count").
		Where("blog_id = ?", blogID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return Stats{}, err
	}
	stats := Stats{CountsByStatus: make(map[Status]int64, len(rows))}
	for _, r := range rows {
		stats.CountsByStatus[r.Status] = r.Count
	}

	var unresolved int64
	if err := s.db.WithContext(ctx).Model(&DLQEntry{}).
		Where("blog_id = ? AND resolved_at IS NULL", blogID).
		Count(&unresolved).Error; err != nil {
		return Stats{}, err
	}
	stats.UnresolvedDLQ = unresolved
	return stats, nil
}

// PurgeCompleted deletes completed rows older than days, a maintenance
// operation callers run on a schedule independent of the processor loop.
func (s *Store) PurgeCompleted(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res := s.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", StatusCompleted, cutoff).
		Delete(&Entry{})
	return res.RowsAffected, res.Error
}

func decodeHistory(raw string) []ErrorHistoryEntry {
	if raw == "" {
		return nil
	}
	var history []ErrorHistoryEntry
	_ = json.Unmarshal([]byte(raw), &history)
	return history
}

// Backoff computes the exponential backoff delay for the given attempt
// count, clamped at MaxRetryDelay (boundary B3).
func Backoff(attempts int, cfg Config) time.Duration {
	base := cfg.BaseRetryDelay
	if base <= 0 {
		base = DefaultConfig().BaseRetryDelay
	}
	mult := cfg.RetryMultiplier
	if mult <= 0 {
		mult = DefaultConfig().RetryMultiplier
	}
	max := cfg.MaxRetryDelay
	if max <= 0 {
		max = DefaultConfig().MaxRetryDelay
	}

	exp := 1.0
	for i := 1; i < attempts; i++ {
		exp *= mult
	}
	delay := time.Duration(float64(base) * exp)
	if delay > max {
		delay = max
	}
	return delay
}
