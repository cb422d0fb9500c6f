// Package lock implements the coarse, named, short-TTL mutual exclusion
// primitive (C13): a cache-first add-if-absent check against Redis, with a
// gorm-backed fallback row so the lock still works (cluster-unsafe, but
// correct for a single instance) when no cache is configured.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAcquireTimeout is returned when a lock could not be acquired within
// the configured retry budget.
var ErrAcquireTimeout = errors.New("lock: could not acquire within retry budget")

// Row is the database fallback's gorm model.
type Row struct {
	Name      string `gorm:"primaryKey;column:name;size:256"`
	Owner     string `gorm:"column:owner;size:128"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

// TableName implements gorm's Tabler.
func (Row) TableName() string { return "locks" }

// Config matches §6's "lock" configuration table.
type Config struct {
	Duration      time.Duration
	Retries       int
	RetryInterval time.Duration
}

// DefaultConfig returns 30s / 10 / 1000ms, per the specification.
func DefaultConfig() Config {
	return Config{Duration: 30 * time.Second, Retries: 10, RetryInterval: time.Second}
}

// Manager acquires and releases named locks.
type Manager struct {
	redis   *redis.Client
	db      *gorm.DB
	cfg     Config
	limiter *rate.Limiter
}

// NewManager builds a Manager. redisClient may be nil to force the database
// fallback path.
func NewManager(redisClient *redis.Client, db *gorm.DB, cfg Config) *Manager {
	return &Manager{
		redis:   redisClient,
		db:      db,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(10*time.Millisecond), 1),
	}
}

func key(prefix, name string) string {
	return fmt.Sprintf("%s:%s", prefix, name)
}

// Acquire attempts to take the named lock, retrying up to retries times
// spaced retryInterval apart (cfg.Retries / cfg.RetryInterval when those
// arguments are <= 0), paced additionally by an internal rate.Limiter so a
// near-zero retry interval can't spin the CPU. duration is clamped to
// [1s, 60s].
func (m *Manager) Acquire(ctx context.Context, prefix, name string, duration time.Duration, retries int, retryInterval time.Duration) (string, error) {
	if duration < time.Second {
		duration = time.Second
	}
	if duration > 60*time.Second {
		duration = 60 * time.Second
	}
	if retries <= 0 {
		retries = m.cfg.Retries
	}
	if retries <= 0 {
		retries = DefaultConfig().Retries
	}
	if retryInterval <= 0 {
		retryInterval = m.cfg.RetryInterval
	}
	if retryInterval <= 0 {
		retryInterval = DefaultConfig().RetryInterval
	}

	owner := fmt.Sprintf("%d", time.Now().UnixNano())
	full := key(prefix, name)

	for attempt := 0; attempt <= retries; attempt++ {
		ok, err := m.tryAcquire(ctx, full, owner, duration)
		if err != nil {
			return "", err
		}
		if ok {
			return owner, nil
		}
		if attempt == retries {
			break
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return "", err
		}
		select {
		case <-time.After(retryInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", ErrAcquireTimeout
}

func (m *Manager) tryAcquire(ctx context.Context, full, owner string, duration time.Duration) (bool, error) {
	if m.redis != nil {
		ok, err := m.redis.SetNX(ctx, full, owner, duration).Result()
		if err != nil {
			return false, fmt.Errorf("redis setnx: %w", err)
		}
		return ok, nil
	}
	return m.tryAcquireDB(ctx, full, owner, duration)
}

func (m *Manager) tryAcquireDB(ctx context.Context, full, owner string, duration time.Duration) (bool, error) {
	now := time.Now().UTC()

	// Expiry is compared against wall clock on every attempt; a row whose
	// TTL has elapsed is proactively cleared before retrying.
	m.db.WithContext(ctx).
		Where("name = ? AND expires_at < ?", full, now).
		Delete(&Row{})

	row := &Row{Name: full, Owner: owner, ExpiresAt: now.Add(duration)}
	res := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, fmt.Errorf("insert lock row: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Release deletes the named lock if owned by owner.
func (m *Manager) Release(ctx context.Context, prefix, name, owner string) error {
	full := key(prefix, name)
	if m.redis != nil {
		val, err := m.redis.Get(ctx, full).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("redis get: %w", err)
		}
		if val == owner {
			return m.redis.Del(ctx, full).Err()
		}
		return nil
	}
	return m.db.WithContext(ctx).
		Where("name = ? AND owner = ?", full, owner).
		Delete(&Row{}).Error
}

// WithLock runs fn while holding the named lock, releasing it on every
// exit path (including panics propagating out of fn).
func (m *Manager) WithLock(ctx context.Context, prefix, name string, duration time.Duration, retries int, retryInterval time.Duration, fn func(ctx context.Context) error) error {
	owner, err := m.Acquire(ctx, prefix, name, duration, retries, retryInterval)
	if err != nil {
		return err
	}
	defer func() {
		_ = m.Release(ctx, prefix, name, owner)
	}()
	return fn(ctx)
}
