package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/richardliu001/reliability-core/internal/dbtx"
)

// ErrInsufficientFunds is returned when a withdrawal or transfer would
// drive a wallet's balance below zero.
var ErrInsufficientFunds = errors.New("wallet: insufficient funds")

// ErrOptimisticLock is returned when a concurrent writer already advanced
// a wallet's version past the one this update was conditioned on.
var ErrOptimisticLock = errors.New("wallet: optimistic lock conflict")

// Repository is the wallet store: row-locked reads, version-conditioned
// writes, append-only transaction history, and a redis balance cache,
// grounded on the teacher's repo.Repository.
type Repository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewRepository builds a Repository.
func NewRepository(db *gorm.DB, rdb *redis.Client) *Repository {
	return &Repository{db: db, rdb: rdb}
}

// DB returns the transaction the command bus attached to ctx (via
// internal/dbtx), or the underlying handle bound to ctx when none is
// attached.
func (r *Repository) DB(ctx context.Context) *gorm.DB { return dbtx.From(ctx, r.db).WithContext(ctx) }

// GetOrCreateForUpdate loads walletID row-locked within tx, auto-creating a
// zero-balance wallet the first time it's touched.
func (r *Repository) GetOrCreateForUpdate(ctx context.Context, tx *gorm.DB, walletID uint64) (*Wallet, error) {
	var w Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", walletID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w = Wallet{ID: walletID, Balance: decimal.Zero, Version: 0}
		if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&w).Error; err != nil {
			return nil, fmt.Errorf("auto-create wallet: %w", err)
		}
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", walletID).First(&w).Error; err != nil {
			return nil, fmt.Errorf("reload auto-created wallet: %w", err)
		}
		return &w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return &w, nil
}

// UpdateBalance conditions the write on oldVersion, the way the teacher's
// UpdateWallet does, returning ErrOptimisticLock if another writer already
// advanced the row.
func (r *Repository) UpdateBalance(ctx context.Context, tx *gorm.DB, walletID uint64, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&Wallet{}).
		Where("id = ? AND version = ?", walletID, oldVersion).
		Updates(map[string]any{
			"balance":    newBalance,
			"version":    oldVersion + 1,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update wallet balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// CreateTransaction appends one ledger row.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// TxExists implements idempotency-by-key: a repeated (walletID, idemKey,
// txType) triple returns the original row instead of re-applying it.
func (r *Repository) TxExists(ctx context.Context, tx *gorm.DB, walletID uint64, idemKey, txType string) (bool, *Transaction, error) {
	if idemKey == "" {
		return false, nil, nil
	}
	var t Transaction
	err := tx.WithContext(ctx).
		Where("wallet_id = ? AND idempotency_key = ? AND type = ?", walletID, idemKey, txType).
		First(&t).Error
	if err == nil {
		return true, &t, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil, nil
	}
	return false, nil, fmt.Errorf("check transaction idempotency: %w", err)
}

// History returns walletID's transactions newest-first, capped at limit,
// optionally filtered to rows created since `since`.
func (r *Repository) History(ctx context.Context, walletID uint64, limit int, since *time.Time) ([]Transaction, error) {
	q := r.db.WithContext(ctx).Where("wallet_id = ?", walletID)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	var txs []Transaction
	if err := q.Order("created_at DESC").Limit(limit).Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("list wallet history: %w", err)
	}
	return txs, nil
}

func balanceCacheKey(walletID uint64) string { return fmt.Sprintf("wallet:balance:%d", walletID) }

// CacheBalance writes walletID's balance to redis with a five minute TTL.
func (r *Repository) CacheBalance(ctx context.Context, walletID uint64, bal decimal.Decimal) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, balanceCacheKey(walletID), bal.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads walletID's cached balance, returning
// redis.Nil-wrapped errors unchanged so callers can fall back to the db.
func (r *Repository) GetCachedBalance(ctx context.Context, walletID uint64) (decimal.Decimal, error) {
	if r.rdb == nil {
		return decimal.Zero, redis.Nil
	}
	str, err := r.rdb.Get(ctx, balanceCacheKey(walletID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
