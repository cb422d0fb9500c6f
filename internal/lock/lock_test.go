package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&Row{}))
	return db
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.Duration)
	assert.Equal(t, 10, cfg.Retries)
	assert.Equal(t, time.Second, cfg.RetryInterval)
}

func TestManager_Acquire_RedisSucceedsOnFirstTry(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := NewManager(rdb, nil, DefaultConfig())

	mock.Regexp().ExpectSetNX("orders:wallet-1", `\d+`, 5*time.Second).SetVal(true)

	owner, err := m.Acquire(context.Background(), "orders", "wallet-1", 5*time.Second, 1, time.Millisecond)
	assert.NoError(t, err)
	assert.NotEmpty(t, owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Acquire_RedisRetriesThenTimesOut(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := NewManager(rdb, nil, DefaultConfig())

	mock.Regexp().ExpectSetNX("orders:wallet-1", `\d+`, 5*time.Second).SetVal(false)
	mock.Regexp().ExpectSetNX("orders:wallet-1", `\d+`, 5*time.Second).SetVal(false)

	_, err := m.Acquire(context.Background(), "orders", "wallet-1", 5*time.Second, 1, time.Millisecond)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Acquire_ClampsDurationToRange(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := NewManager(rdb, nil, DefaultConfig())

	mock.Regexp().ExpectSetNX("p:n", `\d+`, time.Second).SetVal(true)
	_, err := m.Acquire(context.Background(), "p", "n", 100*time.Millisecond, 1, time.Millisecond)
	assert.NoError(t, err)

	mock.Regexp().ExpectSetNX("p:n2", `\d+`, 60*time.Second).SetVal(true)
	_, err = m.Acquire(context.Background(), "p", "n2", time.Hour, 1, time.Millisecond)
	assert.NoError(t, err)
}

func TestManager_Release_RedisOnlyDeletesWhenOwnerMatches(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := NewManager(rdb, nil, DefaultConfig())

	mock.ExpectGet("p:n").SetVal("owner-a")
	mock.ExpectDel("p:n").SetVal(1)
	assert.NoError(t, m.Release(context.Background(), "p", "n", "owner-a"))
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectGet("p:n").SetVal("owner-b")
	assert.NoError(t, m.Release(context.Background(), "p", "n", "owner-a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Acquire_DBFallback_SucceedsThenBlocksSecondOwner(t *testing.T) {
	db := newTestDB(t)
	m := NewManager(nil, db, DefaultConfig())
	ctx := context.Background()

	owner1, err := m.Acquire(ctx, "p", "n", 5*time.Second, 1, time.Millisecond)
	assert.NoError(t, err)
	assert.NotEmpty(t, owner1)

	_, err = m.Acquire(ctx, "p", "n", 5*time.Second, 1, time.Millisecond)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
}

func TestManager_Acquire_DBFallback_ReclaimsExpiredRow(t *testing.T) {
	db := newTestDB(t)
	m := NewManager(nil, db, DefaultConfig())
	ctx := context.Background()

	assert.NoError(t, db.Create(&Row{Name: "p:n", Owner: "stale", ExpiresAt: time.Now().Add(-time.Minute)}).Error)

	owner, err := m.Acquire(ctx, "p", "n", 5*time.Second, 1, time.Millisecond)
	assert.NoError(t, err)
	assert.NotEmpty(t, owner)
}

func TestManager_Release_DBFallback_DeletesOwnedRow(t *testing.T) {
	db := newTestDB(t)
	m := NewManager(nil, db, DefaultConfig())
	ctx := context.Background()

	owner, err := m.Acquire(ctx, "p", "n", 5*time.Second, 1, time.Millisecond)
	assert.NoError(t, err)

	assert.NoError(t, m.Release(ctx, "p", "n", owner))

	var count int64
	db.Model(&Row{}).Where("name = ?", "p:n").Count(&count)
	assert.Zero(t, count)
}

func TestManager_WithLock_ReleasesEvenOnError(t *testing.T) {
	db := newTestDB(t)
	m := NewManager(nil, db, DefaultConfig())
	ctx := context.Background()

	err := m.WithLock(ctx, "p", "n", 5*time.Second, 1, time.Millisecond, func(ctx context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	var count int64
	db.Model(&Row{}).Where("name = ?", "p:n").Count(&count)
	assert.Zero(t, count)
}

func TestManager_Acquire_ContextCancelledDuringWaitReturnsErr(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := NewManager(rdb, nil, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	mock.Regexp().ExpectSetNX("p:n", `\d+`, 5*time.Second).SetVal(false)
	cancel()

	_, err := m.Acquire(ctx, "p", "n", 5*time.Second, 1, time.Millisecond)
	assert.Error(t, err)
}
