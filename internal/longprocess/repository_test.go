package longprocess

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&Record{}))
	return NewRepository(db), db
}

func TestRepository_Save_InsertsThenUpdates(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	rec := &Record{ProcessClass: "Test", Status: StatusRunning, UndoIndex: -1}
	id, err := repo.Save(ctx, nil, rec)
	assert.NoError(t, err)
	assert.NotZero(t, id)

	rec.Status = StatusCompleted
	_, err = repo.Save(ctx, nil, rec)
	assert.NoError(t, err)

	got, err := repo.Find(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestRepository_Find_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Find(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_FindWaitingFor(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	waiting := "WalletCredited"

	_, err := repo.Save(ctx, nil, &Record{ProcessClass: "A", Status: StatusSuspended, WaitingFor: &waiting, UndoIndex: -1})
	assert.NoError(t, err)
	_, err = repo.Save(ctx, nil, &Record{ProcessClass: "B", Status: StatusRunning, UndoIndex: -1})
	assert.NoError(t, err)

	found, err := repo.FindWaitingFor(ctx, "WalletCredited")
	assert.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, "A", found[0].ProcessClass)
}

func TestRepository_Delete(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	id, err := repo.Save(ctx, nil, &Record{ProcessClass: "A", Status: StatusRunning, UndoIndex: -1})
	assert.NoError(t, err)

	assert.NoError(t, repo.Delete(ctx, id))
	_, err = repo.Find(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEncodeJSONHelpers(t *testing.T) {
	raw, err := encodeJSON(map[string]any{"a": 1})
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, decodeJSONMap(raw))

	raw, err = encodeJSON(nil)
	assert.NoError(t, err)
	assert.Empty(t, raw)

	raw, err = encodeJSON([]string{"x", "y"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, decodeJSONStrings(raw))

	assert.Nil(t, decodeJSONStrings(""))
	assert.Equal(t, map[string]any{}, decodeJSONMap(""))
}
