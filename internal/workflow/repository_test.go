package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestWorkflowRepo(t *testing.T) (*Repository, *Registry) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&Workflow{}))

	reg := NewRegistry()
	reg.RegisterBehaviour("Stub", stubConfig{}, func(c BehaviourConfig) Behaviour { return stubBehaviour{cfg: c} })
	return NewRepository(db, reg), reg
}

func TestRepository_Save_InsertsThenGetByIDRehydrates(t *testing.T) {
	repo, _ := newTestWorkflowRepo(t)
	ctx := context.Background()

	wf := &Workflow{
		RefID:   "wallet-7",
		RefType: "Wallet",
		Configs: []BehaviourConfig{stubConfig{Batch: 3}},
		Meta:    map[string]string{"source": "test"},
	}
	id, err := repo.Save(ctx, wf)
	assert.NoError(t, err)
	assert.NotZero(t, id)

	loaded, err := repo.GetByID(ctx, id)
	assert.NoError(t, err)
	assert.Len(t, loaded.Configs, 1)
	assert.Equal(t, 3, loaded.Configs[0].DefaultBatchSize())
	assert.Equal(t, "test", loaded.Meta["source"])
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	repo, _ := newTestWorkflowRepo(t)
	_, err := repo.GetByID(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestRepository_GetByRefID(t *testing.T) {
	repo, _ := newTestWorkflowRepo(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, &Workflow{RefID: "wallet-7", RefType: "Wallet", Configs: []BehaviourConfig{stubConfig{}}})
	assert.NoError(t, err)
	_, err = repo.Save(ctx, &Workflow{RefID: "wallet-8", RefType: "Wallet", Configs: []BehaviourConfig{stubConfig{}}})
	assert.NoError(t, err)

	found, err := repo.GetByRefID(ctx, "wallet-7", "Wallet")
	assert.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, "wallet-7", found[0].RefID)
}
