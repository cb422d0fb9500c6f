package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/richardliu001/reliability-core/internal/asyncqueue"
	"github.com/richardliu001/reliability-core/internal/budget"
	"github.com/richardliu001/reliability-core/internal/config"
)

type singleItemConfig struct {
	Tag   string
	Fail  bool
	Waits bool
}

func (c singleItemConfig) PayloadTag() string    { return c.Tag }
func (c singleItemConfig) IsBatchable() bool     { return false }
func (c singleItemConfig) DefaultBatchSize() int { return 1 }

type singleItemBehaviour struct{ cfg singleItemConfig }

func (b singleItemBehaviour) GenerateWorkItems(wf *Workflow, config BehaviourConfig) ([]ItemSeed, error) {
	return []ItemSeed{{ItemKey: "only", Payload: ""}}, nil
}

func (b singleItemBehaviour) ExecuteOne(config BehaviourConfig, item *WorkItem, previous *ExecutionResult) (ExecutionResult, error) {
	if b.cfg.Fail {
		return ExecutionResult{Status: StatusFailed, Success: false}, nil
	}
	if b.cfg.Waits {
		return ExecutionResult{Status: StatusWaiting, Success: false}, nil
	}
	return ExecutionResult{Status: StatusCompleted, Success: true}, nil
}

type fakeWFQueue struct {
	enqueued  []asyncqueue.Job
	scheduled []asyncqueue.Job
}

func (q *fakeWFQueue) EnqueueAsync(ctx context.Context, job asyncqueue.Job) error {
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *fakeWFQueue) ScheduleSingle(ctx context.Context, at time.Time, job asyncqueue.Job) error {
	q.scheduled = append(q.scheduled, job)
	return nil
}

func newTestRunnerEnv(t *testing.T, queue asyncqueue.Queue) (*Runner, *Repository, *Registry) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&Workflow{}, &WorkItem{}))

	reg := NewRegistry()
	registerSingleItemTags(reg)

	repo := NewRepository(db, reg)
	ledger := NewLedger(db)
	cfg := config.WorkflowConfig{MaxRetries: 3, RescheduleInterval: 5, ForkDelaySeconds: 30}
	runner := NewRunner(repo, ledger, reg, queue, budget.DefaultConfig(), cfg, zap.NewNop().Sugar())
	return runner, repo, reg
}

func registerSingleItemTags(reg *Registry) {
	for _, tag := range []string{"step-ok", "step-fail", "step-wait"} {
		tag := tag
		reg.RegisterBehaviour(tag, singleItemConfig{Tag: tag}, func(c BehaviourConfig) Behaviour {
			return singleItemBehaviour{cfg: c.(singleItemConfig)}
		})
	}
}

func TestRunner_Run_CompletesAllStepsOfSimpleWorkflow(t *testing.T) {
	runner, repo, _ := newTestRunnerEnv(t, nil)
	ctx := context.Background()

	wf := &Workflow{Configs: []BehaviourConfig{
		singleItemConfig{Tag: "step-ok"},
		singleItemConfig{Tag: "step-ok"},
	}}

	assert.NoError(t, runner.Run(ctx, wf))
	assert.True(t, wf.IsComplete)
	assert.False(t, wf.IsFailed)

	loaded, err := repo.GetByID(ctx, wf.ID)
	assert.NoError(t, err)
	assert.True(t, loaded.IsComplete)
}

func TestRunner_Run_FailedStepMarksWorkflowFailedAfterRetries(t *testing.T) {
	runner, _, _ := newTestRunnerEnv(t, nil)
	ctx := context.Background()

	wf := &Workflow{Configs: []BehaviourConfig{singleItemConfig{Tag: "step-fail", Fail: true}}}

	// exhaust MaxRetries=3: each Run call appends one failed entry to history
	for i := 0; i < 4; i++ {
		err := runner.Run(ctx, wf)
		assert.NoError(t, err)
		if wf.IsFailed {
			break
		}
	}
	assert.True(t, wf.IsFailed)
}

func TestRunner_Run_WaitingStepReturnsWithoutSchedulingFurtherWork(t *testing.T) {
	queue := &fakeWFQueue{}
	runner, _, _ := newTestRunnerEnv(t, queue)
	ctx := context.Background()

	wf := &Workflow{Configs: []BehaviourConfig{
		singleItemConfig{Tag: "step-wait", Waits: true},
		singleItemConfig{Tag: "step-ok"},
	}}
	assert.NoError(t, runner.Run(ctx, wf))
	assert.False(t, wf.IsComplete)
	assert.False(t, wf.IsFailed)
	assert.Equal(t, 1, wf.CurrentIdx)
	assert.Empty(t, queue.enqueued)
	assert.Empty(t, queue.scheduled)
}

func TestRunner_RunAll_RunsFirstSynchronouslyAndSchedulesRest(t *testing.T) {
	queue := &fakeWFQueue{}
	runner, _, _ := newTestRunnerEnv(t, queue)
	ctx := context.Background()

	wf1 := &Workflow{Configs: []BehaviourConfig{singleItemConfig{Tag: "step-ok"}}}
	wf2 := &Workflow{Configs: []BehaviourConfig{singleItemConfig{Tag: "step-ok"}}}

	assert.NoError(t, runner.RunAll(ctx, []*Workflow{wf1, wf2}))
	assert.True(t, wf1.IsComplete)
	assert.NotZero(t, wf2.ID)
	assert.Len(t, queue.enqueued, 1)
	assert.Equal(t, RunWorkflowJobName, queue.enqueued[0].Name)
}

type batchConfig struct {
	Tag string
}

func (c batchConfig) PayloadTag() string    { return c.Tag }
func (c batchConfig) IsBatchable() bool     { return true }
func (c batchConfig) DefaultBatchSize() int { return 10 }

type batchBehaviour struct{}

func (b batchBehaviour) GenerateWorkItems(wf *Workflow, config BehaviourConfig) ([]ItemSeed, error) {
	return []ItemSeed{{ItemKey: "ok-item"}, {ItemKey: "bad-item"}}, nil
}

func (b batchBehaviour) ExecuteOne(config BehaviourConfig, item *WorkItem, previous *ExecutionResult) (ExecutionResult, error) {
	if item.ItemKey == "bad-item" {
		return ExecutionResult{Status: StatusFailed, Success: false}, nil
	}
	return ExecutionResult{Status: StatusCompleted, Success: true}, nil
}

func TestRunner_Run_ForksFailedBatchItemsIntoChildWorkflow(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&Workflow{}, &WorkItem{}))

	reg := NewRegistry()
	reg.RegisterBehaviour("batch-step", batchConfig{}, func(c BehaviourConfig) Behaviour { return batchBehaviour{} })

	repo := NewRepository(db, reg)
	ledger := NewLedger(db)
	cfg := config.WorkflowConfig{MaxRetries: 3, RescheduleInterval: 5, ForkDelaySeconds: 30}
	queue := &fakeWFQueue{}
	runner := NewRunner(repo, ledger, reg, queue, budget.DefaultConfig(), cfg, zap.NewNop().Sugar())

	ctx := context.Background()
	wf := &Workflow{Configs: []BehaviourConfig{batchConfig{Tag: "batch-step"}}}

	assert.NoError(t, runner.Run(ctx, wf))
	assert.True(t, wf.IsComplete)
	assert.Equal(t, 1, len(wf.Results))
	assert.Equal(t, StatusForked, wf.Results[0].Status)
	assert.True(t, wf.Results[0].Success)
	assert.Len(t, queue.scheduled, 1)

	children, err := repo.GetByRefID(ctx, "", "")
	assert.NoError(t, err)
	var child *Workflow
	for _, c := range children {
		if c.IsFork() {
			child = c
		}
	}
	assert.NotNil(t, child)
	assert.Equal(t, wf.ID, *child.RootWorkflowID)

	badItem, err := ledger.FindByUnique(ctx, child.ID, 0, 1, "bad-item")
	assert.NoError(t, err)
	assert.Equal(t, ItemPending, badItem.Status)
}

func TestRunner_RunByID_LoadsAndRuns(t *testing.T) {
	runner, repo, _ := newTestRunnerEnv(t, nil)
	ctx := context.Background()

	wf := &Workflow{Configs: []BehaviourConfig{singleItemConfig{Tag: "step-ok"}}}
	id, err := repo.Save(ctx, wf)
	assert.NoError(t, err)

	assert.NoError(t, runner.RunByID(ctx, id))

	loaded, err := repo.GetByID(ctx, id)
	assert.NoError(t, err)
	assert.True(t, loaded.IsComplete)
}
