// Package app wires the reliability core's collaborators once so every
// cmd/ entrypoint that serves traffic or runs a worker (the HTTP server and
// the outbox/process/workflow workers) builds the same dependency graph instead of
// duplicating it, the way the teacher's cmd/server and cmd/poller used to
// each hand-assemble their own copy of the same repo/redis/kafka trio.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/richardliu001/reliability-core/internal/asyncqueue"
	"github.com/richardliu001/reliability-core/internal/budget"
	"github.com/richardliu001/reliability-core/internal/config"
	"github.com/richardliu001/reliability-core/internal/event"
	"github.com/richardliu001/reliability-core/internal/lock"
	"github.com/richardliu001/reliability-core/internal/longprocess"
	"github.com/richardliu001/reliability-core/internal/outbox"
	"github.com/richardliu001/reliability-core/internal/pipeline"
	"github.com/richardliu001/reliability-core/internal/storage"
	"github.com/richardliu001/reliability-core/internal/wallet"
	"github.com/richardliu001/reliability-core/internal/workflow"
)

// App is the fully wired dependency graph shared by every binary.
type App struct {
	Config *config.Config
	Log    *zap.SugaredLogger

	DB    *gorm.DB
	Redis *redis.Client
	Kafka *kafka.Writer

	Queue *asyncqueue.InProcessQueue

	OutboxStore     *outbox.Store
	OutboxPublisher *outbox.Router
	OutboxProcessor *outbox.Processor
	EventRouter     *event.Router
	Dispatcher      *event.InProcessDispatcher

	CommandBus *pipeline.CommandBus
	WalletRepo *wallet.Repository
	WalletSvc  *wallet.Service

	LockManager *lock.Manager

	LongProcessRegistry *longprocess.Registry
	LongProcessRunner   *longprocess.Runner

	WorkflowRegistry *workflow.Registry
	WorkflowLedger   *workflow.Ledger
	WorkflowRepo     *workflow.Repository
	WorkflowRunner   *workflow.Runner
}

// New opens every external connection and wires every collaborator. ctx
// bounds connection-time checks (redis ping) and the lifetime of the
// in-process queue's worker goroutines, which start here; the outbox
// processor loop is started separately by the caller via OutboxProcessor.Run.
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := storage.EnsureSchema(db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	queue := asyncqueue.NewInProcessQueue(ctx, 8)

	outboxCfg := outbox.Config{
		MaxAttempts:     cfg.Outbox.MaxAttempts,
		BaseRetryDelay:  secondsToDuration(cfg.Outbox.BaseRetryDelaySeconds),
		RetryMultiplier: cfg.Outbox.RetryMultiplier,
		MaxRetryDelay:   secondsToDuration(cfg.Outbox.MaxRetryDelaySeconds),
		LockTTL:         secondsToDuration(cfg.Outbox.LockTimeoutSeconds),
		DefaultGroup:    cfg.Outbox.DefaultGroup,
	}
	outboxStore := outbox.NewStore(db, outboxCfg)
	kafkaSink := outbox.NewKafkaSink(kw)
	outboxRouter := outbox.NewRouter(queue, kafkaSink)
	outboxRouter.RouteLargePayloadsExternal = cfg.Outbox.RouteLargePayloadsExternal
	outboxRouter.MaxInProcessBytes = cfg.Outbox.MaxInProcessBytes
	outboxRouter.DefaultGroup = cfg.Outbox.DefaultGroup
	outboxProcessor := outbox.NewProcessor(outboxStore, outboxRouter, log,
		cfg.Outbox.BatchSize, outboxCfg.LockTTL, secondsToDuration(cfg.Outbox.ProcessorIntervalSeconds), "")

	dispatcher := event.NewInProcessDispatcher()
	singleBlog := func(context.Context) int64 { return 0 }
	outboxBus := outbox.NewBus(outboxStore, singleBlog)
	eventRouter := event.NewRouter(dispatcher, outboxBus)

	auditStore := pipeline.NewAuditStore(db)
	commandBus := pipeline.NewCommandBus(db, eventRouter, auditStore, log, "production")

	walletRepo := wallet.NewRepository(db, rdb)
	walletSvc := wallet.NewService(walletRepo, commandBus.UnitOfWork(), log)
	wallet.RegisterHandlers(commandBus, walletSvc)

	lockCfg := lock.Config{
		Duration:      secondsToDuration(cfg.Lock.DurationSeconds),
		Retries:       cfg.Lock.Retries,
		RetryInterval: millisToDuration(cfg.Lock.RetryIntervalMS),
	}
	lockManager := lock.NewManager(rdb, db, lockCfg)

	budgetCfg := budget.Config{
		MaxExecution:       secondsToDuration(cfg.Runner.MaxExecutionSeconds),
		MemoryLimitPercent: cfg.Runner.MemoryLimitPercent,
		MemoryCapBytes:     budget.DefaultConfig().MemoryCapBytes,
	}

	lpRegistry := longprocess.NewRegistry()
	lpRegistry.Register(wallet.ProvisionWalletProcessClass, wallet.ProvisionWalletFactory)
	lpCodec := longprocess.NewPayloadCodec()
	lpRepo := longprocess.NewRepository(db)
	lpDispatcher := wallet.NewCommandBusDispatcher(commandBus)
	lpRunner := longprocess.NewRunner(lpRepo, lpRegistry, lpCodec, queue, lpDispatcher, budgetCfg, log)
	longprocess.RegisterContinuationHandler(queue, lpRunner)

	wfRegistry := workflow.NewRegistry()
	wfRegistry.RegisterBehaviour(wallet.ReconciliationConfigTag, wallet.ReconciliationConfig{}, wallet.NewReconciliationBehaviourFactory(walletRepo))
	wfLedger := workflow.NewLedger(db)
	wfRepo := workflow.NewRepository(db, wfRegistry)
	wfRunner := workflow.NewRunner(wfRepo, wfLedger, wfRegistry, queue, budgetCfg, cfg.Workflow, log)
	workflow.RegisterContinuationHandler(queue, wfRunner)

	return &App{
		Config: cfg,
		Log:    log,

		DB:    db,
		Redis: rdb,
		Kafka: kw,

		Queue: queue,

		OutboxStore:     outboxStore,
		OutboxPublisher: outboxRouter,
		OutboxProcessor: outboxProcessor,
		EventRouter:     eventRouter,
		Dispatcher:      dispatcher,

		CommandBus: commandBus,
		WalletRepo: walletRepo,
		WalletSvc:  walletSvc,

		LockManager: lockManager,

		LongProcessRegistry: lpRegistry,
		LongProcessRunner:   lpRunner,

		WorkflowRegistry: wfRegistry,
		WorkflowLedger:   wfLedger,
		WorkflowRepo:     wfRepo,
		WorkflowRunner:   wfRunner,
	}, nil
}

func secondsToDuration(s int) time.Duration { return time.Duration(s) * time.Second }

func millisToDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
