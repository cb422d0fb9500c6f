// Package pipeline implements the command bus and its fixed middleware
// chain (C12): audit, correlation, transaction, publish, then the handler
// itself — outside-in, in that order.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/richardliu001/reliability-core/internal/correlation"
	"github.com/richardliu001/reliability-core/internal/dbtx"
	"github.com/richardliu001/reliability-core/internal/event"
	"github.com/richardliu001/reliability-core/internal/unitofwork"
)

// Command is any request the bus can route to a handler.
type Command interface {
	CommandName() string
}

// Transactional is an opt-in marker trait (§4.12 step 3): a command
// implementing it runs its handler inside a database transaction.
type Transactional interface {
	Transactional() bool
}

// Sourced lets a command declare who initiated it, for the audit row.
type Sourced interface {
	Source() (AuditSource, string)
}

// HandlerFunc executes one command and returns its result.
type HandlerFunc func(ctx context.Context, cmd Command) (any, error)

// CommandBus dispatches commands through the fixed middleware chain.
type CommandBus struct {
	db       *gorm.DB
	router   *event.Router
	audit    *AuditStore
	uow      *unitofwork.UnitOfWork
	handlers map[string]HandlerFunc
	log      *zap.SugaredLogger
	environment string
}

// NewCommandBus wires the bus's collaborators.
func NewCommandBus(db *gorm.DB, router *event.Router, audit *AuditStore, log *zap.SugaredLogger, environment string) *CommandBus {
	return &CommandBus{
		db:          db,
		router:      router,
		audit:       audit,
		uow:         unitofwork.New(),
		handlers:    make(map[string]HandlerFunc),
		log:         log,
		environment: environment,
	}
}

// Register binds a command name to its handler.
func (b *CommandBus) Register(commandName string, fn HandlerFunc) {
	b.handlers[commandName] = fn
}

// Handle runs the fixed middleware chain around the command's registered
// handler.
func (b *CommandBus) Handle(ctx context.Context, cmd Command) (any, error) {
	handler, ok := b.handlers[cmd.CommandName()]
	if !ok {
		return nil, fmt.Errorf("pipeline: no handler registered for command %q", cmd.CommandName())
	}

	// 1. Audit — outermost, so command_id exists before correlation is
	// touched and the row is written even if the transaction rolls back.
	commandID := correlation.From(ctx).CommandID()
	if commandID == "" {
		commandID = newCommandID()
	}
	auditRow := &CommandAudit{CommandID: commandID, CommandName: cmd.CommandName(), Environment: b.environment}
	if sourced, ok := cmd.(Sourced); ok {
		auditRow.Source, auditRow.SourceID = sourced.Source()
	} else {
		auditRow.Source = SourceSystem
	}
	if paramsJSON, err := json.Marshal(cmd); err == nil {
		auditRow.Parameters = string(paramsJSON)
	}

	ctx, corrCtx := b.withCorrelation(ctx, commandID)
	auditRow.CorrelationID = corrCtx.Get()

	if err := b.audit.Preflight(ctx, auditRow); err != nil {
		b.log.Errorw("audit preflight failed", "error", err)
	}

	defer corrCtx.Reset()

	result, events, handlerErr := b.runTransactionAndPublish(ctx, cmd, handler)

	eventNames := make([]string, len(events))
	for i, e := range events {
		eventNames[i] = e.Name()
	}
	if err := b.audit.Finalize(ctx, auditRow, eventNames, handlerErr); err != nil {
		b.log.Errorw("audit finalize failed", "error", err)
	}

	return result, handlerErr
}

// withCorrelation implements §4.12 step 2: ensure the context has a
// correlation id, generating one if absent.
func (b *CommandBus) withCorrelation(ctx context.Context, commandID string) (context.Context, *correlation.Context) {
	corrCtx := correlation.From(ctx)
	ctx = correlation.Into(ctx, corrCtx)
	corrCtx.SetCommandID(commandID)
	corrCtx.Get() // force generation if absent
	return ctx, corrCtx
}

// runTransactionAndPublish implements §4.12 steps 3-5: transaction wraps
// publish wraps the handler.
func (b *CommandBus) runTransactionAndPublish(ctx context.Context, cmd Command, handler HandlerFunc) (any, []event.DomainEvent, error) {
	wantsTx := false
	if t, ok := cmd.(Transactional); ok {
		wantsTx = t.Transactional()
	}

	if !wantsTx {
		result, events, err := b.publishAround(ctx, cmd, handler)
		return result, events, err
	}

	var result any
	var events []event.DomainEvent
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := dbtx.Into(ctx, tx)
		var innerErr error
		result, events, innerErr = b.publishAround(txCtx, cmd, handler)
		return innerErr
	})
	return result, events, err
}

// publishAround implements §4.12 step 4: reset the unit of work, run the
// handler, then drain and route recorded events.
func (b *CommandBus) publishAround(ctx context.Context, cmd Command, handler HandlerFunc) (any, []event.DomainEvent, error) {
	b.uow.Reset()
	result, err := handler(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	drained := b.uow.Drain()
	for _, e := range drained {
		if pubErr := b.router.Publish(ctx, e); pubErr != nil {
			return result, drained, pubErr
		}
	}
	return result, drained, nil
}

// UnitOfWork exposes the bus's shared unit of work so aggregates'
// handlers can record events into it.
func (b *CommandBus) UnitOfWork() *unitofwork.UnitOfWork { return b.uow }

func newCommandID() string {
	return uuid.NewString()
}
