// Package storage owns the schema every component's gorm model maps onto:
// an AutoMigrate-based fast path run at process start (grounded on the
// teacher's cmd/server AutoMigrate call), and versioned golang-migrate SQL
// files under migrations/ for production rollout.
package storage

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/richardliu001/reliability-core/internal/lock"
	"github.com/richardliu001/reliability-core/internal/longprocess"
	"github.com/richardliu001/reliability-core/internal/outbox"
	"github.com/richardliu001/reliability-core/internal/pipeline"
	"github.com/richardliu001/reliability-core/internal/wallet"
	"github.com/richardliu001/reliability-core/internal/workflow"
)

// Models lists every gorm-mapped table this module owns, in an order safe
// for AutoMigrate (no forward foreign keys).
func Models() []any {
	return []any{
		&wallet.Wallet{},
		&wallet.Transaction{},
		&outbox.Entry{},
		&outbox.DLQEntry{},
		&longprocess.Record{},
		&workflow.Workflow{},
		&workflow.WorkItem{},
		&pipeline.CommandAudit{},
		&lock.Row{},
	}
}

// EnsureSchema runs gorm.AutoMigrate over every owned model. It is
// idempotent — safe to call on every process start, which app.New does.
// The sqlite-based package tests do not call it; each AutoMigrates the
// model types it needs.
func EnsureSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
