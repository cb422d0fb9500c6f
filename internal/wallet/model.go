// Package wallet is the sample domain aggregate exercising the
// reliability core: deposits, withdrawals and transfers record integration
// events into a unit of work instead of hand-writing outbox rows, the way
// the teacher's wallet service once did directly.
package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/richardliu001/reliability-core/internal/event"
)

// Wallet is the balance-holding aggregate root, unchanged from the
// teacher's model but now also an unitofwork.AggregateRoot.
type Wallet struct {
	ID        uint64          `gorm:"primaryKey;column:id"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	Version   uint64          `gorm:"not null;default:0"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`

	recorded []event.DomainEvent `gorm:"-"`
}

// TableName implements gorm's Tabler.
func (Wallet) TableName() string { return "wallet" }

// record buffers a domain event for RecordedEvents to drain.
func (w *Wallet) record(e event.DomainEvent) {
	w.recorded = append(w.recorded, e)
}

// RecordedEvents implements unitofwork.AggregateRoot.
func (w *Wallet) RecordedEvents() []event.DomainEvent {
	drained := w.recorded
	w.recorded = nil
	return drained
}

// Transaction is the append-only ledger row backing idempotency and
// history (§3 adjacent, grounded on the teacher's model.Transaction).
type Transaction struct {
	ID              uint64          `gorm:"primaryKey"`
	WalletID        uint64          `gorm:"not null;index"`
	Type            string          `gorm:"size:32;not null"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	BalanceBefore   decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	BalanceAfter    decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	RelatedWalletID *uint64
	IdempotencyKey  *string   `gorm:"size:64;index"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// TableName implements gorm's Tabler.
func (Transaction) TableName() string { return "transaction" }

const (
	TxDeposit      = "DEPOSIT"
	TxWithdraw     = "WITHDRAW"
	TxTransferOut  = "TRANSFER_OUT"
	TxTransferIn   = "TRANSFER_IN"
)
