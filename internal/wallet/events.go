package wallet

import (
	"github.com/shopspring/decimal"

	"github.com/richardliu001/reliability-core/internal/event"
)

// WalletCredited fires after a deposit; a transfer records
// TransferCompleted instead.
type WalletCredited struct {
	WalletID      uint64
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	IdempotencyKey string
}

func (e WalletCredited) Name() string              { return "wallet.credited" }
func (e WalletCredited) Action() string             { return "wallet.credited" }
func (e WalletCredited) IntegrationAction() string  { return "WalletCredited" }
func (e WalletCredited) Delay() int                 { return 0 }
func (e WalletCredited) IsUnique() bool             { return false }
func (e WalletCredited) Payload() map[string]any {
	return event.ScalarizeMap(map[string]any{
		"wallet_id":       e.WalletID,
		"amount":          e.Amount,
		"balance_after":   e.BalanceAfter,
		"idempotency_key": e.IdempotencyKey,
	})
}

// WalletDebited fires after a withdrawal; a transfer records
// TransferCompleted instead.
type WalletDebited struct {
	WalletID       uint64
	Amount         decimal.Decimal
	BalanceAfter   decimal.Decimal
	IdempotencyKey string
}

func (e WalletDebited) Name() string             { return "wallet.debited" }
func (e WalletDebited) Action() string            { return "wallet.debited" }
func (e WalletDebited) IntegrationAction() string { return "WalletDebited" }
func (e WalletDebited) Delay() int                { return 0 }
func (e WalletDebited) IsUnique() bool            { return false }
func (e WalletDebited) Payload() map[string]any {
	return event.ScalarizeMap(map[string]any{
		"wallet_id":       e.WalletID,
		"amount":          e.Amount,
		"balance_after":   e.BalanceAfter,
		"idempotency_key": e.IdempotencyKey,
	})
}

// TransferCompleted fires once after both halves of a transfer succeed,
// carrying both wallets' resulting balances.
type TransferCompleted struct {
	FromWalletID uint64
	ToWalletID   uint64
	Amount       decimal.Decimal
	FromBalance  decimal.Decimal
	ToBalance    decimal.Decimal
	IdempotencyKey string
}

func (e TransferCompleted) Name() string             { return "wallet.transfer_completed" }
func (e TransferCompleted) Action() string            { return "wallet.transfer_completed" }
func (e TransferCompleted) IntegrationAction() string { return "TransferCompleted" }
func (e TransferCompleted) Delay() int                { return 0 }
func (e TransferCompleted) IsUnique() bool            { return false }
func (e TransferCompleted) Payload() map[string]any {
	return event.ScalarizeMap(map[string]any{
		"from_wallet_id":  e.FromWalletID,
		"to_wallet_id":    e.ToWalletID,
		"amount":          e.Amount,
		"from_balance":    e.FromBalance,
		"to_balance":      e.ToBalance,
		"idempotency_key": e.IdempotencyKey,
	})
}
