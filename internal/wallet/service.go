package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/richardliu001/reliability-core/internal/pipeline"
	"github.com/richardliu001/reliability-core/internal/unitofwork"
)

// ErrInvalidAmount is returned for non-positive deposit/withdraw/transfer
// amounts.
var ErrInvalidAmount = errors.New("wallet: amount must be positive")

// Service implements the wallet's three commands. Deposit/Withdraw/
// Transfer no longer write outbox rows themselves (as the teacher's
// WalletService did) — they record events into a unitofwork.UnitOfWork
// and let the command bus's publish middleware route them.
type Service struct {
	repo *Repository
	uow  *unitofwork.UnitOfWork
	log  *zap.SugaredLogger
}

// NewService builds a Service bound to uow, the same UnitOfWork instance
// the owning CommandBus drains after each command.
func NewService(repo *Repository, uow *unitofwork.UnitOfWork, log *zap.SugaredLogger) *Service {
	return &Service{repo: repo, uow: uow, log: log}
}

// DepositCommand credits walletID by Amount.
type DepositCommand struct {
	WalletID       uint64
	Amount         decimal.Decimal
	IdempotencyKey string
}

func (DepositCommand) CommandName() string    { return "wallet.Deposit" }
func (DepositCommand) Transactional() bool    { return true }

// WithdrawCommand debits walletID by Amount.
type WithdrawCommand struct {
	WalletID       uint64
	Amount         decimal.Decimal
	IdempotencyKey string
}

func (WithdrawCommand) CommandName() string { return "wallet.Withdraw" }
func (WithdrawCommand) Transactional() bool { return true }

// TransferCommand moves Amount from FromWalletID to ToWalletID.
type TransferCommand struct {
	FromWalletID   uint64
	ToWalletID     uint64
	Amount         decimal.Decimal
	IdempotencyKey string
}

func (TransferCommand) CommandName() string { return "wallet.Transfer" }
func (TransferCommand) Transactional() bool { return true }

// RegisterHandlers binds the three commands to bus, wiring this Service's
// methods behind the fixed audit/correlation/transaction/publish chain.
func RegisterHandlers(bus *pipeline.CommandBus, svc *Service) {
	bus.Register(DepositCommand{}.CommandName(), func(ctx context.Context, cmd pipeline.Command) (any, error) {
		c := cmd.(DepositCommand)
		return svc.Deposit(ctx, c.WalletID, c.Amount, c.IdempotencyKey)
	})
	bus.Register(WithdrawCommand{}.CommandName(), func(ctx context.Context, cmd pipeline.Command) (any, error) {
		c := cmd.(WithdrawCommand)
		return svc.Withdraw(ctx, c.WalletID, c.Amount, c.IdempotencyKey)
	})
	bus.Register(TransferCommand{}.CommandName(), func(ctx context.Context, cmd pipeline.Command) (any, error) {
		c := cmd.(TransferCommand)
		from, to, err := svc.Transfer(ctx, c.FromWalletID, c.ToWalletID, c.Amount, c.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		return [2]decimal.Decimal{from, to}, nil
	})
}

// Deposit credits walletID, idempotent on idemKey, and records a
// WalletCredited event instead of writing an outbox row directly.
func (s *Service) Deposit(ctx context.Context, walletID uint64, amount decimal.Decimal, idemKey string) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	tx := s.repo.DB(ctx)

	if exists, prior, err := s.repo.TxExists(ctx, tx, walletID, idemKey, TxDeposit); err != nil {
		return decimal.Zero, err
	} else if exists {
		return prior.BalanceAfter, nil
	}

	w, err := s.repo.GetOrCreateForUpdate(ctx, tx, walletID)
	if err != nil {
		return decimal.Zero, err
	}

	newBalance := w.Balance.Add(amount)
	if err := s.repo.UpdateBalance(ctx, tx, walletID, newBalance, w.Version); err != nil {
		return decimal.Zero, err
	}

	txRow := &Transaction{
		WalletID:      walletID,
		Type:          TxDeposit,
		Amount:        amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  newBalance,
	}
	if idemKey != "" {
		txRow.IdempotencyKey = &idemKey
	}
	if err := s.repo.CreateTransaction(ctx, tx, txRow); err != nil {
		return decimal.Zero, err
	}

	s.uow.Record(WalletCredited{WalletID: walletID, Amount: amount, BalanceAfter: newBalance, IdempotencyKey: idemKey})

	if err := s.repo.CacheBalance(ctx, walletID, newBalance); err != nil {
		s.log.Warnw("cache balance failed", "wallet_id", walletID, "error", err)
	}

	return newBalance, nil
}

// Withdraw debits walletID, idempotent on idemKey, returning
// ErrInsufficientFunds if the balance would go negative.
func (s *Service) Withdraw(ctx context.Context, walletID uint64, amount decimal.Decimal, idemKey string) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	tx := s.repo.DB(ctx)

	if exists, prior, err := s.repo.TxExists(ctx, tx, walletID, idemKey, TxWithdraw); err != nil {
		return decimal.Zero, err
	} else if exists {
		return prior.BalanceAfter, nil
	}

	w, err := s.repo.GetOrCreateForUpdate(ctx, tx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	if w.Balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientFunds
	}

	newBalance := w.Balance.Sub(amount)
	if err := s.repo.UpdateBalance(ctx, tx, walletID, newBalance, w.Version); err != nil {
		return decimal.Zero, err
	}

	txRow := &Transaction{
		WalletID:      walletID,
		Type:          TxWithdraw,
		Amount:        amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  newBalance,
	}
	if idemKey != "" {
		txRow.IdempotencyKey = &idemKey
	}
	if err := s.repo.CreateTransaction(ctx, tx, txRow); err != nil {
		return decimal.Zero, err
	}

	s.uow.Record(WalletDebited{WalletID: walletID, Amount: amount, BalanceAfter: newBalance, IdempotencyKey: idemKey})

	if err := s.repo.CacheBalance(ctx, walletID, newBalance); err != nil {
		s.log.Warnw("cache balance failed", "wallet_id", walletID, "error", err)
	}

	return newBalance, nil
}

// Transfer moves amount from fromID to toID, locking both wallets in a
// deterministic (ascending-id) order to avoid deadlocking against a
// concurrent reverse transfer, exactly as the teacher's service does.
func (s *Service) Transfer(ctx context.Context, fromID, toID uint64, amount decimal.Decimal, idemKey string) (decimal.Decimal, decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	if fromID == toID {
		return decimal.Zero, decimal.Zero, fmt.Errorf("wallet: cannot transfer to the same wallet")
	}

	tx := s.repo.DB(ctx)

	if exists, prior, err := s.repo.TxExists(ctx, tx, fromID, idemKey, TxTransferOut); err != nil {
		return decimal.Zero, decimal.Zero, err
	} else if exists {
		toBal, err := s.repo.GetOrCreateForUpdate(ctx, tx, toID)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		return prior.BalanceAfter, toBal.Balance, nil
	}

	// Lock both wallets in ascending-id order so a concurrent reverse
	// transfer can't deadlock against this one.
	firstID, secondID := fromID, toID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, err := s.repo.GetOrCreateForUpdate(ctx, tx, firstID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	second, err := s.repo.GetOrCreateForUpdate(ctx, tx, secondID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	from, to := first, second
	if firstID != fromID {
		from, to = second, first
	}
	if from.Balance.LessThan(amount) {
		return decimal.Zero, decimal.Zero, ErrInsufficientFunds
	}

	fromNewBalance := from.Balance.Sub(amount)
	toNewBalance := to.Balance.Add(amount)

	if err := s.repo.UpdateBalance(ctx, tx, fromID, fromNewBalance, from.Version); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if err := s.repo.UpdateBalance(ctx, tx, toID, toNewBalance, to.Version); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	outTx := &Transaction{
		WalletID: fromID, Type: TxTransferOut, Amount: amount,
		BalanceBefore: from.Balance, BalanceAfter: fromNewBalance,
		RelatedWalletID: &toID,
	}
	inTx := &Transaction{
		WalletID: toID, Type: TxTransferIn, Amount: amount,
		BalanceBefore: to.Balance, BalanceAfter: toNewBalance,
		RelatedWalletID: &fromID,
	}
	if idemKey != "" {
		outTx.IdempotencyKey = &idemKey
		inTx.IdempotencyKey = &idemKey
	}
	if err := s.repo.CreateTransaction(ctx, tx, outTx); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if err := s.repo.CreateTransaction(ctx, tx, inTx); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	s.uow.Record(TransferCompleted{
		FromWalletID: fromID, ToWalletID: toID, Amount: amount,
		FromBalance: fromNewBalance, ToBalance: toNewBalance,
		IdempotencyKey: idemKey,
	})

	if err := s.repo.CacheBalance(ctx, fromID, fromNewBalance); err != nil {
		s.log.Warnw("cache balance failed", "wallet_id", fromID, "error", err)
	}
	if err := s.repo.CacheBalance(ctx, toID, toNewBalance); err != nil {
		s.log.Warnw("cache balance failed", "wallet_id", toID, "error", err)
	}

	return fromNewBalance, toNewBalance, nil
}

// GetBalance reads walletID's balance, preferring the redis cache and
// falling back to (and repopulating from) the database.
func (s *Service) GetBalance(ctx context.Context, walletID uint64) (decimal.Decimal, error) {
	if bal, err := s.repo.GetCachedBalance(ctx, walletID); err == nil {
		return bal, nil
	}

	var w Wallet
	err := s.repo.db.WithContext(ctx).Where("id = ?", walletID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load wallet balance: %w", err)
	}

	if err := s.repo.CacheBalance(ctx, walletID, w.Balance); err != nil {
		s.log.Warnw("cache balance failed", "wallet_id", walletID, "error", err)
	}
	return w.Balance, nil
}

// GetHistory returns walletID's transactions, newest first.
func (s *Service) GetHistory(ctx context.Context, walletID uint64, limit int, since *time.Time) ([]Transaction, error) {
	return s.repo.History(ctx, walletID, limit, since)
}
