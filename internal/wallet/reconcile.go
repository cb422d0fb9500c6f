package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/richardliu001/reliability-core/internal/workflow"
)

// ReconciliationConfigTag is this config's wire tag in the workflow's
// tagged-union {tag, data} envelope.
const ReconciliationConfigTag = "WalletReconciliation"

// ReconciliationConfig is a single BehaviourWorkflow step: recompute every
// listed wallet's balance from its transaction history and correct the
// stored row if it drifted.
type ReconciliationConfig struct {
	WalletIDs []uint64 `json:"wallet_ids"`
	BatchSize int      `json:"batch_size"`
}

func (ReconciliationConfig) PayloadTag() string { return ReconciliationConfigTag }
func (ReconciliationConfig) IsBatchable() bool   { return true }

func (c ReconciliationConfig) DefaultBatchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return 10
}

// asReconciliationConfig accepts either the value or the pointer form: a
// workflow built in memory holds the value, one rehydrated via
// Registry.DecodeConfig holds the pointer its reflect.New produced.
func asReconciliationConfig(config workflow.BehaviourConfig) (ReconciliationConfig, bool) {
	switch c := config.(type) {
	case ReconciliationConfig:
		return c, true
	case *ReconciliationConfig:
		return *c, true
	default:
		return ReconciliationConfig{}, false
	}
}

type reconciliationItemPayload struct {
	WalletID uint64 `json:"wallet_id"`
}

// reconciliationBehaviour is the executable counterpart of
// ReconciliationConfig: one work item per wallet id.
type reconciliationBehaviour struct {
	repo *Repository
}

// NewReconciliationBehaviourFactory builds the workflow.BehaviourFactory
// for ReconciliationConfigTag, bound to repo.
func NewReconciliationBehaviourFactory(repo *Repository) workflow.BehaviourFactory {
	return func(_ workflow.BehaviourConfig) workflow.Behaviour {
		return &reconciliationBehaviour{repo: repo}
	}
}

func (b *reconciliationBehaviour) GenerateWorkItems(_ *workflow.Workflow, config workflow.BehaviourConfig) ([]workflow.ItemSeed, error) {
	cfg, ok := asReconciliationConfig(config)
	if !ok {
		return nil, fmt.Errorf("wallet reconciliation: unexpected config type %T", config)
	}
	seeds := make([]workflow.ItemSeed, 0, len(cfg.WalletIDs))
	for _, id := range cfg.WalletIDs {
		payload, err := json.Marshal(reconciliationItemPayload{WalletID: id})
		if err != nil {
			return nil, fmt.Errorf("marshal reconciliation item: %w", err)
		}
		seeds = append(seeds, workflow.ItemSeed{
			ItemKey: fmt.Sprintf("%d", id),
			Payload: string(payload),
		})
	}
	return seeds, nil
}

func (b *reconciliationBehaviour) ExecuteOne(_ workflow.BehaviourConfig, item *workflow.WorkItem, _ *workflow.ExecutionResult) (workflow.ExecutionResult, error) {
	var payload reconciliationItemPayload
	if err := json.Unmarshal([]byte(item.Payload), &payload); err != nil {
		return workflow.ExecutionResult{}, fmt.Errorf("unmarshal reconciliation item: %w", err)
	}

	ctx := context.Background()
	tx := b.repo.DB(ctx)

	w, err := b.repo.GetOrCreateForUpdate(ctx, tx, payload.WalletID)
	if err != nil {
		return workflow.ExecutionResult{}, err
	}

	expected, err := b.sumLedgerBalance(ctx, payload.WalletID)
	if err != nil {
		return workflow.ExecutionResult{}, err
	}

	corrected := false
	if !expected.Equal(w.Balance) {
		if err := b.repo.UpdateBalance(ctx, tx, payload.WalletID, expected, w.Version); err != nil {
			return workflow.ExecutionResult{}, err
		}
		if err := b.repo.CacheBalance(ctx, payload.WalletID, expected); err != nil {
			return workflow.ExecutionResult{}, err
		}
		corrected = true
	}

	return workflow.ExecutionResult{
		Type:    "reconcile_wallet",
		Success: true,
		Status:  workflow.StatusCompleted,
		Context: map[string]any{
			"wallet_id":      payload.WalletID,
			"corrected":      corrected,
			"balance_before": w.Balance.String(),
			"balance_after":  expected.String(),
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// sumLedgerBalance recomputes a wallet's balance purely from its
// transaction history, independent of the stored wallet.balance column.
func (b *reconciliationBehaviour) sumLedgerBalance(ctx context.Context, walletID uint64) (decimal.Decimal, error) {
	history, err := b.repo.History(ctx, walletID, 1_000_000, nil)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, tx := range history {
		switch tx.Type {
		case TxDeposit, TxTransferIn:
			total = total.Add(tx.Amount)
		case TxWithdraw, TxTransferOut:
			total = total.Sub(tx.Amount)
		}
	}
	return total, nil
}
