package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/richardliu001/reliability-core/internal/longprocess"
	"github.com/richardliu001/reliability-core/internal/pipeline"
)

// ProvisionWalletProcessClass is this saga's process_class discriminator.
const ProvisionWalletProcessClass = "ProvisionWalletProcess"

// ActivationConfirmedAction is the wire event ProvisionWalletProcess
// suspends for between crediting the opening deposit and marking the
// wallet active — standing in for a KYC/compliance sign-off a real
// provisioning flow would wait on.
const ActivationConfirmedAction = "WalletActivationConfirmed"

type provisionPayload struct {
	WalletID        uint64          `json:"wallet_id"`
	InitialDeposit  decimal.Decimal `json:"initial_deposit"`
	CreditedBalance decimal.Decimal `json:"credited_balance"`
}

// ProvisionWalletProcess opens a new wallet: credit its opening deposit,
// suspend until activation is confirmed, then mark it usable. If a later
// step throws after the deposit was credited, the deposit step's
// compensation withdraws the credited amount back out.
type ProvisionWalletProcess struct {
	data provisionPayload
}

// ProvisionWalletFactory is registered with a longprocess.Registry so a
// persisted record can rehydrate this process by class name.
func ProvisionWalletFactory() longprocess.Process { return &ProvisionWalletProcess{} }

func (p *ProvisionWalletProcess) ProcessClass() string { return ProvisionWalletProcessClass }

// Init accepts either the typed StartProvisionWallet request (the first
// call, from Runner.Start) or the generic map[string]any Runner.rehydrate
// decodes persisted business_data into — both round-trip through JSON the
// same way.
func (p *ProvisionWalletProcess) Init(businessData any) error {
	raw, err := json.Marshal(businessData)
	if err != nil {
		return fmt.Errorf("provision wallet: marshal business data: %w", err)
	}
	return json.Unmarshal(raw, &p.data)
}

// RegisterSteps wires the three forward steps and the one compensation
// this process needs.
func (p *ProvisionWalletProcess) RegisterSteps(steps *longprocess.ProcessSteps) {
	steps.RegisterStep("credit_initial_deposit", p.creditInitialDeposit, false)
	steps.RegisterStep("await_activation", p.awaitActivation, false)
	steps.RegisterStep("mark_active", p.markActive, false)

	steps.RegisterCompensation("credit_initial_deposit", p.undoInitialDeposit, false)
}

func (p *ProvisionWalletProcess) creditInitialDeposit(_ any, _ any) (longprocess.Result, error) {
	p.data.CreditedBalance = p.data.InitialDeposit

	cmd := DepositCommand{
		WalletID:       p.data.WalletID,
		Amount:         p.data.InitialDeposit,
		IdempotencyKey: fmt.Sprintf("provision:%d:initial", p.data.WalletID),
	}

	return longprocess.Result{
		Payload:    p.data,
		Commands:   []any{cmd},
		Checkpoint: p.data.InitialDeposit,
	}, nil
}

func (p *ProvisionWalletProcess) awaitActivation(payload any, resumeEvent any) (longprocess.Result, error) {
	if resumeEvent == nil {
		return longprocess.Result{
			Payload: payload,
			Await: &longprocess.AwaitEvent{
				EventClass:    ActivationConfirmedAction,
				MatchCriteria: map[string]any{"wallet_id": fmt.Sprintf("%v", p.data.WalletID)},
			},
		}, nil
	}
	return longprocess.Result{Payload: payload}, nil
}

func (p *ProvisionWalletProcess) markActive(payload any, _ any) (longprocess.Result, error) {
	return longprocess.Result{Payload: payload}, nil
}

func (p *ProvisionWalletProcess) undoInitialDeposit(checkpoint any, cause any) (longprocess.Result, error) {
	amount, ok := decimalFromCheckpoint(checkpoint)
	if !ok {
		return longprocess.Result{}, nil
	}
	cmd := WithdrawCommand{
		WalletID:       p.data.WalletID,
		Amount:         amount,
		IdempotencyKey: fmt.Sprintf("provision:%d:undo", p.data.WalletID),
	}
	return longprocess.Result{Commands: []any{cmd}}, nil
}

func decimalFromCheckpoint(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(t), true
	default:
		return decimal.Zero, false
	}
}

// commandBusDispatcher adapts a *pipeline.CommandBus to
// longprocess.CommandDispatcher.
type commandBusDispatcher struct {
	bus *pipeline.CommandBus
}

// NewCommandBusDispatcher lets a longprocess.Runner fire a step's commands
// through the ordinary audit/correlation/transaction/publish chain.
func NewCommandBusDispatcher(bus *pipeline.CommandBus) longprocess.CommandDispatcher {
	return &commandBusDispatcher{bus: bus}
}

func (d *commandBusDispatcher) Dispatch(ctx context.Context, cmd any) error {
	command, ok := cmd.(pipeline.Command)
	if !ok {
		return fmt.Errorf("longprocess: %T does not implement pipeline.Command", cmd)
	}
	_, err := d.bus.Handle(ctx, command)
	return err
}
