package wallet

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/richardliu001/reliability-core/internal/longprocess"
)

func TestProvisionWalletProcess_Init_RoundTripsThroughJSON(t *testing.T) {
	p := &ProvisionWalletProcess{}
	err := p.Init(map[string]any{
		"wallet_id":       float64(9),
		"initial_deposit": "100",
	})
	assert.NoError(t, err)
	assert.Equal(t, uint64(9), p.data.WalletID)
	assert.True(t, p.data.InitialDeposit.Equal(decimal.NewFromInt(100)))
}

func TestProvisionWalletProcess_CreditInitialDeposit_EmitsDepositCommand(t *testing.T) {
	p := &ProvisionWalletProcess{}
	assert.NoError(t, p.Init(provisionPayload{WalletID: 1, InitialDeposit: decimal.NewFromInt(50)}))

	res, err := p.creditInitialDeposit(nil, nil)
	assert.NoError(t, err)
	assert.Len(t, res.Commands, 1)
	cmd := res.Commands[0].(DepositCommand)
	assert.Equal(t, uint64(1), cmd.WalletID)
	assert.True(t, cmd.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "provision:1:initial", cmd.IdempotencyKey)
}

func TestProvisionWalletProcess_AwaitActivation_SuspendsUntilResumed(t *testing.T) {
	p := &ProvisionWalletProcess{}
	assert.NoError(t, p.Init(provisionPayload{WalletID: 3}))

	res, err := p.awaitActivation(p.data, nil)
	assert.NoError(t, err)
	assert.NotNil(t, res.Await)
	assert.Equal(t, ActivationConfirmedAction, res.Await.EventClass)

	res2, err := p.awaitActivation(p.data, struct{}{})
	assert.NoError(t, err)
	assert.Nil(t, res2.Await)
}

func TestProvisionWalletProcess_UndoInitialDeposit(t *testing.T) {
	p := &ProvisionWalletProcess{}
	assert.NoError(t, p.Init(provisionPayload{WalletID: 5}))

	res, err := p.undoInitialDeposit("25.5", nil)
	assert.NoError(t, err)
	cmd := res.Commands[0].(WithdrawCommand)
	assert.True(t, cmd.Amount.Equal(decimal.NewFromFloat(25.5)))
	assert.Equal(t, "provision:5:undo", cmd.IdempotencyKey)
}

func TestProvisionWalletFactory_ReturnsProcess(t *testing.T) {
	var _ longprocess.Process = ProvisionWalletFactory()
}
