package longprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type depositPayload struct {
	WalletID uint64 `json:"wallet_id"`
	Amount   string `json:"amount"`
}

func (depositPayload) PayloadTag() string { return "DepositPayload" }

func TestPayloadCodec_EncodeDecode_RoundTripsTaggedValue(t *testing.T) {
	c := NewPayloadCodec()
	c.RegisterType("DepositPayload", depositPayload{})

	raw, err := c.Encode(depositPayload{WalletID: 7, Amount: "10.50"})
	assert.NoError(t, err)
	assert.Contains(t, raw, `"tag":"DepositPayload"`)

	decoded, err := c.Decode(raw)
	assert.NoError(t, err)
	got, ok := decoded.(*depositPayload)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), got.WalletID)
	assert.Equal(t, "10.50", got.Amount)
}

func TestPayloadCodec_Encode_NilReturnsEmptyString(t *testing.T) {
	c := NewPayloadCodec()
	raw, err := c.Encode(nil)
	assert.NoError(t, err)
	assert.Empty(t, raw)
}

func TestPayloadCodec_Decode_EmptyStringReturnsNil(t *testing.T) {
	c := NewPayloadCodec()
	v, err := c.Decode("")
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestPayloadCodec_Decode_UntaggedReturnsGenericMap(t *testing.T) {
	c := NewPayloadCodec()
	raw, err := c.Encode(map[string]any{"k": "v"})
	assert.NoError(t, err)

	decoded, err := c.Decode(raw)
	assert.NoError(t, err)
	m, ok := decoded.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "v", m["k"])
}

func TestPayloadCodec_Decode_UnknownTagErrors(t *testing.T) {
	c := NewPayloadCodec()
	raw := `{"tag":"Unknown","data":{}}`
	_, err := c.Decode(raw)
	assert.Error(t, err)
}
