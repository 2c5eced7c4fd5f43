package repository

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type money struct {
	Amount   decimal.Decimal  `bson:"amount"`
	Optional *decimal.Decimal `bson:"optional,omitempty"`
}

func TestDecimalCodec_RoundTrip(t *testing.T) {
	reg := NewRegistry()
	opt := decimal.RequireFromString("0.05")
	in := money{Amount: decimal.RequireFromString("1234.56"), Optional: &opt}

	raw, err := bson.MarshalWithRegistry(reg, in)
	require.NoError(t, err)

	var doc bson.Raw = raw
	assert.Equal(t, bson.TypeDecimal128, doc.Lookup("amount").Type)

	var out money
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
	assert.True(t, in.Amount.Equal(out.Amount))
	require.NotNil(t, out.Optional)
	assert.True(t, opt.Equal(*out.Optional))
}

func TestDecimalCodec_DecodesLegacyNumbers(t *testing.T) {
	reg := NewRegistry()

	for name, v := range map[string]any{
		"string": "19.99",
		"double": 19.99,
	} {
		t.Run(name, func(t *testing.T) {
			raw, err := bson.Marshal(bson.M{"amount": v})
			require.NoError(t, err)

			var out money
			require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
			assert.Equal(t, "19.99", out.Amount.String())
		})
	}

	raw, err := bson.Marshal(bson.M{"amount": int32(7)})
	require.NoError(t, err)
	var out money
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
	assert.Equal(t, "7", out.Amount.String())
}
