package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJSON_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"whitespace", "   \n"},
		{"null", "null"},
		{"empty array", "[]"},
		{"empty object", "{}"},
		{"number", "42"},
		{"string", `"hello"`},
		{"broken json", `{"signature":`},
		{"trailing garbage", `{"signature":"a","type":"SWAP"} garbage`},
		{"two values", `{"signature":"a","type":"SWAP"} {"signature":"b","type":"SWAP"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := NormalizeJSON([]byte(tt.body))
			assert.ErrorIs(t, err, ErrInvalidPayload)
			assert.Nil(t, batch)
		})
	}
}

func TestNormalizeJSON_SingleObject(t *testing.T) {
	body := `{
		"signature": "sig1",
		"slot": 250000000,
		"type": "swap",
		"source": "JUPITER",
		"feePayer": "Trader111",
		"timestamp": 1700000000,
		"nativeTransfers": [
			{"fromUserAccount": "Trader111", "toUserAccount": "Pool111", "amount": 1500000000}
		],
		"tokenTransfers": [
			{"mint": "MintX", "fromUserAccount": "Pool111", "toUserAccount": "Trader111", "tokenAmount": 1234.5678}
		]
	}`

	batch, err := NormalizeJSON([]byte(body + "\n"))
	require.NoError(t, err)
	require.Len(t, batch.Events, 1)
	assert.Empty(t, batch.Dropped)

	ev := batch.Events[0]
	assert.Equal(t, "sig1", ev.Signature)
	assert.Equal(t, uint64(250000000), ev.Slot)
	assert.Equal(t, "SWAP", ev.Type)
	assert.Equal(t, "JUPITER", ev.Source)
	assert.Equal(t, "Trader111", ev.FeePayer)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Timestamp)

	require.Len(t, ev.NativeTransfers, 1)
	assert.Equal(t, uint64(1500000000), ev.NativeTransfers[0].Amount)
	assert.Equal(t, "Pool111", ev.NativeTransfers[0].ToUserAccount)

	require.Len(t, ev.TokenTransfers, 1)
	assert.Equal(t, "MintX", ev.TokenTransfers[0].Mint)
	assert.True(t, decimal.RequireFromString("1234.5678").Equal(ev.TokenTransfers[0].TokenAmount))
}

func TestNormalizeJSON_DropsMalformedEntries(t *testing.T) {
	body := `[
		{"signature": "good1", "type": "SWAP"},
		{"type": "SWAP"},
		"not an object",
		{"signature": "bad-native", "nativeTransfers": [{"amount": -5}]},
		{"signature": "bad-token", "tokenTransfers": [{"tokenAmount": "1"}]},
		{"signature": "bad-list", "nativeTransfers": {"amount": 1}},
		{"signature": "good2", "type": "TRANSFER", "slot": "42"}
	]`

	batch, err := NormalizeJSON([]byte(body))
	require.NoError(t, err)

	require.Len(t, batch.Events, 2)
	assert.Equal(t, "good1", batch.Events[0].Signature)
	assert.Equal(t, "good2", batch.Events[1].Signature)
	assert.Equal(t, uint64(42), batch.Events[1].Slot)

	require.Len(t, batch.Dropped, 5)
	idx := make([]int, 0, len(batch.Dropped))
	for _, d := range batch.Dropped {
		idx = append(idx, d.Index)
		assert.NotEmpty(t, d.Reason)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, idx)
}

func TestNormalize_AllEntriesDropped(t *testing.T) {
	// A non-empty array whose entries are all malformed is not a payload error.
	batch, err := Normalize([]any{map[string]any{"type": "SWAP"}})
	require.NoError(t, err)
	assert.Empty(t, batch.Events)
	assert.Len(t, batch.Dropped, 1)
}

func TestNormalize_NumericForms(t *testing.T) {
	payload := map[string]any{
		"signature": "sig",
		"slot":      float64(7),
		"nativeTransfers": []any{
			map[string]any{"fromUserAccount": "a", "toUserAccount": "b", "amount": "1000"},
		},
		"tokenTransfers": []any{
			map[string]any{"mint": "m", "fromUserAccount": "b", "toUserAccount": "a", "tokenAmount": "0.000001"},
		},
	}

	batch, err := Normalize(payload)
	require.NoError(t, err)
	require.Len(t, batch.Events, 1)

	ev := batch.Events[0]
	assert.Equal(t, uint64(7), ev.Slot)
	assert.Equal(t, uint64(1000), ev.NativeTransfers[0].Amount)
	assert.Equal(t, "0.000001", ev.TokenTransfers[0].TokenAmount.String())
	assert.True(t, ev.Timestamp.IsZero())
}

func TestToUint64_RejectsFractionsAndNegatives(t *testing.T) {
	_, err := toUint64(float64(1.5))
	assert.Error(t, err)
	_, err = toUint64(float64(-1))
	assert.Error(t, err)
	_, err = toUint64("-3")
	assert.Error(t, err)

	v, err := toUint64(float64(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
}
