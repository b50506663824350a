package model

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"360.000.000", "360000000"},
		{"1.000.000", "1000000"},
		{"1.000", "1000"},
		{"999", "999"},
		{"0", "0"},
		{" 42 ", "42"},
		{"+7", "7"},
		{"360000000", "360000000"},
		{"18.446.744.073.709.551.616", "18446744073709551616"},
		{"123456789012345678901234567890", "123456789012345678901234567890"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			a, err := ParseAmount(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.String())
		})
	}
}

func TestParseAmount_Rejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "  ", "-5", "1.00.000", "1000.000.0", ".000", "1.", "1,000", "abc", "12a", "1.5", "1e9"} {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			_, err := ParseAmount(in)
			assert.Error(t, err)
		})
	}
}

func TestAmount_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	var body struct {
		Value Amount `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"value":"360.000.000"}`), &body))
	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"360000000"}`, string(out))
}

func TestAmount_BeyondInt64(t *testing.T) {
	t.Parallel()

	two63 := new(big.Int).Lsh(big.NewInt(1), 63)
	a, err := ParseAmount(two63.String())
	require.NoError(t, err)

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"9223372036854775808"`, string(out))

	var back Amount
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, 0, back.Cmp(a))
	assert.Equal(t, 0, back.BigInt().Cmp(two63))
}

func TestAmount_UnmarshalIntegerLiteral(t *testing.T) {
	t.Parallel()

	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`1500000`), &a))
	assert.Equal(t, "1500000", a.String())

	assert.Error(t, json.Unmarshal([]byte(`1.5`), &a))
	assert.Error(t, json.Unmarshal([]byte(`1e6`), &a))
	assert.Error(t, json.Unmarshal([]byte(`null`), &a))
	assert.Error(t, json.Unmarshal([]byte(`"-1"`), &a))
}

func TestAmount_ZeroValue(t *testing.T) {
	t.Parallel()

	var a Amount
	assert.True(t, a.IsZero())
	assert.Equal(t, "0", a.String())
	assert.Equal(t, 0, a.BigInt().Sign())

	assert.Equal(t, "0", NewAmount(-3).String())
	assert.False(t, NewAmount(3).IsZero())
}

func TestAmountFromBig(t *testing.T) {
	t.Parallel()

	a, err := AmountFromBig(big.NewInt(12))
	require.NoError(t, err)
	assert.Equal(t, "12", a.String())

	_, err = AmountFromBig(big.NewInt(-1))
	assert.Error(t, err)
}

func TestAmount_YAML(t *testing.T) {
	t.Parallel()

	out, err := yaml.Marshal(map[string]Amount{"value": MustParseAmount("1.000.000")})
	require.NoError(t, err)
	assert.Equal(t, "value: \"1000000\"\n", string(out))
}
