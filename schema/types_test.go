package schema

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		scale    int32
		unscaled *big.Int
	}{
		{"zero", 0, big.NewInt(0)},
		{"positive", 2, big.NewInt(12345)},
		{"negative", 4, big.NewInt(-98765)},
		{"large", 10, new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil)},
		{"largeNegative", 10, new(big.Int).Neg(new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeValue(TypeDecimal, Decimal{Scale: tc.scale, Unscaled: tc.unscaled})
			require.NoError(t, err)

			decoded, err := DecodeValue(TypeDecimal, encoded)
			require.NoError(t, err)

			got, ok := decoded.(Decimal)
			require.True(t, ok)
			assert.Equal(t, tc.scale, got.Scale)
			assert.Zero(t, tc.unscaled.Cmp(got.Unscaled))
		})
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration{Months: 3, Days: -7, Nanoseconds: 123456789}
	encoded, err := EncodeValue(TypeDuration, d)
	require.NoError(t, err)

	decoded, err := DecodeValue(TypeDuration, encoded)
	require.NoError(t, err)

	got, ok := decoded.(Duration)
	require.True(t, ok)
	assert.Equal(t, d, got)
}
