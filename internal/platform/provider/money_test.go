package provider

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"19.99", 1999},
		{"0.01", 1},
		{"100", 10000},
		{"10.005", 1001},
		{"10.0049", 1000},
		{"-10.005", -1001},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ToMinorUnits(decimal.RequireFromString(tc.in)), tc.in)
	}
}

func TestFromMinorUnits(t *testing.T) {
	require.True(t, FromMinorUnits(1999).Equal(decimal.RequireFromString("19.99")))
	require.Equal(t, "19.99", FromMinorUnits(1999).StringFixed(2))
	require.True(t, FromMinorUnits(0).IsZero())
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("19.99")
	require.True(t, FromMinorUnits(ToMinorUnits(amount)).Equal(amount))
}
