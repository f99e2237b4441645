package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBigInt(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		decimals uint8
		expected string
	}{
		{"simple fraction", big.NewInt(1234500000000000000), 18, "1.2345"},
		{"whole number", big.NewInt(5000000), 6, "5"},
		{"zero", big.NewInt(0), 18, "0"},
		{"nil amount", nil, 18, "0"},
		{"no decimals", big.NewInt(42), 0, "42"},
		{"sub-unit", big.NewInt(1), 6, "0.000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatBigInt(tt.amount, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "1.234500", FormatUnits(big.NewInt(1234500), 6, 6))
	assert.Equal(t, "0.000000", FormatUnits(nil, 6, 6))
	assert.Equal(t, "1000.00", FormatUnits(big.NewInt(100000000000), 8, 2))
}

func TestRescaleAmount(t *testing.T) {
	// 18 -> 6 truncates toward zero.
	in, _ := new(big.Int).SetString("1500000000000000001", 10)
	assert.Equal(t, "1500000", RescaleAmount(in, 18, 6).String())

	// 6 -> 18 scales up exactly.
	assert.Equal(t, "2000000000000000000", RescaleAmount(big.NewInt(2000000), 6, 18).String())

	// same base is identity and does not alias the input.
	original := big.NewInt(77)
	out := RescaleAmount(original, 6, 6)
	out.Add(out, big.NewInt(1))
	assert.Equal(t, int64(77), original.Int64())

	assert.Equal(t, "0", RescaleAmount(nil, 18, 6).String())
}

func TestProRata(t *testing.T) {
	// 30% share of 1000 reserve units.
	got := ProRata(big.NewInt(1000), big.NewInt(300), big.NewInt(1000))
	assert.Equal(t, "300", got.String())

	// zero total never divides.
	assert.Equal(t, "0", ProRata(big.NewInt(1000), big.NewInt(300), big.NewInt(0)).String())
	assert.Equal(t, "0", ProRata(nil, big.NewInt(1), big.NewInt(1)).String())
}

func TestProRataSumsToShare(t *testing.T) {
	// Decomposing every reserve by the same share must reproduce the
	// holder's slice of the pool within one base unit per coin.
	total := big.NewInt(982451653)
	share := big.NewInt(31415926)
	reserves := []*big.Int{big.NewInt(500000001), big.NewInt(482451652)}

	sum := new(big.Int)
	for _, reserve := range reserves {
		sum.Add(sum, ProRata(reserve, share, total))
	}

	exact := new(big.Int).Mul(total, share)
	exact.Quo(exact, total)
	diff := new(big.Int).Sub(exact, sum)
	assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(int64(len(reserves)))), 0)
}

func TestNormalizedRate(t *testing.T) {
	// 1000 tokens (18d) -> 999 USDC (6d) is a 0.999 rate.
	sell, _ := new(big.Int).SetString("1000000000000000000000", 10)
	buy := big.NewInt(999000000)
	assert.Equal(t, "0.999000", NormalizedRate(sell, 18, buy, 6, 6))

	assert.Equal(t, "0", NormalizedRate(big.NewInt(0), 18, buy, 6, 6))
	assert.Equal(t, "0", NormalizedRate(nil, 18, buy, 6, 6))
}
