package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatBigInt converts a raw amount to a human-readable string,
// considering the given number of decimals.
// Example: amount=1234500000000000000, decimals=18 => "1.2345"
func FormatBigInt(amount *big.Int, decimals uint8) (string, error) {
	if amount == nil {
		return "0", nil
	}
	if decimals == 0 {
		return amount.String(), nil
	}

	amountFloat := new(big.Float).SetInt(amount)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value := new(big.Float).Quo(amountFloat, divisor)

	formatted := value.Text('f', int(decimals))
	if strings.Contains(formatted, ".") {
		formatted = strings.TrimRight(formatted, "0")
		formatted = strings.TrimRight(formatted, ".")
	}
	if strings.HasPrefix(formatted, ".") {
		formatted = "0" + formatted
	}
	if formatted == "" {
		if amount.Sign() == 0 {
			return "0", nil
		}
		return value.Text('f', 2), fmt.Errorf("formatting resulted in empty string for non-zero value")
	}
	return formatted, nil
}

// FormatUnits renders a raw amount with a fixed number of decimal
// places, the presentation used throughout snapshot documents.
func FormatUnits(amount *big.Int, decimals uint8, places int) string {
	if amount == nil {
		amount = big.NewInt(0)
	}
	amountFloat := new(big.Float).SetInt(amount)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	return new(big.Float).Quo(amountFloat, divisor).Text('f', places)
}

// RescaleAmount converts a raw amount between decimal bases without
// losing integer precision, e.g. an 18-decimal stable amount into
// 6-decimal reference units. Truncates toward zero when scaling down.
func RescaleAmount(amount *big.Int, fromDecimals, toDecimals uint8) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Set(amount)
	switch {
	case fromDecimals == toDecimals:
		return out
	case fromDecimals < toDecimals:
		shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(toDecimals-fromDecimals)), nil)
		return out.Mul(out, shift)
	default:
		shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fromDecimals-toDecimals)), nil)
		return out.Quo(out, shift)
	}
}

// ProRata computes amount * share / total in integer arithmetic,
// used for LP reserve decomposition. Returns zero when total is zero.
func ProRata(amount, share, total *big.Int) *big.Int {
	if amount == nil || share == nil || total == nil || total.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, share)
	return out.Quo(out, total)
}

// NormalizedRate renders buy/sell as a decimal string after adjusting
// both legs for their token decimals.
func NormalizedRate(sellAmount *big.Int, sellDecimals uint8, buyAmount *big.Int, buyDecimals uint8, places int) string {
	if sellAmount == nil || sellAmount.Sign() == 0 || buyAmount == nil {
		return "0"
	}
	sell := new(big.Float).Quo(
		new(big.Float).SetInt(sellAmount),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(sellDecimals)), nil)),
	)
	buy := new(big.Float).Quo(
		new(big.Float).SetInt(buyAmount),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(buyDecimals)), nil)),
	)
	return new(big.Float).Quo(buy, sell).Text('f', places)
}
