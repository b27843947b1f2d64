// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"fmt"
	"math/big"
)

// ParseBase parses a decimal string of base units into a big integer.
// Token quantities arrive from the indexer as decimal strings and may
// exceed 64 bits, so everything downstream works on *big.Int.
func ParseBase(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount string")
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid base amount: %q", s)
	}
	return n, nil
}

// ParseBaseOrZero parses a base-unit string, returning zero on any error.
// Used where the upstream field is optional.
func ParseBaseOrZero(s string) *big.Int {
	n, err := ParseBase(s)
	if err != nil {
		return new(big.Int)
	}
	return n
}

// FormatUnits formats base units as a decimal string with the given number
// of decimals. FormatUnits(-28170000, 6) returns "-28.17".
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	if decimals == 0 {
		return amount.String()
	}

	abs := new(big.Int).Abs(amount)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	whole := new(big.Int).Div(abs, divisor)
	frac := new(big.Int).Mod(abs, divisor)

	sign := ""
	if amount.Sign() < 0 {
		sign = "-"
	}

	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := fmt.Sprintf("%0*d", int(decimals), frac)
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}

	return fmt.Sprintf("%s%s.%s", sign, whole.String(), fracStr)
}

// FormatLovelace formats lovelace as an ADA string (6 decimals).
func FormatLovelace(lovelace *big.Int) string {
	return FormatUnits(lovelace, 6)
}
