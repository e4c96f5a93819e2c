// Package units converts between raw on-chain integers and decimal strings.
// The token's declared decimals is the only scale ever used.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
)

// ToDisplay renders raw / 10^decimals with exactly `decimals` fraction digits.
// The output is lossless: ToRaw(ToDisplay(r, d), d) == r.
func ToDisplay(raw *big.Int, decimals uint8) string {
	if raw == nil {
		raw = new(big.Int)
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).StringFixed(int32(decimals))
}

// ToRaw parses a decimal string into raw units. More fraction digits than
// the token supports is an error, never a silent truncation.
func ToRaw(display string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(display)
	if s == "" {
		return nil, fmt.Errorf("units: empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("units: negative amount %q", display)
	}
	if strings.ContainsAny(s, "eE") {
		return nil, fmt.Errorf("units: exponent notation not accepted: %q", display)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("units: parse %q: %w", display, err)
	}

	if frac := fractionDigits(s); frac > int(decimals) {
		return nil, fmt.Errorf("units: %q has %d fraction digits, token supports %d", display, frac, decimals)
	}

	return d.Shift(int32(decimals)).BigInt(), nil
}

// FormatTrim converts a token balance to a short human string:
// - divides by 10^decimals
// - trims to maxFrac decimal places
// - removes trailing zeros
//
// Examples:
//
//	balance=1234500000000000000, decimals=18 -> "1.2345"
//	balance=1000000000000000000, decimals=18 -> "1"
//	balance=1, decimals=18, maxFrac=18 -> "0.000000000000000001"
func FormatTrim(amount *big.Int, decimals uint8, maxFrac int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}
	if maxFrac < 0 {
		maxFrac = 0
	}

	d := decimal.NewFromBigInt(amount, -int32(decimals)).Truncate(int32(maxFrac))
	return d.String()
}

// NativeToDisplay is ToDisplay for the chain's native currency.
func NativeToDisplay(wei *big.Int) string {
	return ToDisplay(wei, constants.NativeDecimals)
}

// MinimumOutput returns floor(quoted * (10000 - bps) / 10000).
func MinimumOutput(quoted *big.Int, slippageBps uint32) (*big.Int, error) {
	if quoted == nil || quoted.Sign() < 0 {
		return nil, fmt.Errorf("units: invalid quoted amount")
	}
	if slippageBps > constants.MaxSlippageBps {
		return nil, fmt.Errorf("units: slippage %d bps exceeds %d", slippageBps, constants.MaxSlippageBps)
	}

	out := new(big.Int).Mul(quoted, big.NewInt(int64(constants.MaxSlippageBps-slippageBps)))
	return out.Quo(out, big.NewInt(constants.MaxSlippageBps)), nil
}

func fractionDigits(s string) int {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(strings.TrimRight(s[i+1:], "0"))
}
