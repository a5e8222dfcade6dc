package id

import (
	"fmt"
	"math/big"
	"strings"

	clierr "github.com/nmorales94/swapflow/internal/errors"
)

// NormalizeAmount converts between human-decimal and base-unit forms, keeping
// both representations exact. Exactly one of rawBase or rawDecimal must be
// set.
func NormalizeAmount(rawBase, rawDecimal string, decimals int) (string, string, error) {
	rawBase = strings.TrimSpace(rawBase)
	rawDecimal = strings.TrimSpace(rawDecimal)

	if (rawBase == "") == (rawDecimal == "") {
		return "", "", clierr.New(clierr.CodeUsage, "exactly one of base-unit amount or decimal amount is required")
	}
	if decimals < 0 {
		return "", "", clierr.New(clierr.CodeUsage, "decimals must be non-negative")
	}

	if rawBase != "" {
		base, ok := new(big.Int).SetString(rawBase, 10)
		if !ok || base.Sign() < 0 {
			return "", "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid base-unit amount: %s", rawBase))
		}
		return base.String(), FormatBaseUnits(base, decimals), nil
	}

	base, err := ToBaseUnits(rawDecimal, decimals)
	if err != nil {
		return "", "", err
	}
	return base.String(), FormatBaseUnits(base, decimals), nil
}

// ToBaseUnits parses a non-negative decimal string into exact base units.
// Fractional digits beyond the asset's precision are rejected rather than
// rounded.
func ToBaseUnits(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, "-") || strings.HasPrefix(value, "+") {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid amount: %q", value))
	}

	whole := value
	frac := ""
	if i := strings.IndexByte(value, '.'); i >= 0 {
		whole, frac = value[:i], value[i+1:]
		if strings.ContainsRune(frac, '.') {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid amount: %q", value))
		}
	}
	if whole == "" {
		whole = "0"
	}
	if !digitsOnly(whole) || (frac != "" && !digitsOnly(frac)) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid amount: %q", value))
	}
	if len(frac) > decimals {
		trimmed := strings.TrimRight(frac, "0")
		if len(trimmed) > decimals {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q exceeds %d decimal places", value, decimals))
		}
		frac = trimmed
	}
	frac += strings.Repeat("0", decimals-len(frac))

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		combined = "0"
	}
	out, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid amount: %q", value))
	}
	return out, nil
}

// FormatBaseUnits renders base units as an exact decimal string with no
// trailing zeros in the fraction.
func FormatBaseUnits(base *big.Int, decimals int) string {
	if base == nil {
		return "0"
	}
	s := base.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if decimals == 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	out := whole
	if frac != "" {
		out = whole + "." + frac
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
