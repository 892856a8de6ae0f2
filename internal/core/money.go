// Package core provides money parsing for spreadsheet cells.
//
// Exports from the supported platforms mix locales: Brazilian files use a
// decimal comma and dot thousands separators ("1.234,56"), English ones the
// opposite, and raw XLSX values are plain decimals ("1234.56").
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a monetary cell into a decimal.
//
// Currency symbols, spaces and any other non numeric characters are dropped.
// When both separators are present the rightmost one is the decimal
// separator. A single comma is a decimal comma; repeated commas or repeated
// dots are thousands separators.
//
// Examples:
//
//	ParseAmount("R$ 1.234,56") -> 1234.56
//	ParseAmount("1,234.56")    -> 1234.56
//	ParseAmount("12,5")        -> 12.5
//	ParseAmount("1.5E+3")      -> 1500
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Raw numeric cells, including exponent notation.
	if d, err := decimal.NewFromString(s); err == nil {
		return d, nil
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	if cleaned == "" || strings.LastIndex(cleaned, "-") > 0 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	dots := strings.Count(cleaned, ".")
	commas := strings.Count(cleaned, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case commas == 1:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case commas > 1:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case dots > 1:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// ParsePositiveAmount is ParseAmount restricted to values greater than zero.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidAmount, s)
	}
	return d, nil
}
