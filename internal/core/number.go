// Package core provides the ledger document model and its calculations.
//
// This file contains the exact decimal type used for balances, quantities
// and amounts, and the helpers that parse and format it.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Number is an exact decimal that serializes as a bare JSON number, so the
// persisted document keeps the {"amount": 120} shape.
type Number struct {
	decimal.Decimal
}

// Zero is the zero Number.
var Zero = Number{decimal.Zero}

// NewNumber converts a float to a Number.
func NewNumber(f float64) Number {
	return Number{decimal.NewFromFloat(f)}
}

// NumberFromInt converts an integer to a Number.
func NumberFromInt(i int64) Number {
	return Number{decimal.NewFromInt(i)}
}

// ParseNumber parses a decimal string. A lone comma followed by anything
// other than three digits is a decimal separator (12,34). Otherwise commas
// group thousands and must split the integer part into groups of three.
//
// Examples:
//
//	ParseNumber("12.34") -> 12.34, nil
//	ParseNumber("12,34") -> 12.34, nil
//	ParseNumber("1,500") -> 1500, nil
//	ParseNumber("1,234.5") -> 1234.5, nil
//	ParseNumber("1,2,3") -> 0, error
//	ParseNumber("") -> 0, error
func ParseNumber(s string) (Number, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		var err error
		if s, err = normalizeCommas(s); err != nil {
			return Zero, err
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, err
	}
	return Number{d}, nil
}

func normalizeCommas(s string) (string, error) {
	intPart, frac, hasDot := strings.Cut(s, ".")
	groups := strings.Split(intPart, ",")

	if !hasDot && len(groups) == 2 {
		lead := strings.TrimLeft(groups[0], "+-")
		if len(groups[1]) != 3 || lead == "" || lead == "0" {
			return groups[0] + "." + groups[1], nil
		}
	}

	lead := strings.TrimLeft(groups[0], "+-")
	if lead == "" || len(lead) > 3 || !allDigits(lead) {
		return "", fmt.Errorf("invalid digit grouping in %q", s)
	}
	for _, g := range groups[1:] {
		if len(g) != 3 || !allDigits(g) {
			return "", fmt.Errorf("invalid digit grouping in %q", s)
		}
	}
	out := strings.Join(groups, "")
	if hasDot {
		out += "." + frac
	}
	return out, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

func (n *Number) UnmarshalJSON(data []byte) error {
	return n.Decimal.UnmarshalJSON(data)
}

// Add returns n + o.
func (n Number) Add(o Number) Number {
	return Number{n.Decimal.Add(o.Decimal)}
}

// Sub returns n - o.
func (n Number) Sub(o Number) Number {
	return Number{n.Decimal.Sub(o.Decimal)}
}

// Mul returns n * o.
func (n Number) Mul(o Number) Number {
	return Number{n.Decimal.Mul(o.Decimal)}
}

// Equal reports whether n and o are numerically equal.
func (n Number) Equal(o Number) bool {
	return n.Decimal.Equal(o.Decimal)
}

// Sum adds the amounts of the given records.
func Sum(expenses []ExpenseRecord) Number {
	total := Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}
