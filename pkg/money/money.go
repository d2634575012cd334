// Package money holds the currency helpers shared by the ledger, the
// settlement engine and the reports. Amounts are decimal reais with two
// fractional digits.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

var Zero = decimal.Zero

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Sum adds all amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// ServiceCharge returns base*rate rounded to cents.
func ServiceCharge(base, rate decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(rate))
}

// Format renders "R$ 12.50".
func Format(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}

// FormatComma renders "12,50", the spreadsheet-friendly form used in exports.
func FormatComma(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}
