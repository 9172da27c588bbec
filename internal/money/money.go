package money

import "github.com/shopspring/decimal"

const precision int32 = 2 // amounts are currency units with paise/cents

// Round normalises an amount to the stored precision.
func Round(amount float64) float64 {
	v, _ := decimal.NewFromFloat(amount).Round(precision).Float64()
	return v
}

// Exceeds reports whether amount is strictly greater than current at the stored precision.
func Exceeds(amount, current float64) bool {
	a := decimal.NewFromFloat(amount).Round(precision)
	c := decimal.NewFromFloat(current).Round(precision)
	return a.GreaterThan(c)
}

// Max returns the larger amount.
func Max(a, b float64) float64 {
	if Exceeds(b, a) {
		return b
	}
	return a
}

// Format renders an amount without trailing zeros, e.g. "10000" or "10.5".
func Format(amount float64) string {
	return decimal.NewFromFloat(amount).Round(precision).String()
}
